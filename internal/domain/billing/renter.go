package billing

import (
	"fmt"

	"github.com/rentals/backend/internal/domain/shared"
)

// StoredCard is a card a renter keeps on file. Only the last four digits are
// ever stored.
type StoredCard struct {
	Last4Digits string `json:"last4_digits"`
	Type        string `json:"type"`       // Visa, MasterCard, Amex, Discover
	Expiration  string `json:"expiration"` // MM/YY
}

// Descriptor returns the masked card text used in payment method details
func (c StoredCard) Descriptor() string {
	return fmt.Sprintf("%s ****%s", c.Type, c.Last4Digits)
}

// Renter is a person responsible for one or more leases
type Renter struct {
	shared.BaseEntity
	FirstName    string
	LastName     string
	ContactEmail string
	ContactPhone string
	ChatID       string
	CreditCards  []StoredCard
}

// FullName returns "First Last"
func (r *Renter) FullName() string {
	return r.FirstName + " " + r.LastName
}

// FindCard returns the stored card matching the last four digits
func (r *Renter) FindCard(last4 string) (StoredCard, bool) {
	for _, c := range r.CreditCards {
		if c.Last4Digits == last4 {
			return c, true
		}
	}
	return StoredCard{}, false
}
