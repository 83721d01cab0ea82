package billing

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testNow is the reference instant of every test in this package
var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memDB is an in-memory ledger with the same versioning rules as the SQL
// repositories. Each repository view below shares it.
type memDB struct {
	mu         sync.Mutex
	properties map[uuid.UUID]billing.Property
	units      map[string]billing.Unit
	renters    map[uuid.UUID]billing.Renter
	leases     map[uuid.UUID]billing.Lease
	debts      map[uuid.UUID]billing.DebtItem
	payments   map[uuid.UUID]billing.Payment
	readings   []billing.MeterReading

	// beforeSave runs inside SaveWithDebts before the version check
	beforeSave func(db *memDB)
}

func newMemDB() *memDB {
	return &memDB{
		properties: map[uuid.UUID]billing.Property{},
		units:      map[string]billing.Unit{},
		renters:    map[uuid.UUID]billing.Renter{},
		leases:     map[uuid.UUID]billing.Lease{},
		debts:      map[uuid.UUID]billing.DebtItem{},
		payments:   map[uuid.UUID]billing.Payment{},
	}
}

func (db *memDB) debt(id uuid.UUID) billing.DebtItem {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.debts[id]
}

func (db *memDB) putDebt(d *billing.DebtItem) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.debts[d.ID] = *d
}

type memUnits struct{ db *memDB }

func (r memUnits) FindByID(_ context.Context, id string) (*billing.Unit, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.units[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &u, nil
}

func (r memUnits) FindByIDs(_ context.Context, ids []string) ([]billing.Unit, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []billing.Unit
	for _, id := range ids {
		if u, ok := r.db.units[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r memUnits) Save(_ context.Context, u *billing.Unit) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.units[u.ID] = *u
	return nil
}

type memRenters struct{ db *memDB }

func (r memRenters) FindByID(_ context.Context, id uuid.UUID) (*billing.Renter, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	x, ok := r.db.renters[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &x, nil
}

func (r memRenters) FindByIDs(_ context.Context, ids []uuid.UUID) ([]billing.Renter, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []billing.Renter
	for _, id := range ids {
		if x, ok := r.db.renters[id]; ok {
			out = append(out, x)
		}
	}
	return out, nil
}

func (r memRenters) ExistsByID(_ context.Context, id uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.db.renters[id]
	return ok, nil
}

func (r memRenters) Save(_ context.Context, x *billing.Renter) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.renters[x.ID] = *x
	return nil
}

type memLeases struct{ db *memDB }

func (r memLeases) FindByID(_ context.Context, id uuid.UUID) (*billing.Lease, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	l, ok := r.db.leases[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &l, nil
}

func (r memLeases) FindActiveOn(_ context.Context, day time.Time) ([]billing.Lease, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []billing.Lease
	for _, l := range r.db.leases {
		if l.IsActiveOn(day) {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b billing.Lease) int { return a.StartDate.Compare(b.StartDate) })
	return out, nil
}

func (r memLeases) FindActiveByUnit(ctx context.Context, unitID string, day time.Time) (*billing.Lease, error) {
	active, _ := r.FindActiveOn(ctx, day)
	for _, l := range active {
		if l.UnitID == unitID {
			return &l, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memLeases) SaveWithUnit(_ context.Context, l *billing.Lease, u *billing.Unit) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if stored, ok := r.db.leases[l.ID]; ok && stored.Version != l.Version-1 {
		return shared.NewConflictError("Lease %s was modified by another process", l.ID)
	}
	r.db.leases[l.ID] = *l
	if u != nil {
		r.db.units[u.ID] = *u
	}
	return nil
}

type memDebts struct{ db *memDB }

func (r memDebts) FindByID(_ context.Context, id uuid.UUID) (*billing.DebtItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.debts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &d, nil
}

func (r memDebts) FindByIDs(_ context.Context, ids []uuid.UUID) ([]billing.DebtItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []billing.DebtItem
	for _, id := range ids {
		if d, ok := r.db.debts[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r memDebts) FindOutstanding(_ context.Context, f billing.OutstandingFilter) ([]billing.OutstandingDebt, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []billing.OutstandingDebt
	for _, d := range r.db.debts {
		if !d.IsOutstanding() {
			continue
		}
		var name string
		if d.PropertyID != nil {
			p := r.db.properties[*d.PropertyID]
			if f.Bounds != nil && !f.Bounds.Contains(p.Latitude, p.Longitude) {
				continue
			}
			name = p.Name
		} else if f.Bounds != nil {
			continue
		}
		out = append(out, billing.OutstandingDebt{DebtItem: d, PropertyName: name})
	}
	slices.SortFunc(out, func(a, b billing.OutstandingDebt) int {
		return cmp.Or(a.DueDate.Compare(b.DueDate), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memDebts) FindByRenter(_ context.Context, renterID uuid.UUID, onlyOutstanding bool) ([]billing.DebtItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []billing.DebtItem
	for _, d := range r.db.debts {
		if d.IsOwnedBy(renterID) && (!onlyOutstanding || d.IsOutstanding()) {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b billing.DebtItem) int { return a.DueDate.Compare(b.DueDate) })
	return out, nil
}

func (r memDebts) Create(_ context.Context, d *billing.DebtItem) error {
	r.db.putDebt(d)
	return nil
}

func (r memDebts) CreateCharges(ctx context.Context, debts []*billing.DebtItem) ([]*billing.DebtItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var created []*billing.DebtItem
	for _, d := range debts {
		dup := false
		for _, existing := range r.db.debts {
			if existing.LeaseID != nil && d.LeaseID != nil && *existing.LeaseID == *d.LeaseID && existing.ChargeKey == d.ChargeKey {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		r.db.debts[d.ID] = *d
		created = append(created, d)
	}
	return created, nil
}

type memPayments struct{ db *memDB }

func (r memPayments) FindByID(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r memPayments) SaveWithDebts(ctx context.Context, p *billing.Payment, debts []*billing.DebtItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.beforeSave != nil {
		r.db.beforeSave(r.db)
	}
	for _, d := range debts {
		if r.db.debts[d.ID].Version != d.Version-1 {
			return shared.NewConflictError("Debt item %s was modified by another payment", d.ID)
		}
	}
	for _, d := range debts {
		r.db.debts[d.ID] = *d
	}
	r.db.payments[p.ID] = *p
	return nil
}

type memReadings struct{ db *memDB }

func (r memReadings) Append(_ context.Context, readings []billing.MeterReading) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.readings = append(r.db.readings, readings...)
	return nil
}

func (r memReadings) SumReadings(_ context.Context, unitID string, kind billing.UtilityKind, from, to time.Time) (decimal.Decimal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	sum := decimal.Zero
	for _, m := range r.db.readings {
		if m.UnitID == unitID && m.Kind == kind && !m.Timestamp.Before(from) && m.Timestamp.Before(to) {
			sum = sum.Add(m.Value)
		}
	}
	return sum, nil
}

func (r memReadings) HourlyUsage(_ context.Context, unitID string, kind billing.UtilityKind, from, to time.Time) ([]billing.UsagePoint, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []billing.UsagePoint
	for _, m := range r.db.readings {
		if m.UnitID != unitID || m.Kind != kind || m.Timestamp.Before(from) || !m.Timestamp.Before(to) {
			continue
		}
		hour := m.Timestamp.Truncate(time.Hour)
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(hour) {
			out[n-1].Value = out[n-1].Value.Add(m.Value)
			continue
		}
		out = append(out, billing.UsagePoint{Timestamp: hour, Value: m.Value})
	}
	return out, nil
}

// fixture is one property with unit 2B, a renter with a Visa ending 4242 and
// a lease for 1200 running through 2026
type fixture struct {
	db       *memDB
	property billing.Property
	unit     billing.Unit
	renter   billing.Renter
	lease    billing.Lease
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()

	property := billing.Property{
		BaseEntity: shared.NewBaseEntity(testNow),
		Name:       "Maple Court",
		Latitude:   40.71,
		Longitude:  -74.0,
	}
	unit, err := billing.NewUnit(property.ID, "2B", testNow)
	require.NoError(t, err)
	unit.Occupy(testNow)

	renter := billing.Renter{
		BaseEntity:  shared.NewBaseEntity(testNow),
		FirstName:   "Ada",
		LastName:    "Okafor",
		CreditCards: []billing.StoredCard{{Last4Digits: "4242", Type: "Visa", Expiration: "08/29"}},
	}
	lease, err := billing.NewLease(unit.ID, []uuid.UUID{renter.ID}, dec("1200"),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		decimal.Zero, decimal.Zero, testNow)
	require.NoError(t, err)

	db.properties[property.ID] = property
	db.units[unit.ID] = *unit
	db.renters[renter.ID] = renter
	db.leases[lease.ID] = *lease

	return &fixture{db: db, property: property, unit: *unit, renter: renter, lease: *lease}
}

// addDebt stores a fee owed by the given renters
func (f *fixture) addDebt(t *testing.T, amount string, due time.Time, renters ...uuid.UUID) billing.DebtItem {
	t.Helper()
	propertyID := f.property.ID
	d, err := billing.NewFee(renters[0], billing.FeeDetails{
		UnitID:      f.unit.ID,
		PropertyID:  &propertyID,
		RenterIDs:   renters,
		Description: "Test charge",
		AmountDue:   dec(amount),
		DueDate:     due,
	}, testNow)
	require.NoError(t, err)
	f.db.putDebt(d)
	return *d
}

func (f *fixture) addReading(kind billing.UtilityKind, ts time.Time, value string) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.readings = append(f.db.readings, billing.MeterReading{UnitID: f.unit.ID, Kind: kind, Timestamp: ts, Value: dec(value)})
}

// mockEventPublisher records published events
type mockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (m *mockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *mockEventPublisher) Events() []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// mockCardGateway is a mock implementation of billing.CardGateway
type mockCardGateway struct {
	mock.Mock
}

func (m *mockCardGateway) Name() string {
	return "mock"
}

func (m *mockCardGateway) Charge(ctx context.Context, req billing.CardChargeRequest) (*billing.CardChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CardChargeResult), args.Error(1)
}
