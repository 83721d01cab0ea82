// Package docs registers the OpenAPI document of the billing API with swag so
// gin-swagger can serve it. Regenerate swagger.json from the handler
// annotations with `swag init -g cmd/server/main.go` after changing a route.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag/v2"
)

//go:embed swagger.json
var swaggerJSON string

type document struct{}

// ReadDoc returns the OpenAPI document
func (document) ReadDoc() string {
	return swaggerJSON
}

func init() {
	swag.Register(swag.Name, document{})
}
