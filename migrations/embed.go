// Package migrations embeds the SQL migrations so the server and the
// integration tests can apply them without a checkout on disk.
package migrations

import "embed"

// FS holds every *.sql migration in this directory
//
//go:embed *.sql
var FS embed.FS
