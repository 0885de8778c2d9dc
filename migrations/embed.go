// Package migrations embeds the SQL schema migrations applied by cmd/migrate
// and the server's optional migrate-on-start.
package migrations

import "embed"

// FS holds every *.sql migration in golang-migrate naming
//
//go:embed *.sql
var FS embed.FS
