package migrations

import "embed"

// FS holds the golang-migrate up/down files for the Postgres schema.
//
//go:embed *.sql
var FS embed.FS
