package migrations

import "embed"

// FS contains embedded SQLite migrations for scenario artifact storage.
//
//go:embed *.sql
var FS embed.FS
