// Package migrations embeds the Postgres schema for the balance ledger.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in name order by
// storage.DB.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
