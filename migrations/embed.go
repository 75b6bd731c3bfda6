// Package migrations embeds the ledger journal and checkpoint schema applied
// by database.Migrate on startup.
package migrations

import "embed"

// FS holds the *.up.sql files in apply order.
//
//go:embed *.up.sql
var FS embed.FS
