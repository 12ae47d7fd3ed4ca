// Package migrations embeds the SQL schema. Files are applied in name order (001, 002, ...)
// and every statement is idempotent, so they run on each start.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
