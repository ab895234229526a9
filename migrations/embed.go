// Package migrations embeds the PostgreSQL schema applied by internal/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
