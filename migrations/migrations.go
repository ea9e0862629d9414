// Package migrations embeds the schema migration files applied at boot.
package migrations

import "embed"

//go:embed *.up.sql
var Files embed.FS
