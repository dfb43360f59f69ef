// Package migrations embeds the stub database schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
