// Package migrations embeds the media store schema for goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
