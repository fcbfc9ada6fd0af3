// Package migrations embeds the SQL schema migrations into the binaries.
package migrations

import "embed"

// FS holds every *.sql migration in this directory
//
//go:embed *.sql
var FS embed.FS

// Path is the directory inside FS that holds the migrations
const Path = "."
