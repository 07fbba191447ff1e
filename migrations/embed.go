// Package migrations ships the SQL schema and seed files inside the binary.
package migrations

import "embed"

//go:embed *.sql seeds/*.sql
var FS embed.FS
