// Package migrations embeds the SQL schema so binaries and tests share one copy.
package migrations

import _ "embed"

// Init creates the daybook tables on PostgreSQL.
//
//go:embed 0001_init.sql
var Init string
