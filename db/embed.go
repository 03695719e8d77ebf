// Package db carries the SQL schema, embedded so binaries can apply it
// without external files.
package db

import _ "embed"

// Schema holds the DDL for every application table. Applied at startup by
// repository.RunMigrations.
//
//go:embed migrations/001_schema.sql
var Schema string
