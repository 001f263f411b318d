// Package db embeds the database schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for every billing table. RunMigrations executes it
// verbatim; all statements are idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
