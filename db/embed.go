// Package db provides the embedded catalog schema.
package db

import _ "embed"

// Schema contains the DDL statements for the identity, product and media tables.
//
//go:embed migrations/001_schema.sql
var Schema string
