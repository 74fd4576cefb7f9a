// Package db bundles the SQL schema migrations into the binary.
package db

import "embed"

// Migrations holds the files of db/migrations, applied in lexical order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations that holds the SQL files.
const MigrationsDir = "migrations"
