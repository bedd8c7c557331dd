// Package db provides the embedded goose migrations.
package db

import "embed"

// Migrations holds the versioned SQL migrations, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"
