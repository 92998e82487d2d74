// Package migrations holds registered up/down database migrations. Each
// migration file registers itself in init; cmd/db drives them through
// bun's migrate.Migrator.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry all migration files attach to.
var Migrations = migrate.NewMigrations()
