package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary keys.
//
// UUIDv7 keys sort by creation time, which keeps btree indexes dense on both
// PostgreSQL and SQLite without a gen_random_uuid() dependency.
//
// Panics if UUID generation fails, which only occurs when the entropy source
// is exhausted; at that point no ID generation can proceed anyway.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
