// Package queue persists transcript work items in SQLite and owns their
// status lifecycle.
//
// The Store manages database connections, schema migrations, stats queries,
// and the legal-transition rules every status change passes through. Each
// change appends to an append-only history table inside the same transaction
// that rewrites the item row, so the recorded lifecycle can never disagree
// with the current status.
//
// Treat this package as the single source of truth for queue semantics; new
// statuses belong in models.go, transitions.go, and a schema version bump
// together.
package queue
