// Package remote defines the port to the authoritative remote store and the
// flat record representation that crosses it. Adapters live in subpackages;
// the sync engine talks only to the Store interface.
package remote

import "context"

// Store is a remote authoritative copy of the ledger. Implementations must
// assign a monotonically increasing revision to every accepted record so
// Pull can resume from a cursor.
type Store interface {
	// Setup establishes the remote schema/connection. Called once per
	// engine lifecycle before the first cycle.
	Setup(ctx context.Context) error

	// Pull returns all records with revision greater than cursor, in
	// revision order, together with the next cursor value.
	Pull(ctx context.Context, cursor int64) ([]Record, int64, error)

	// Push uploads local records. The remote assigns each a new revision;
	// a record pushed twice simply supersedes itself.
	Push(ctx context.Context, records []Record) error
}
