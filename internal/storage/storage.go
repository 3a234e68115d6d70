// Package storage persists the engine's canonical state blob, fills and
// events between batches.
package storage

import (
	"context"

	"github.com/oddslab/marketcore/pkg/types"
)

// Storage is the persistence interface consumed by the scheduler.
type Storage interface {
	// SaveBatch atomically stores the post-batch state blob and the
	// batch's fills and events.
	SaveBatch(ctx context.Context, batchID string, stateBlob []byte, fills []types.Fill, events []types.Event) error

	// LoadState returns the most recent state blob, or nil when no
	// session has been persisted yet.
	LoadState(ctx context.Context) ([]byte, error)

	// Close closes the storage connection.
	Close() error
}
