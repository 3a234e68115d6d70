package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/oddslab/marketcore/pkg/types"
)

// ConsoleStorage implements Storage by logging batches and keeping the
// latest state blob in memory. The default when no database is wired.
type ConsoleStorage struct {
	mu     sync.Mutex
	blob   []byte
	logger *zap.Logger
}

// NewConsoleStorage creates a console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{logger: logger}
}

// SaveBatch logs the batch summary and retains the state blob.
func (c *ConsoleStorage) SaveBatch(_ context.Context, batchID string, stateBlob []byte, fills []types.Fill, events []types.Event) error {
	c.mu.Lock()
	c.blob = append(c.blob[:0], stateBlob...)
	c.mu.Unlock()

	c.logger.Info("batch-applied",
		zap.String("batch-id", batchID),
		zap.Int("fills", len(fills)),
		zap.Int("events", len(events)))
	for _, f := range fills {
		c.logger.Info("fill",
			zap.String("trade-id", f.TradeID),
			zap.String("type", string(f.Type)),
			zap.Int("outcome", f.Outcome),
			zap.String("side", string(f.Side)),
			zap.String("price", f.Price.Format()),
			zap.String("size", f.Size.Format()),
			zap.String("buyer", f.Buyer),
			zap.String("seller", f.Seller))
	}
	return nil
}

// LoadState returns the retained blob.
func (c *ConsoleStorage) LoadState(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blob == nil {
		return nil, nil
	}
	out := make([]byte, len(c.blob))
	copy(out, c.blob)
	return out, nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
