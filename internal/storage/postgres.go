package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/oddslab/marketcore/pkg/types"
)

// PostgresStorage implements Storage on PostgreSQL. The engine state
// lives in a single-row JSONB blob; fills and events append per batch.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects and verifies the database.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStorage{db: db, logger: cfg.Logger}, nil
}

// newPostgresWithDB wires an existing connection; tests inject sqlmock
// through it.
func newPostgresWithDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

// SaveBatch stores the state blob and the batch's fills and events in
// one transaction.
func (p *PostgresStorage) SaveBatch(ctx context.Context, batchID string, stateBlob []byte, fills []types.Fill, events []types.Event) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO engine_state (id, blob, updated_by)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET blob = $1, updated_by = $2
	`, stateBlob, batchID)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	for _, f := range fills {
		payload, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshal fill %s: %w", f.TradeID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fills (trade_id, batch_id, payload)
			VALUES ($1, $2, $3)
		`, f.TradeID, batchID, payload)
		if err != nil {
			return fmt.Errorf("insert fill %s: %w", f.TradeID, err)
		}
	}

	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.Type, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (batch_id, kind, payload)
			VALUES ($1, $2, $3)
		`, batchID, string(e.Type), payload)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.Type, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit batch tx: %w", err)
	}

	p.logger.Debug("batch-persisted",
		zap.String("batch-id", batchID),
		zap.Int("fills", len(fills)),
		zap.Int("events", len(events)))
	return nil
}

// LoadState fetches the current state blob; nil when none exists.
func (p *PostgresStorage) LoadState(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := p.db.QueryRowContext(ctx, `SELECT blob FROM engine_state WHERE id = 1`).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return blob, nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
