package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

// CheckpointStore keeps the chain cursor in a single-row table so restarts
// resume from the last processed block.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a CheckpointStore over the client's pool.
func NewCheckpointStore(client *Client) *CheckpointStore {
	return &CheckpointStore{pool: client.Pool()}
}

func (s *CheckpointStore) Load(ctx context.Context) (domain.Checkpoint, error) {
	var (
		lastBlock int64
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		"SELECT last_block, updated_at FROM chain_checkpoint WHERE id = 1",
	).Scan(&lastBlock, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Checkpoint{}, nil
	}
	if err != nil {
		return domain.Checkpoint{}, fmt.Errorf("postgres: load checkpoint: %w", err)
	}

	return domain.Checkpoint{LastBlock: uint64(lastBlock), UpdatedAt: updatedAt}, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chain_checkpoint (id, last_block, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET last_block = EXCLUDED.last_block, updated_at = EXCLUDED.updated_at`,
		int64(cp.LastBlock), cp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save checkpoint: %w", err)
	}
	return nil
}

var _ domain.CheckpointStore = (*CheckpointStore)(nil)
