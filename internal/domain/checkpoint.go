package domain

import "time"

// Checkpoint is the persisted ingestion cursor. It is read at startup and
// written after each durable emission.
type Checkpoint struct {
	LastBlock uint64    `json:"last_block"`
	UpdatedAt time.Time `json:"updated_at"`
}
