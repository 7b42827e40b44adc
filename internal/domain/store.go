package domain

import (
	"context"
	"io"
)

// RecordSink receives normalized records for durable storage. Implementations
// must tolerate at-least-once delivery; deduplication happens upstream or via
// the DedupeKey on trades.
type RecordSink interface {
	WriteSnapshot(ctx context.Context, snap BookSnapshot) error
	WriteDelta(ctx context.Context, delta PriceDelta) error
	WriteTrade(ctx context.Context, trade Trade) error
	Flush(ctx context.Context) error
	Close() error
}

// CheckpointStore persists the ingestion cursor.
type CheckpointStore interface {
	Load(ctx context.Context) (Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
}

// SignalBus provides pub/sub and durable stream delivery for live consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver uploads a retired market's output files to blob storage.
type Archiver interface {
	ArchiveMarket(ctx context.Context, slug, dir string) (int, error)
}
