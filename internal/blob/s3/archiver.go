package s3blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

// multipartThreshold switches uploads to the multipart manager for large
// capture files.
const multipartThreshold int64 = 64 * 1024 * 1024

// MarketArchiver uploads a retired market's capture files to blob storage.
// Objects land under orderbook/<slug>/<filename> so one prefix holds a full
// market window.
type MarketArchiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewMarketArchiver creates a MarketArchiver over the given writer.
func NewMarketArchiver(writer domain.BlobWriter, logger *slog.Logger) *MarketArchiver {
	return &MarketArchiver{
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveMarket uploads every regular file in dir and returns the number of
// objects written. A missing directory is not an error; a market can retire
// without having produced output.
func (a *MarketArchiver) ArchiveMarket(ctx context.Context, slug, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("s3blob: read market dir: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := a.uploadFile(ctx, slug, entry.Name(), path); err != nil {
			return uploaded, err
		}
		uploaded++
	}

	a.logger.InfoContext(ctx, "market archived",
		slog.String("slug", slug),
		slog.Int("files", uploaded),
	)
	return uploaded, nil
}

func (a *MarketArchiver) uploadFile(ctx context.Context, slug, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("s3blob: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3blob: stat %s: %w", path, err)
	}

	key := fmt.Sprintf("orderbook/%s/%s", slug, name)
	if info.Size() > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, key, f, 0); err != nil {
			return fmt.Errorf("s3blob: archive %s: %w", key, err)
		}
		return nil
	}
	if err := a.writer.Put(ctx, key, f, "text/csv"); err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", key, err)
	}
	return nil
}

var _ domain.Archiver = (*MarketArchiver)(nil)
