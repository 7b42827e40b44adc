package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
)

func TestLoadMissingFileReturnsZero(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "state", "checkpoint.json"))
	require.NoError(t, err)

	cp, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cp.LastBlock)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	want := domain.Checkpoint{
		LastBlock: 74_553_210,
		UpdatedAt: time.Date(2026, 2, 16, 3, 15, 12, 0, time.UTC),
	}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.LastBlock, got.LastBlock)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))

	// No stray temp file remains after the rename.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSaveOverwrites(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, domain.Checkpoint{LastBlock: 100}))
	require.NoError(t, s.Save(ctx, domain.Checkpoint{LastBlock: 200}))

	cp, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), cp.LastBlock)
}
