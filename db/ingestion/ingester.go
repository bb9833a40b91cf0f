package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is an archive backend for snapshots
type Store interface {
	FindRunByHash(ctx context.Context, hash string) (uuid.UUID, bool, error)
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
}

// Ingester writes snapshots, skipping content that is already archived
type Ingester struct {
	store  Store
	logger zerolog.Logger
}

// NewIngester creates an ingester over store
func NewIngester(store Store) *Ingester {
	return &Ingester{store: store, logger: zerolog.Nop()}
}

// WithLogger sets the logger
func (i *Ingester) WithLogger(l zerolog.Logger) *Ingester {
	i.logger = l
	return i
}

// IngestionResult tracks the result of an ingestion
type IngestionResult struct {
	RunID      uuid.UUID
	Hash       string
	PriceCount int
	RateCount  int
	Duplicate  bool
	Duration   time.Duration
}

// Ingest archives snap unless a run with the same content hash exists.
func (i *Ingester) Ingest(ctx context.Context, snap *Snapshot) (*IngestionResult, error) {
	startTime := time.Now()
	result := &IngestionResult{RunID: snap.Run.ID, Hash: snap.Run.Hash}

	existing, found, err := i.store.FindRunByHash(ctx, snap.Run.Hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate run: %w", err)
	}
	if found {
		result.RunID = existing
		result.Duplicate = true
		result.Duration = time.Since(startTime)
		i.logger.Info().Str("run_id", existing.String()).Msg("identical run already archived, skipping")
		return result, nil
	}

	if err := i.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save run %s: %w", snap.Run.ID, err)
	}
	result.PriceCount = len(snap.Prices)
	result.RateCount = len(snap.Rates)
	result.Duration = time.Since(startTime)

	i.logger.Info().
		Str("run_id", snap.Run.ID.String()).
		Int("prices", result.PriceCount).
		Int("rates", result.RateCount).
		Dur("duration", result.Duration).
		Msg("run archived")
	return result, nil
}
