package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/model"
	registrysource "github.com/chirino/conversation-cache/internal/registry/source"
	"github.com/chirino/conversation-cache/internal/security"
	"github.com/chirino/conversation-cache/internal/tempfiles"
	"github.com/google/uuid"
)

// batchSize bounds how many raw records go into one MergeBatch call.
const batchSize = 5000

// SourceFetchError reports that a snapshot could not be fetched or decoded.
// Nothing was merged.
type SourceFetchError struct {
	Location string
	Err      error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Location, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// Result describes one ingest run.
type Result struct {
	RunID        string      `json:"runId"`
	Location     string      `json:"location"`
	Decode       DecodeStats `json:"decode"`
	MergedCount  int         `json:"mergedCount"`
	SkippedCount int         `json:"skippedCount"`
	NewWatermark int64       `json:"newWatermark"`
	Diagnostic   string      `json:"diagnostic,omitempty"`
	Duration     string      `json:"duration"`
}

// Merger is the part of merge.Merger the ingestor needs.
type Merger interface {
	StageBatch(ctx context.Context, raws []model.RawRecord) (*merge.BatchResult, error)
	AdvanceWatermark(ctx context.Context, candidate int64) (int64, error)
	Watermark(ctx context.Context) (int64, error)
}

// Ingestor fetches snapshot archives and merges their records.
type Ingestor struct {
	merger Merger
	cfg    *config.Config
}

// NewIngestor creates an Ingestor. cfg supplies the snapshot URLs, the temp
// dir and the download size limit.
func NewIngestor(merger Merger, cfg *config.Config) *Ingestor {
	return &Ingestor{merger: merger, cfg: cfg}
}

// Ingest fetches location, decodes it and merges every record. A fetch or
// decode failure returns a Result carrying a Diagnostic together with a
// *SourceFetchError; the store is left untouched in that case.
func (i *Ingestor) Ingest(ctx context.Context, location string) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: uuid.NewString(), Location: location}
	logger := log.With("run", result.RunID, "location", location)

	records, stats, err := i.fetch(ctx, location)
	result.Decode = stats
	if err != nil {
		security.Inc(security.SnapshotFailuresTotal)
		result.Diagnostic = err.Error()
		result.Duration = time.Since(start).String()
		logger.Warn("Snapshot fetch failed", "err", err)
		return result, &SourceFetchError{Location: location, Err: err}
	}
	if stats.BadLines > 0 {
		logger.Warn("Snapshot contained malformed lines", "bad", stats.BadLines, "lines", stats.Lines)
	}

	// The watermark moves only after every batch is written. Advancing it per
	// batch would let a later failure strand older records behind it.
	var candidate int64
	for off := 0; off < len(records); off += batchSize {
		batch := records[off:min(off+batchSize, len(records))]
		res, err := i.merger.StageBatch(ctx, batch)
		if err != nil {
			logger.Warn("Snapshot merge failed, watermark left unchanged", "offset", off, "err", err)
			return nil, fmt.Errorf("merge snapshot %s: %w", location, err)
		}
		result.MergedCount += res.MergedCount
		result.SkippedCount += res.SkippedCount
		candidate = max(candidate, res.NewWatermark)
	}
	if candidate > 0 {
		result.NewWatermark, err = i.merger.AdvanceWatermark(ctx, candidate)
	} else {
		result.NewWatermark, err = i.merger.Watermark(ctx)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start).String()
	logger.Info("Snapshot ingested",
		"records", len(records),
		"merged", result.MergedCount,
		"skipped", result.SkippedCount,
		"watermark", result.NewWatermark,
		"duration", result.Duration,
	)
	return result, nil
}

// Sync ingests the full snapshot when no watermark exists yet, and the
// incremental snapshot (with {since} expanded) otherwise. Without an
// incremental URL the full snapshot is fetched every time.
func (i *Ingestor) Sync(ctx context.Context) (*Result, error) {
	if i.cfg.SnapshotURL == "" && i.cfg.SnapshotIncrementalURL == "" {
		return nil, fmt.Errorf("no snapshot URL configured")
	}
	wm, err := i.merger.Watermark(ctx)
	if err != nil {
		return nil, err
	}
	return i.Ingest(ctx, i.SyncLocation(wm))
}

// SyncLocation picks the location Sync would fetch for watermark.
func (i *Ingestor) SyncLocation(watermark int64) string {
	if watermark != 0 && i.cfg.SnapshotIncrementalURL != "" {
		return config.ExpandSince(i.cfg.SnapshotIncrementalURL, watermark)
	}
	if i.cfg.SnapshotURL == "" {
		return config.ExpandSince(i.cfg.SnapshotIncrementalURL, watermark)
	}
	return i.cfg.SnapshotURL
}

func (i *Ingestor) fetch(ctx context.Context, location string) ([]model.RawRecord, DecodeStats, error) {
	u, err := registrysource.Parse(location)
	if err != nil {
		return nil, DecodeStats{}, err
	}
	loader, err := registrysource.ForScheme(u.Scheme)
	if err != nil {
		return nil, DecodeStats{}, err
	}
	src, err := loader(config.WithContext(ctx, i.cfg))
	if err != nil {
		return nil, DecodeStats{}, err
	}

	fetchCtx := ctx
	if i.cfg.SnapshotFetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, i.cfg.SnapshotFetchTimeout)
		defer cancel()
	}
	body, err := src.Open(fetchCtx, u)
	if err != nil {
		return nil, DecodeStats{}, err
	}
	defer body.Close()

	spooled, err := tempfiles.Spool(i.cfg.ResolvedTempDir(), "conversation-cache-snapshot-*", body, i.cfg.SnapshotMaxBytes)
	if err != nil {
		return nil, DecodeStats{}, err
	}
	defer spooled.Close()

	return Decode(spooled, spooled.Size())
}
