package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/snapshot"
)

// Syncer runs one snapshot sync against the configured source.
type Syncer interface {
	Sync(ctx context.Context) (*snapshot.Result, error)
}

// SnapshotScheduler periodically pulls the configured snapshot into the
// cache. Runs are serial; a slow run delays the next tick.
type SnapshotScheduler struct {
	syncer   Syncer
	interval time.Duration
}

// NewSnapshotScheduler creates a scheduler firing every interval.
func NewSnapshotScheduler(syncer Syncer, interval time.Duration) *SnapshotScheduler {
	return &SnapshotScheduler{syncer: syncer, interval: interval}
}

// Start runs one sync immediately, then one per interval. Returns when ctx is
// cancelled. A non-positive interval disables the loop after the first run.
func (s *SnapshotScheduler) Start(ctx context.Context) {
	s.runOnce(ctx)
	if s.interval <= 0 {
		log.Info("Snapshot scheduler: periodic sync disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SnapshotScheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	result, err := s.syncer.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		attrs := []any{"err", err}
		if result != nil {
			attrs = append(attrs, "location", result.Location, "runId", result.RunID)
		}
		log.Error("Snapshot scheduler: sync failed", attrs...)
		return
	}
	log.Info("Snapshot scheduler: sync complete",
		"runId", result.RunID,
		"merged", result.MergedCount,
		"skipped", result.SkippedCount,
		"watermark", result.NewWatermark,
		"duration", result.Duration)
}
