package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/model"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/chirino/conversation-cache/internal/security"
)

// Merge outcomes as reported in metrics.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
)

// BatchResult summarizes one MergeBatch call.
type BatchResult struct {
	MergedCount  int   `json:"mergedCount"`
	SkippedCount int   `json:"skippedCount"`
	NewWatermark int64 `json:"newWatermark"`
}

// EventResult reports what ApplyMessageEvent did.
type EventResult struct {
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
	Created bool   `json:"created"`
}

// Merger applies snapshot batches and realtime events to a RecordStore using
// last-write-wins on the effective time.
type Merger struct {
	store registrystore.RecordStore
	now   func() time.Time
}

// Option configures a Merger.
type Option func(*Merger)

// WithClock replaces the wall clock used for lastUpdate and the watermark fallback.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) { m.now = now }
}

// NewMerger creates a Merger writing to store.
func NewMerger(store registrystore.RecordStore, opts ...Option) *Merger {
	m := &Merger{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MergeBatch ingests raw records. Records lacking a page or client id are
// skipped. A record is written only when no stored record exists for its id
// or its effective time is strictly newer than the stored one. When anything
// was written the watermark advances to the newest accepted effective time.
func (m *Merger) MergeBatch(ctx context.Context, raws []model.RawRecord) (*BatchResult, error) {
	result, candidate, err := m.writeBatch(ctx, raws)
	if err != nil {
		return nil, err
	}
	if candidate == 0 {
		if result.NewWatermark, err = m.Watermark(ctx); err != nil {
			return nil, err
		}
		return result, nil
	}
	if result.NewWatermark, err = m.AdvanceWatermark(ctx, candidate); err != nil {
		return nil, err
	}
	log.Debug("Merged batch", "merged", result.MergedCount, "skipped", result.SkippedCount, "watermark", result.NewWatermark)
	return result, nil
}

// StageBatch writes records exactly like MergeBatch but leaves the stored
// watermark alone. NewWatermark holds the value MergeBatch would have
// advanced to, or 0 when nothing was accepted. Callers merging one snapshot
// in several batches pass the largest of these to AdvanceWatermark once all
// batches are written.
func (m *Merger) StageBatch(ctx context.Context, raws []model.RawRecord) (*BatchResult, error) {
	result, candidate, err := m.writeBatch(ctx, raws)
	if err != nil {
		return nil, err
	}
	result.NewWatermark = candidate
	return result, nil
}

// writeBatch stores the accepted records and returns the watermark they
// justify: the newest accepted effective time, now when all of them are
// untimed, 0 when none was accepted.
func (m *Merger) writeBatch(ctx context.Context, raws []model.RawRecord) (*BatchResult, int64, error) {
	result := &BatchResult{}

	candidates := make([]model.Conversation, 0, len(raws))
	for i, raw := range raws {
		c, err := Normalize(raw)
		if err != nil || c.ID == "" {
			result.SkippedCount++
			log.Debug("Skipping malformed record", "index", i, "err", err)
			continue
		}
		candidates = append(candidates, c)
	}
	security.CountMerge(OutcomeSkipped, result.SkippedCount)

	if len(candidates) > 0 {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		existing, err := registrystore.Retry(ctx, func() ([]*model.Conversation, error) {
			return m.store.BulkGet(ctx, ids)
		})
		if err != nil {
			return nil, 0, fmt.Errorf("load existing records: %w", err)
		}

		// best holds the time to beat per id: stored first, then each accepted candidate.
		best := make(map[string]int64, len(candidates))
		for i, e := range existing {
			if e != nil {
				best[ids[i]] = e.EffectiveTime()
			}
		}

		nowMillis := m.now().UnixMilli()
		var accepted []model.Conversation
		var maxTime int64
		for _, c := range candidates {
			t := c.EffectiveTime()
			if prev, ok := best[c.ID]; ok && t <= prev {
				continue
			}
			best[c.ID] = t
			c.LastUpdate = nowMillis
			accepted = append(accepted, c)
			maxTime = max(maxTime, t)
		}
		security.CountMerge(OutcomeRejected, len(candidates)-len(accepted))

		if len(accepted) > 0 {
			if err := registrystore.RetryErr(ctx, func() error {
				return m.store.BulkUpsert(ctx, accepted)
			}); err != nil {
				return nil, 0, fmt.Errorf("write merged records: %w", err)
			}
			security.CountMerge(OutcomeAccepted, len(accepted))
			result.MergedCount = len(accepted)

			if maxTime == 0 {
				maxTime = nowMillis
			}
			return result, maxTime, nil
		}
	}
	return result, 0, nil
}

// AdvanceWatermark raises the stored watermark to candidate and returns the
// resulting value. A candidate not above the current watermark changes nothing.
func (m *Merger) AdvanceWatermark(ctx context.Context, candidate int64) (int64, error) {
	current, err := m.Watermark(ctx)
	if err != nil {
		return 0, err
	}
	if candidate <= current {
		return current, nil
	}
	if err := registrystore.RetryErr(ctx, func() error {
		return m.store.SetWatermark(ctx, candidate)
	}); err != nil {
		return 0, fmt.Errorf("set watermark: %w", err)
	}
	if security.SyncWatermark != nil {
		security.SyncWatermark.Set(float64(candidate))
	}
	return candidate, nil
}

// Watermark returns the stored sync watermark, 0 when unset.
func (m *Merger) Watermark(ctx context.Context) (int64, error) {
	wm, err := registrystore.Retry(ctx, func() (int64, error) {
		return m.store.GetWatermark(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("get watermark: %w", err)
	}
	return wm, nil
}

// ApplyMessageEvent folds one realtime message into its conversation. Unknown
// conversations are created. Events not newer than the stored last message
// are ignored. The watermark is never changed.
func (m *Merger) ApplyMessageEvent(ctx context.Context, ev model.MessageEvent) (*EventResult, error) {
	if ev.PageID == "" {
		return nil, &registrystore.ValidationError{Field: "pageId", Message: "is required"}
	}
	if ev.ClientID == "" {
		return nil, &registrystore.ValidationError{Field: "clientId", Message: "is required"}
	}
	id := model.ConversationID(ev.PageID, ev.ClientID)
	result := &EventResult{ID: id}

	existing, err := registrystore.Retry(ctx, func() (*model.Conversation, error) {
		return m.store.Get(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	client := model.IsClientMessage(ev.MessageType)
	var c model.Conversation
	switch {
	case existing == nil:
		c = model.Conversation{ID: id, PageID: ev.PageID, ClientID: ev.ClientID}
		if client {
			c.UnreadCount = 1
		}
		result.Created = true
	case ev.LastMessageTime > existing.MessageTime():
		c = *existing
		if client {
			c.UnreadCount++
		}
	default:
		security.CountRealtimeEvent(OutcomeRejected)
		log.Debug("Ignoring stale message event", "id", id, "eventTime", ev.LastMessageTime, "storedTime", existing.MessageTime())
		return result, nil
	}

	// Empty event fields keep what the record already has.
	c.LastMessageTime = model.Ptr(ev.LastMessageTime)
	c.LastMessageText = orKeep(ev.MessageText, c.LastMessageText)
	c.LastMessageType = orKeep(ev.MessageType, c.LastMessageType)
	c.LastMessageID = orKeep(ev.MessageID, c.LastMessageID)
	c.LastUpdate = m.now().UnixMilli()

	if err := registrystore.RetryErr(ctx, func() error {
		return m.store.BulkUpsert(ctx, []model.Conversation{c})
	}); err != nil {
		return nil, fmt.Errorf("write conversation: %w", err)
	}
	security.CountRealtimeEvent(OutcomeAccepted)
	result.Applied = true
	return result, nil
}

func orKeep(s string, prev *string) *string {
	if s == "" {
		return prev
	}
	return &s
}
