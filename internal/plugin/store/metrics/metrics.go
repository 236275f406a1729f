package metrics

import (
	"context"
	"time"

	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/chirino/conversation-cache/internal/security"
)

// Wrap returns a RecordStore that records StoreLatency for every operation.
func Wrap(inner store.RecordStore) store.RecordStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.RecordStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	defer observe("get", time.Now())
	return m.inner.Get(ctx, id)
}

func (m *metricsStore) BulkGet(ctx context.Context, ids []string) ([]*model.Conversation, error) {
	defer observe("bulk_get", time.Now())
	return m.inner.BulkGet(ctx, ids)
}

func (m *metricsStore) BulkUpsert(ctx context.Context, records []model.Conversation) error {
	defer observe("bulk_upsert", time.Now())
	return m.inner.BulkUpsert(ctx, records)
}

func (m *metricsStore) Scan(ctx context.Context, pageIDs []string) ([]model.Conversation, error) {
	defer observe("scan", time.Now())
	return m.inner.Scan(ctx, pageIDs)
}

func (m *metricsStore) GetWatermark(ctx context.Context) (int64, error) {
	defer observe("get_watermark", time.Now())
	return m.inner.GetWatermark(ctx)
}

func (m *metricsStore) SetWatermark(ctx context.Context, watermark int64) error {
	defer observe("set_watermark", time.Now())
	return m.inner.SetWatermark(ctx, watermark)
}

func (m *metricsStore) Close() error {
	return m.inner.Close()
}
