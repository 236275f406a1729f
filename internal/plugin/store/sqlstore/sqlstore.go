// Package sqlstore implements RecordStore on top of gorm. The sqlite and
// postgres plugins share it and differ only in dialect and error mapping.
package sqlstore

import (
	"context"
	"errors"

	"github.com/chirino/conversation-cache/internal/model"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// batchSize bounds IN lists and multi-row inserts to stay under driver
// bind-variable limits.
const batchSize = 500

// Classifier maps driver errors to store errors, typically turning transient
// connection failures into *registrystore.UnavailableError.
type Classifier func(err error) error

// Store is a gorm-backed RecordStore.
type Store struct {
	db       *gorm.DB
	classify Classifier
}

// New wraps db. A nil classifier returns errors unchanged.
func New(db *gorm.DB, classify Classifier) *Store {
	if classify == nil {
		classify = func(err error) error { return err }
	}
	return &Store{db: db, classify: classify}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) wrap(err error) error {
	if err == nil {
		return nil
	}
	return s.classify(err)
}

func (s *Store) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap(err)
	}
	return &c, nil
}

func (s *Store) BulkGet(ctx context.Context, ids []string) ([]*model.Conversation, error) {
	found := make(map[string]*model.Conversation, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		var rows []model.Conversation
		chunk := ids[start:min(start+batchSize, len(ids))]
		if err := s.db.WithContext(ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, s.wrap(err)
		}
		for i := range rows {
			found[rows[i].ID] = &rows[i]
		}
	}
	out := make([]*model.Conversation, len(ids))
	for i, id := range ids {
		out[i] = found[id]
	}
	return out, nil
}

func (s *Store) BulkUpsert(ctx context.Context, records []model.Conversation) error {
	if len(records) == 0 {
		return nil
	}
	// A single INSERT .. ON CONFLICT cannot touch the same row twice.
	records = registrystore.DedupeLastWins(records)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(records, batchSize).Error
	})
	return s.wrap(err)
}

func (s *Store) Scan(ctx context.Context, pageIDs []string) ([]model.Conversation, error) {
	q := s.db.WithContext(ctx).Order("id")
	if len(pageIDs) > 0 {
		q = q.Where("page_id IN ?", pageIDs)
	}
	var rows []model.Conversation
	if err := q.Find(&rows).Error; err != nil {
		return nil, s.wrap(err)
	}
	return rows, nil
}

func (s *Store) GetWatermark(ctx context.Context) (int64, error) {
	var m model.Meta
	err := s.db.WithContext(ctx).Where("key = ?", model.WatermarkKey).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, s.wrap(err)
	}
	return m.Value, nil
}

func (s *Store) SetWatermark(ctx context.Context, watermark int64) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model.Meta{Key: model.WatermarkKey, Value: watermark}).Error
	return s.wrap(err)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
