package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/testutil/cucumber"
	"gorm.io/gorm"
)

// SQLTestDB implements cucumber.Store for the gorm-backed stores.
type SQLTestDB struct {
	DB *gorm.DB
}

var _ cucumber.Store = (*SQLTestDB)(nil)

func (d *SQLTestDB) ClearAll(ctx context.Context) error {
	for _, table := range []any{&model.Conversation{}, &model.Meta{}} {
		if err := d.DB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error; err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}
	return nil
}
