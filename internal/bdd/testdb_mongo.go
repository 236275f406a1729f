package bdd

import (
	"context"
	"fmt"

	"github.com/chirino/conversation-cache/internal/testutil/cucumber"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoTestDB implements cucumber.Store for MongoDB. When Redis is set the
// shared scan cache is flushed too.
type MongoTestDB struct {
	DB    *mongo.Database
	Redis *redis.Client
}

var _ cucumber.Store = (*MongoTestDB)(nil)

func (m *MongoTestDB) ClearAll(ctx context.Context) error {
	for _, coll := range []string{"conversations", "meta"} {
		if _, err := m.DB.Collection(coll).DeleteMany(ctx, bson.M{}); err != nil {
			return fmt.Errorf("cleanup: failed to clear %s: %w", coll, err)
		}
	}
	if m.Redis != nil {
		if err := m.Redis.FlushDB(ctx).Err(); err != nil {
			return fmt.Errorf("cleanup: flush redis: %w", err)
		}
	}
	return nil
}
