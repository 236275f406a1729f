package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/model"
	registrymigrate "github.com/chirino/conversation-cache/internal/registry/migrate"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	conversationsCollection = "conversations"
	metaCollection          = "meta"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.RecordStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &MongoStore{client: client, db: client.Database(cfg.MongoDatabase)}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Store: "mongo", Order: 100, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context, cfg *config.Config) error {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "pageId", Value: 1}}},
		{Keys: bson.D{{Key: "unreadCount", Value: -1}, {Key: "lastMessageTime", Value: -1}}},
	}
	if _, err := client.Database(cfg.MongoDatabase).Collection(conversationsCollection).Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("mongo migration: create indexes: %w", err)
	}
	return nil
}

// MongoStore implements RecordStore on MongoDB. Documents use the
// conversation id as _id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func (s *MongoStore) conversations() *mongo.Collection {
	return s.db.Collection(conversationsCollection)
}

func (s *MongoStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.conversations().FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

func (s *MongoStore) BulkGet(ctx context.Context, ids []string) ([]*model.Conversation, error) {
	out := make([]*model.Conversation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.conversations().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, classify(err)
	}
	var rows []model.Conversation
	if err := cur.All(ctx, &rows); err != nil {
		return nil, classify(err)
	}
	found := make(map[string]*model.Conversation, len(rows))
	for i := range rows {
		found[rows[i].ID] = &rows[i]
	}
	for i, id := range ids {
		out[i] = found[id]
	}
	return out, nil
}

func (s *MongoStore) BulkUpsert(ctx context.Context, records []model.Conversation) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetReplacement(r).
			SetUpsert(true))
	}
	// Ordered so that a later duplicate replaces an earlier one.
	_, err := s.conversations().BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	return classify(err)
}

func (s *MongoStore) Scan(ctx context.Context, pageIDs []string) ([]model.Conversation, error) {
	filter := bson.M{}
	if len(pageIDs) > 0 {
		filter["pageId"] = bson.M{"$in": pageIDs}
	}
	cur, err := s.conversations().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classify(err)
	}
	var rows []model.Conversation
	if err := cur.All(ctx, &rows); err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

func (s *MongoStore) GetWatermark(ctx context.Context) (int64, error) {
	var m model.Meta
	err := s.db.Collection(metaCollection).FindOne(ctx, bson.M{"_id": model.WatermarkKey}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err)
	}
	return m.Value, nil
}

func (s *MongoStore) SetWatermark(ctx context.Context, watermark int64) error {
	_, err := s.db.Collection(metaCollection).ReplaceOne(ctx,
		bson.M{"_id": model.WatermarkKey},
		model.Meta{Key: model.WatermarkKey, Value: watermark},
		options.Replace().SetUpsert(true),
	)
	return classify(err)
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// classify reports network errors and server selection timeouts as a
// transient outage.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return &registrystore.UnavailableError{Store: "mongo", Err: err}
	}
	return err
}
