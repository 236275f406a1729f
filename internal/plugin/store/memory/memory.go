package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/chirino/conversation-cache/internal/model"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.RecordStore, error) {
			return New(), nil
		},
	})
}

// Store keeps conversations in process memory. Contents are lost on Close.
type Store struct {
	mu        sync.RWMutex
	records   map[string]model.Conversation
	watermark int64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{records: map[string]model.Conversation{}}
}

func (s *Store) Get(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (s *Store) BulkGet(_ context.Context, ids []string) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Conversation, len(ids))
	for i, id := range ids {
		if c, ok := s.records[id]; ok {
			out[i] = clone(c)
		}
	}
	return out, nil
}

func (s *Store) BulkUpsert(_ context.Context, records []model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = *clone(r)
	}
	return nil
}

func (s *Store) Scan(_ context.Context, pageIDs []string) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Conversation, 0, len(s.records))
	for _, c := range s.records {
		if len(pageIDs) > 0 && !slices.Contains(pageIDs, c.PageID) {
			continue
		}
		out = append(out, *clone(c))
	}
	// Map iteration order is random; give callers a stable base order.
	slices.SortFunc(out, func(a, b model.Conversation) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetWatermark(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermark, nil
}

func (s *Store) SetWatermark(_ context.Context, watermark int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermark = watermark
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[string]model.Conversation{}
	s.watermark = 0
	return nil
}

// clone copies the slice fields so callers cannot mutate stored state.
func clone(c model.Conversation) *model.Conversation {
	c.LabelIDs = slices.Clone(c.LabelIDs)
	c.PostIDs = slices.Clone(c.PostIDs)
	return &c
}
