package query

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/model"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/chirino/conversation-cache/internal/security"
)

// DefaultLimit is the page size used when a caller passes 0.
const DefaultLimit = 50

// Page is one page of query results. Records is keyed by id; Order lists the
// same ids in sort order.
type Page struct {
	Records    map[string]model.Conversation `json:"records"`
	Order      []string                      `json:"order"`
	NextCursor *string                       `json:"nextCursor,omitempty"`
}

// Engine filters, sorts and pages conversations from a RecordStore.
type Engine struct {
	store        registrystore.RecordStore
	defaultLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultLimit overrides the page size used for limit 0.
func WithDefaultLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.defaultLimit = limit
		}
	}
}

// NewEngine creates an Engine over store.
func NewEngine(store registrystore.RecordStore, opts ...Option) *Engine {
	e := &Engine{store: store, defaultLimit: DefaultLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query returns the page of records matching filter and pageIDs that follows
// cursor in canonical order. An empty cursor starts at the top; a cursor that
// no longer matches any record also restarts at the top.
func (e *Engine) Query(ctx context.Context, filter Filter, pageIDs []string, limit int, cursor string) (*Page, error) {
	start := time.Now()
	defer security.ObserveSince(security.QueryDuration, start)

	if limit < 0 {
		return nil, &registrystore.ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if limit == 0 {
		limit = e.defaultLimit
	}

	scanned, err := registrystore.Retry(ctx, func() ([]model.Conversation, error) {
		return e.store.Scan(ctx, pageIDs)
	})
	if err != nil {
		return nil, err
	}

	match := Compile(filter, pageIDs)
	matched := scanned[:0:0]
	for i := range scanned {
		if match(&scanned[i]) {
			matched = append(matched, scanned[i])
		}
	}
	Sort(matched)

	offset := 0
	if cursor != "" {
		idx := slices.IndexFunc(matched, func(c model.Conversation) bool { return c.ID == cursor })
		if idx < 0 {
			log.Debug("Cursor not found, restarting from the top", "cursor", cursor)
			security.Inc(security.CursorMissesTotal)
		} else {
			offset = idx + 1
		}
	}

	end := min(offset+limit, len(matched))
	window := matched[offset:end]

	page := &Page{
		Records: make(map[string]model.Conversation, len(window)),
		Order:   make([]string, 0, len(window)),
	}
	for _, c := range window {
		page.Records[c.ID] = c
		page.Order = append(page.Order, c.ID)
	}
	if len(window) > 0 && end < len(matched) {
		last := window[len(window)-1].ID
		page.NextCursor = &last
	}
	return page, nil
}

// Get returns a single record or a NotFoundError.
func (e *Engine) Get(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := registrystore.Retry(ctx, func() (*model.Conversation, error) {
		return e.store.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: id}
	}
	return c, nil
}
