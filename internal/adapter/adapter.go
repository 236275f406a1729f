package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/query"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
)

// SortDefault is the only supported ordering: unread count, then recency.
const SortDefault = "default"

// Request is the conversation list request shared by local and remote modes.
type Request struct {
	PageIDs []string     `json:"pageIds,omitempty"`
	Filter  query.Filter `json:"filter"`
	Limit   int          `json:"limit,omitempty"`
	Sort    string       `json:"sort,omitempty"`
	Cursor  string       `json:"cursor,omitempty"`
}

// Response lists conversations in order with the cursor for the next page.
type Response struct {
	Conversations []model.Conversation `json:"conversations"`
	NextCursor    *string              `json:"nextCursor"`
}

// Validate checks fields that do not depend on the mode.
func (r *Request) Validate() error {
	if r.Limit < 0 {
		return &registrystore.ValidationError{Field: "limit", Message: "must not be negative"}
	}
	switch r.Sort {
	case "", SortDefault:
		return nil
	}
	return &registrystore.ValidationError{Field: "sort", Message: fmt.Sprintf("unsupported sort %q", r.Sort)}
}

// Adapter answers conversation list requests from the local cache or from a
// remote service with the same contract.
type Adapter struct {
	mode      string
	engine    *query.Engine
	remoteURL string
	client    *http.Client
}

// New creates an Adapter for cfg.AdapterMode. Local mode requires engine.
func New(cfg *config.Config, engine *query.Engine) (*Adapter, error) {
	a := &Adapter{mode: cfg.AdapterMode, engine: engine}
	switch cfg.AdapterMode {
	case config.AdapterModeLocal:
		if engine == nil {
			return nil, fmt.Errorf("adapter: local mode needs a query engine")
		}
	case config.AdapterModeRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("adapter: remote mode needs --remote-url")
		}
		a.remoteURL = strings.TrimRight(cfg.RemoteURL, "/")
		a.client = &http.Client{Timeout: cfg.RemoteTimeout}
	default:
		return nil, fmt.Errorf("adapter: unknown mode %q (local|remote)", cfg.AdapterMode)
	}
	return a, nil
}

// Mode returns "local" or "remote".
func (a *Adapter) Mode() string { return a.mode }

// FetchConversations returns one page of conversations.
func (a *Adapter) FetchConversations(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if a.mode == config.AdapterModeRemote {
		return a.fetchRemote(ctx, req)
	}
	page, err := a.engine.Query(ctx, req.Filter, req.PageIDs, req.Limit, req.Cursor)
	if err != nil {
		return nil, err
	}
	return FromPage(page), nil
}

// FromPage flattens a query page into the ordered response shape.
func FromPage(page *query.Page) *Response {
	resp := &Response{
		Conversations: make([]model.Conversation, 0, len(page.Order)),
		NextCursor:    page.NextCursor,
	}
	for _, id := range page.Order {
		resp.Conversations = append(resp.Conversations, page.Records[id])
	}
	return resp
}

func (a *Adapter) fetchRemote(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.remoteURL+"/v1/conversations/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &registrystore.UnavailableError{Store: "remote", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read remote response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, &registrystore.ValidationError{Field: "request", Message: remoteMessage(data)}
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		return nil, &registrystore.UnavailableError{Store: "remote", Err: fmt.Errorf("%s: %s", resp.Status, remoteMessage(data))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("remote query failed: %s: %s", resp.Status, remoteMessage(data))
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode remote response: %w", err)
	}
	if out.Conversations == nil {
		out.Conversations = []model.Conversation{}
	}
	log.Debug("Remote query", "url", a.remoteURL, "count", len(out.Conversations))
	return &out, nil
}

// remoteMessage extracts {"error": "..."} from a response body, falling back
// to the raw text.
func remoteMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
