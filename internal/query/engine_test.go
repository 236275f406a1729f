package query_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/plugin/store/memory"
	"github.com/chirino/conversation-cache/internal/query"
	registrystore "github.com/chirino/conversation-cache/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conv(page, client string, unread int, lastMessageTime *int64) model.Conversation {
	return model.Conversation{
		ID:              model.ConversationID(page, client),
		PageID:          page,
		ClientID:        client,
		UnreadCount:     unread,
		LastMessageTime: lastMessageTime,
	}
}

func seed(t *testing.T, records ...model.Conversation) *query.Engine {
	t.Helper()
	s := memory.New()
	require.NoError(t, s.BulkUpsert(context.Background(), records))
	return query.NewEngine(s)
}

func TestQuerySortsUnreadThenRecency(t *testing.T) {
	ctx := context.Background()
	e := seed(t,
		conv("p", "a", 0, model.Ptr[int64](500)),
		conv("p", "b", 2, model.Ptr[int64](100)),
		conv("p", "c", 0, model.Ptr[int64](900)),
	)

	page, err := e.Query(ctx, query.Filter{}, nil, 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p_b", "p_c", "p_a"}, page.Order)
	assert.Nil(t, page.NextCursor)
	assert.Len(t, page.Records, 3)
}

func TestQueryUnreadFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	e := seed(t,
		conv("p", "a", 3, model.Ptr[int64](100)),
		conv("p", "b", 0, model.Ptr[int64](200)),
		conv("p", "c", 1, model.Ptr[int64](300)),
		conv("p", "d", 5, model.Ptr[int64](50)),
	)
	f := query.Filter{UnreadMessage: true}

	first, err := e.Query(ctx, f, nil, 2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p_d", "p_a"}, first.Order)
	require.NotNil(t, first.NextCursor)
	assert.Equal(t, "p_a", *first.NextCursor)

	second, err := e.Query(ctx, f, nil, 2, *first.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, []string{"p_c"}, second.Order)
	assert.Nil(t, second.NextCursor)
}

func TestQueryPaginationIsComplete(t *testing.T) {
	ctx := context.Background()
	var records []model.Conversation
	for i := range 23 {
		var ts *int64
		if i%4 != 0 {
			ts = model.Ptr(int64(i * 10 % 70))
		}
		records = append(records, conv(fmt.Sprintf("p%d", i%3), fmt.Sprintf("c%02d", i), i%3, ts))
	}
	e := seed(t, records...)

	full, err := e.Query(ctx, query.Filter{}, nil, 1000, "")
	require.NoError(t, err)
	require.Len(t, full.Order, 23)

	var walked []string
	cursor := ""
	for range 100 {
		page, err := e.Query(ctx, query.Filter{}, nil, 4, cursor)
		require.NoError(t, err)
		walked = append(walked, page.Order...)
		if page.NextCursor == nil {
			break
		}
		cursor = *page.NextCursor
	}
	assert.Equal(t, full.Order, walked)
}

func TestQueryColdRecordsSortAfterTimestamped(t *testing.T) {
	ctx := context.Background()
	e := seed(t,
		conv("p", "cold", 0, nil),
		conv("p", "zero", 0, model.Ptr[int64](0)),
		conv("p", "warm", 0, model.Ptr[int64](10)),
	)
	page, err := e.Query(ctx, query.Filter{}, nil, 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p_warm", "p_zero", "p_cold"}, page.Order)
}

func TestQueryTiesBreakByID(t *testing.T) {
	ctx := context.Background()
	e := seed(t,
		conv("p", "b", 1, model.Ptr[int64](10)),
		conv("p", "a", 1, model.Ptr[int64](10)),
		conv("p", "c", 1, model.Ptr[int64](10)),
	)
	for range 5 {
		page, err := e.Query(ctx, query.Filter{}, nil, 0, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"p_a", "p_b", "p_c"}, page.Order)
	}
}

func TestQueryEmptyStore(t *testing.T) {
	e := seed(t)
	page, err := e.Query(context.Background(), query.Filter{}, nil, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Order)
	assert.Empty(t, page.Records)
	assert.Nil(t, page.NextCursor)
}

func TestQueryUnknownCursorRestartsFromTop(t *testing.T) {
	ctx := context.Background()
	e := seed(t,
		conv("p", "a", 2, nil),
		conv("p", "b", 1, nil),
	)
	page, err := e.Query(ctx, query.Filter{}, nil, 1, "p_gone")
	require.NoError(t, err)
	assert.Equal(t, []string{"p_a"}, page.Order)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "p_a", *page.NextCursor)
}

func TestQueryCursorAtEndReturnsEmptyPage(t *testing.T) {
	ctx := context.Background()
	e := seed(t, conv("p", "a", 0, nil))
	page, err := e.Query(ctx, query.Filter{}, nil, 5, "p_a")
	require.NoError(t, err)
	assert.Empty(t, page.Order)
	assert.Nil(t, page.NextCursor)
}

func TestQueryLimitValidation(t *testing.T) {
	e := seed(t)
	_, err := e.Query(context.Background(), query.Filter{}, nil, -1, "")
	var ve *registrystore.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "limit", ve.Field)
}

func TestQueryDefaultLimit(t *testing.T) {
	ctx := context.Background()
	var records []model.Conversation
	for i := range 60 {
		records = append(records, conv("p", fmt.Sprintf("c%02d", i), 0, nil))
	}
	e := seed(t, records...)

	page, err := e.Query(ctx, query.Filter{}, nil, 0, "")
	require.NoError(t, err)
	assert.Len(t, page.Order, query.DefaultLimit)
	require.NotNil(t, page.NextCursor)

	s := memory.New()
	require.NoError(t, s.BulkUpsert(ctx, records))
	small, err := query.NewEngine(s, query.WithDefaultLimit(7)).Query(ctx, query.Filter{}, nil, 0, "")
	require.NoError(t, err)
	assert.Len(t, small.Order, 7)
}

func TestQueryRestrictsPages(t *testing.T) {
	ctx := context.Background()
	e := seed(t,
		conv("p1", "a", 0, nil),
		conv("p2", "b", 0, nil),
		conv("p3", "c", 0, nil),
	)
	page, err := e.Query(ctx, query.Filter{}, []string{"p1", "p3"}, 0, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1_a", "p3_c"}, page.Order)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	e := seed(t, conv("p", "a", 0, nil))

	c, err := e.Get(ctx, "p_a")
	require.NoError(t, err)
	assert.Equal(t, "a", c.ClientID)

	_, err = e.Get(ctx, "p_missing")
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

// flakyStore reports itself unavailable for the first few scans.
type flakyStore struct {
	*memory.Store
	failures int
}

func (f *flakyStore) Scan(ctx context.Context, pageIDs []string) ([]model.Conversation, error) {
	if f.failures > 0 {
		f.failures--
		return nil, &registrystore.UnavailableError{Store: "flaky"}
	}
	return f.Store.Scan(ctx, pageIDs)
}

func TestQueryRetriesUnavailableStore(t *testing.T) {
	ctx := context.Background()
	s := &flakyStore{Store: memory.New(), failures: 2}
	require.NoError(t, s.BulkUpsert(ctx, []model.Conversation{conv("p", "a", 0, nil)}))

	page, err := query.NewEngine(s).Query(ctx, query.Filter{}, nil, 0, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p_a"}, page.Order)
	assert.Zero(t, s.failures)
}

type brokenStore struct{ *memory.Store }

func (brokenStore) Scan(context.Context, []string) ([]model.Conversation, error) {
	return nil, errors.New("disk on fire")
}

func TestQueryDoesNotRetryOtherErrors(t *testing.T) {
	_, err := query.NewEngine(brokenStore{memory.New()}).Query(context.Background(), query.Filter{}, nil, 0, "")
	require.EqualError(t, err, "disk on fire")
}
