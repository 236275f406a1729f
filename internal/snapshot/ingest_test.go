package snapshot_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chirino/conversation-cache/internal/config"
	"github.com/chirino/conversation-cache/internal/merge"
	"github.com/chirino/conversation-cache/internal/model"
	"github.com/chirino/conversation-cache/internal/plugin/store/memory"
	"github.com/chirino/conversation-cache/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/chirino/conversation-cache/internal/plugin/source/file"
	_ "github.com/chirino/conversation-cache/internal/plugin/source/http"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.TempDir = t.TempDir()
	cfg.SnapshotFetchTimeout = 5 * time.Second
	return &cfg
}

func writeArchive(t *testing.T, lines string) string {
	t.Helper()
	data := zipArchive(t, map[string]string{"conversations.jsonb": lines}, "conversations.jsonb")
	path := filepath.Join(t.TempDir(), "snapshot.zip")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestIngestFromFile(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ing := snapshot.NewIngestor(merge.NewMerger(s), testConfig(t))

	path := writeArchive(t,
		"{\"fb_page_id\":\"p\",\"fb_client_id\":\"a\",\"last_message_time\":100,\"unread_message_amount\":2}\n"+
			"{\"fb_page_id\":\"p\"}\n"+
			"garbage\n"+
			"{\"fb_page_id\":\"p\",\"fb_client_id\":\"b\",\"last_message_time\":250}\n")

	res, err := ing.Ingest(ctx, path)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.MergedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, 1, res.Decode.BadLines)
	assert.Equal(t, int64(250), res.NewWatermark)
	assert.Empty(t, res.Diagnostic)

	got, err := s.Get(ctx, "p_a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.UnreadCount)

	again, err := ing.Ingest(ctx, path)
	require.NoError(t, err)
	assert.Zero(t, again.MergedCount)
	assert.Equal(t, int64(250), again.NewWatermark)
}

func TestIngestFetchFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.SetWatermark(ctx, 7))
	ing := snapshot.NewIngestor(merge.NewMerger(s), testConfig(t))

	res, err := ing.Ingest(ctx, filepath.Join(t.TempDir(), "missing.zip"))
	var sfe *snapshot.SourceFetchError
	require.ErrorAs(t, err, &sfe)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Diagnostic)
	assert.Zero(t, res.MergedCount)

	wm, err := s.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), wm)
}

func TestIngestOverHTTP(t *testing.T) {
	ctx := context.Background()
	data := zipArchive(t, map[string]string{"c.jsonl": "{\"pageId\":\"p\",\"clientId\":\"c\",\"lastMessageTime\":5}\n"}, "c.jsonl")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snap.zip" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	s := memory.New()
	ing := snapshot.NewIngestor(merge.NewMerger(s), testConfig(t))

	res, err := ing.Ingest(ctx, srv.URL+"/snap.zip")
	require.NoError(t, err)
	assert.Equal(t, 1, res.MergedCount)

	_, err = ing.Ingest(ctx, srv.URL+"/gone.zip")
	var sfe *snapshot.SourceFetchError
	require.ErrorAs(t, err, &sfe)
	assert.Contains(t, sfe.Error(), "404")
}

func TestSyncChoosesLocationByWatermark(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.URL.RequestURI())
		ts := "20"
		if r.URL.Path == "/full" {
			ts = "10"
		}
		_, _ = w.Write([]byte("{\"pageId\":\"p\",\"clientId\":\"c\",\"lastMessageTime\":" + ts + "}\n"))
	}))
	t.Cleanup(srv.Close)

	cfg.SnapshotURL = srv.URL + "/full"
	cfg.SnapshotIncrementalURL = srv.URL + "/delta?since={since}"

	s := memory.New()
	ing := snapshot.NewIngestor(merge.NewMerger(s), cfg)

	_, err := ing.Sync(ctx)
	require.NoError(t, err)
	_, err = ing.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"/full", "/delta?since=10"}, requested)
	wm, err := s.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), wm)
}

func TestSyncWithoutURL(t *testing.T) {
	ing := snapshot.NewIngestor(merge.NewMerger(memory.New()), testConfig(t))
	_, err := ing.Sync(context.Background())
	assert.Error(t, err)
}

// failingUpsertStore fails the BulkUpsert call numbered failOn (1-based).
type failingUpsertStore struct {
	*memory.Store
	failOn  int
	upserts int
}

func (f *failingUpsertStore) BulkUpsert(ctx context.Context, records []model.Conversation) error {
	f.upserts++
	if f.upserts == f.failOn {
		return errors.New("disk full")
	}
	return f.Store.BulkUpsert(ctx, records)
}

// chunkedArchive holds 5000 recent records followed by one old record, so
// the old record lands in the second merge batch.
func chunkedArchive(t *testing.T) string {
	var b strings.Builder
	for i := range 5000 {
		fmt.Fprintf(&b, "{\"pageId\":\"p\",\"clientId\":\"c%d\",\"lastMessageTime\":%d}\n", i, 1000+i)
	}
	b.WriteString("{\"pageId\":\"p\",\"clientId\":\"old\",\"lastMessageTime\":10}\n")
	return writeArchive(t, b.String())
}

func TestIngestFailureInLaterBatchKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	s := &failingUpsertStore{Store: memory.New(), failOn: 2}
	ing := snapshot.NewIngestor(merge.NewMerger(s), testConfig(t))
	path := chunkedArchive(t)

	_, err := ing.Ingest(ctx, path)
	require.ErrorContains(t, err, "disk full")

	wm, err := s.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Zero(t, wm)

	// The retry merges the record the failed run never wrote. The first batch
	// is already stored, so only the old record counts toward the watermark.
	res, err := ing.Ingest(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.MergedCount)
	assert.Equal(t, int64(10), res.NewWatermark)
	got, err := s.Get(ctx, "p_old")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestIngestAdvancesWatermarkOnceAcrossBatches(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ing := snapshot.NewIngestor(merge.NewMerger(s), testConfig(t))

	res, err := ing.Ingest(ctx, chunkedArchive(t))
	require.NoError(t, err)
	assert.Equal(t, 5001, res.MergedCount)
	assert.Equal(t, int64(5999), res.NewWatermark)

	wm, err := s.GetWatermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5999), wm)
}
