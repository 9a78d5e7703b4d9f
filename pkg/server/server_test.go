package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/elonfeng/trendcollector/internal/logging"
	"github.com/elonfeng/trendcollector/internal/scheduler"
	"github.com/elonfeng/trendcollector/internal/store"
	"github.com/elonfeng/trendcollector/pkg/alert"
	"github.com/elonfeng/trendcollector/pkg/cache"
	"github.com/elonfeng/trendcollector/pkg/content"
	"github.com/elonfeng/trendcollector/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store *store.SQLiteStore
	sched *scheduler.Scheduler
	srv   *Server
	http  *httptest.Server
}

type envOpts struct {
	sources   []source.Source
	generator *content.Generator
	alerts    *alert.Manager
	cache     cache.Cache
}

func newTestEnv(t *testing.T, o envOpts) *testEnv {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sched := scheduler.New(st, o.sources, nil, o.cache, logging.Discard(), scheduler.Options{KeepUnclassified: true})
	srv := New(st, sched, o.generator, o.alerts, o.cache, logging.Discard(), Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{store: st, sched: sched, srv: srv, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.http.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error object in %v", body)
	return e["code"].(string)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	code, body := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
	sched := body["scheduler"].(map[string]any)
	assert.Equal(t, "idle", sched["state"])
}

func TestCollectThenTrends(t *testing.T) {
	env := newTestEnv(t, envOpts{sources: []source.Source{
		source.NewStatic(source.SourceGoogle, source.Texts("a", "b", "c")...),
		source.NewFailing(source.SourceBing, errors.New("blocked")),
	}})

	code, body := env.do(t, http.MethodPost, "/collect", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["run_id"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, []any{"a", "b", "c"}, summary["google"])
	assert.Equal(t, []any{"error collecting trends: blocked"}, summary["bing"])

	code, body = env.do(t, http.MethodGet, "/trends?limit=2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])
	trends := body["trends"].([]any)
	first := trends[0].(map[string]any)
	assert.Equal(t, "c", first["topic"])
	assert.Equal(t, "google", first["source"])
	assert.Nil(t, first["niche"])

	code, body = env.do(t, http.MethodGet, "/trends/latest", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["google"], 3)
	assert.Equal(t, []any{}, body["tiktok"])
	assert.Contains(t, body, "timestamp")

	code, body = env.do(t, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
}

func TestTrends_BadLimit(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	code, body := env.do(t, http.MethodGet, "/trends?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))
	assert.Equal(t, "error", body["status"])
}

func TestByNiche(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	p := "probate"
	_, err := env.store.SaveTrends(context.Background(), store.Batch{Trends: []store.NewTrend{
		{Source: source.SourceReddit, Topic: "executor duties", Niche: &p},
		{Source: source.SourceReddit, Topic: "unrelated"},
	}})
	require.NoError(t, err)

	code, body := env.do(t, http.MethodGet, "/trends/by-niche", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	code, body = env.do(t, http.MethodGet, "/trends/by-niche?niche=Probate", nil)
	require.Equal(t, http.StatusOK, code)
	reddit := body["reddit"].([]any)
	require.Len(t, reddit, 1)
	assert.Equal(t, "executor duties", reddit[0].(map[string]any)["topic"])

	code, body = env.do(t, http.MethodGet, "/niches", nil)
	require.Equal(t, http.StatusOK, code)
	niches := body["niches"].([]any)
	require.Len(t, niches, 1)
	assert.Equal(t, "probate", niches[0].(map[string]any)["niche"])
}

func TestTrends_CachedUntilNextCycle(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	env := newTestEnv(t, envOpts{
		cache:   c,
		sources: []source.Source{source.NewStatic(source.SourceTikTok, source.Texts("fresh")...)},
	})
	_, err = env.store.SaveTrends(context.Background(), store.Batch{Trends: []store.NewTrend{
		{Source: source.SourceGoogle, Topic: "old"},
	}})
	require.NoError(t, err)

	_, body := env.do(t, http.MethodGet, "/trends", nil)
	assert.EqualValues(t, 1, body["count"])
	assert.True(t, mr.Exists("trends:list:0"))

	// A direct write bypasses the cache, so the stale answer is served.
	_, err = env.store.SaveTrends(context.Background(), store.Batch{Trends: []store.NewTrend{
		{Source: source.SourceGoogle, Topic: "direct"},
	}})
	require.NoError(t, err)
	_, body = env.do(t, http.MethodGet, "/trends", nil)
	assert.EqualValues(t, 1, body["count"])

	// A collection cycle purges it.
	code, _ := env.do(t, http.MethodPost, "/collect", nil)
	require.Equal(t, http.StatusOK, code)
	_, body = env.do(t, http.MethodGet, "/trends", nil)
	assert.EqualValues(t, 3, body["count"])
}

func TestQueue_Lifecycle(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	code, body := env.do(t, http.MethodPost, "/queue/add", map[string]any{
		"niche":    "probate",
		"headline": "Inherited a home?",
		"post":     "Here is the plan.",
		"hashtags": "#probate #denver",
	})
	require.Equal(t, http.StatusOK, code)
	item := body["item"].(map[string]any)
	assert.Equal(t, "draft", item["status"])
	assert.Equal(t, []any{"#probate", "#denver"}, item["hashtags"])
	assert.Equal(t, "", item["script30"])
	id := item["id"].(float64)

	code, body = env.do(t, http.MethodGet, "/queue/list", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = env.do(t, http.MethodPost, "/queue/status", map[string]any{"id": id, "status": "ready"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["item"].(map[string]any)["status"])

	code, body = env.do(t, http.MethodGet, "/queue/list?status=ready", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["items"], 1)

	code, body = env.do(t, http.MethodPost, "/queue/publish", map[string]any{"id": id})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["formatted"], "Inherited a home?")
	assert.Contains(t, body["formatted"], "#probate, #denver")
	assert.Equal(t, "published", body["item"].(map[string]any)["status"])
}

func TestQueueAdd_NormalizesStatus(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	code, body := env.do(t, http.MethodPost, "/queue/add", map[string]any{
		"headline": "Ready to go",
		"status":   " Ready ",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ready", body["item"].(map[string]any)["status"])

	code, body = env.do(t, http.MethodGet, "/queue/list?status=READY", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])
}

func TestQueueList_ReturnsAllItemsWithoutLimit(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	ctx := context.Background()

	const total = store.DefaultLimit + 5
	for i := 0; i < total; i++ {
		_, err := env.store.AddQueueItem(ctx, store.NewQueueItem{Copy: content.Copy{Headline: "post"}})
		require.NoError(t, err)
	}

	code, body := env.do(t, http.MethodGet, "/queue/list", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, total, body["count"])

	code, body = env.do(t, http.MethodGet, "/queue/list?limit=3", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, body["count"])
}

func TestQueue_Errors(t *testing.T) {
	env := newTestEnv(t, envOpts{})

	code, body := env.do(t, http.MethodPost, "/queue/add", map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/queue/add", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/queue/status", map[string]any{"status": "ready"})
	assert.Equal(t, http.StatusBadRequest, code)
	fields := body["error"].(map[string]any)["fields"].(map[string]any)
	assert.Contains(t, fields, "id")

	code, body = env.do(t, http.MethodPost, "/queue/status", map[string]any{"id": 1, "status": "archived"})
	assert.Equal(t, http.StatusBadRequest, code)
	fields = body["error"].(map[string]any)["fields"].(map[string]any)
	assert.Contains(t, fields, "status")

	code, body = env.do(t, http.MethodPost, "/queue/status", map[string]any{"id": 999, "status": "ready"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/queue/publish", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	code, body = env.do(t, http.MethodPost, "/queue/publish", map[string]any{"id": 999})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	code, body = env.do(t, http.MethodGet, "/queue/list?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, body))

	code, body = env.do(t, http.MethodGet, "/queue/publish", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", errorCode(t, body))
}

func TestQueuePublish_Notifies(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n alert.Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err == nil && n.Title == "Go live" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	env := newTestEnv(t, envOpts{alerts: alert.NewManager([]alert.Notifier{alert.NewWebhook(hook.URL, "")})})

	item, err := env.store.AddQueueItem(context.Background(), store.NewQueueItem{Copy: content.Copy{Headline: "Go live"}})
	require.NoError(t, err)

	code, _ := env.do(t, http.MethodPost, "/queue/publish", map[string]any{"id": item.ID})
	require.Equal(t, http.StatusOK, code)

	env.srv.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f fakeCompleter) Complete(context.Context, string) (string, error) {
	return f.reply, f.err
}

func TestGenerate(t *testing.T) {
	gen := content.NewGenerator(fakeCompleter{reply: "Headline\n\nThumb\n\n#a #b\n\nPost\n\nCTA\n\nScript"})
	env := newTestEnv(t, envOpts{generator: gen})

	code, body := env.do(t, http.MethodPost, "/content/generate", map[string]any{
		"trend": "selling a parent's home", "niche": "senior-care", "enqueue": true,
	})
	require.Equal(t, http.StatusOK, code)
	c := body["content"].(map[string]any)
	assert.Equal(t, "Headline", c["headline"])
	assert.Equal(t, "Script", c["script30"])

	item := body["item"].(map[string]any)
	assert.Equal(t, "senior-care", item["niche"])
	assert.Equal(t, "draft", item["status"])

	code, body = env.do(t, http.MethodPost, "/content/generate", map[string]any{"trend": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"].(map[string]any)["fields"], "niche")
}

func TestGenerate_Unavailable(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	code, body := env.do(t, http.MethodPost, "/content/generate", map[string]any{"trend": "x", "niche": "y"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "LLM_UNAVAILABLE", errorCode(t, body))

	failing := newTestEnv(t, envOpts{generator: content.NewGenerator(fakeCompleter{err: errors.New("503 from provider")})})
	code, body = failing.do(t, http.MethodPost, "/content/generate", map[string]any{"trend": "x", "niche": "y"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "UPSTREAM_ERROR", errorCode(t, body))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, envOpts{})
	env.do(t, http.MethodGet, "/health", nil)

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "trendcollector_http_requests_total")
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	srv := New(st, nil, nil, nil, nil, logging.Discard(), Options{Port: 18099})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
