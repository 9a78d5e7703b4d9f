package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/elonfeng/trendcollector/internal/logging"
	"github.com/elonfeng/trendcollector/internal/store"
	"github.com/elonfeng/trendcollector/pkg/cache"
	"github.com/elonfeng/trendcollector/pkg/niche"
	"github.com/elonfeng/trendcollector/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCollect_FailingAdapterIsIsolated(t *testing.T) {
	st := newTestStore(t)
	sources := []source.Source{
		source.NewStatic(source.SourceGoogle, source.Texts("alpha", "beta", "gamma")...),
		source.NewFailing(source.SourceYouTube, errors.New("quota exceeded")),
	}
	s := New(st, sources, niche.None{}, nil, logging.Discard(), Options{KeepUnclassified: true})

	sum, err := s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, sum.Topics[source.SourceGoogle])
	require.Len(t, sum.Topics[source.SourceYouTube], 1)
	assert.Equal(t, "error collecting trends: quota exceeded", sum.Topics[source.SourceYouTube][0])
	assert.Equal(t, 3, sum.Records)
	assert.NotEmpty(t, sum.RunID)

	latest, err := st.LatestTrends(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	for _, tr := range latest {
		assert.Equal(t, source.SourceGoogle, tr.Source)
		assert.True(t, tr.CollectedAt.Equal(sum.CollectedAt))
		assert.Nil(t, tr.Niche)
	}

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sum.RunID, runs[0].ID)
	assert.Equal(t, 3, runs[0].Records)
	assert.Contains(t, runs[0].Errors, "youtube")
	assert.Equal(t, StateIdle, s.State())
}

func TestCollect_ClassifiesIntoOneRecordPerLabel(t *testing.T) {
	st := newTestStore(t)
	sources := []source.Source{
		source.NewStatic(source.SourceReddit,
			source.Structured{"title": "selling an inherited house"},
			source.PlainText("weather tomorrow"),
			source.PlainText("   "),
		),
	}
	classifier := niche.NewKeyword(map[string][]string{
		"probate":      {"inherited"},
		"home-selling": {"selling"},
	}, nil)

	s := New(st, sources, classifier, nil, logging.Discard(), Options{KeepUnclassified: true})
	sum, err := s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, []string{"selling an inherited house", "weather tomorrow"}, sum.Topics[source.SourceReddit])
	assert.Equal(t, 3, sum.Records)

	g, err := st.LatestByNiche(context.Background(), "probate", 10)
	require.NoError(t, err)
	require.Len(t, g.Sources[source.SourceReddit], 1)
	assert.Equal(t, "selling an inherited house", g.Sources[source.SourceReddit][0].Topic)

	niches, err := st.Niches(context.Background())
	require.NoError(t, err)
	assert.Len(t, niches, 2)
}

func TestCollect_DropUnclassified(t *testing.T) {
	st := newTestStore(t)
	sources := []source.Source{source.NewStatic(source.SourceBing, source.Texts("nothing relevant")...)}

	s := New(st, sources, niche.None{}, nil, logging.Discard(), Options{KeepUnclassified: false})
	sum, err := s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, []string{"nothing relevant"}, sum.Topics[source.SourceBing])
	assert.Zero(t, sum.Records)
}

func TestCollect_ClassifierErrorStoresUnclassified(t *testing.T) {
	st := newTestStore(t)
	sources := []source.Source{source.NewStatic(source.SourceTikTok, source.Texts("a", "b")...)}
	failing := niche.Func(func(context.Context, string) ([]string, error) {
		return nil, errors.New("llm down")
	})

	s := New(st, sources, failing, nil, logging.Discard(), Options{KeepUnclassified: true})
	sum, err := s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Records)
	assert.Equal(t, []string{"a", "b"}, sum.Topics[source.SourceTikTok])
}

type failingStore struct {
	*store.SQLiteStore
	failFor source.SourceType
}

func (f *failingStore) SaveTrends(ctx context.Context, b store.Batch) ([]store.Trend, error) {
	if len(b.Trends) > 0 && b.Trends[0].Source == f.failFor {
		return nil, errors.New("disk full")
	}
	return f.SQLiteStore.SaveTrends(ctx, b)
}

func TestCollect_SaveFailureMarksSource(t *testing.T) {
	st := &failingStore{SQLiteStore: newTestStore(t), failFor: source.SourceBing}
	sources := []source.Source{
		source.NewStatic(source.SourceGoogle, source.Texts("kept")...),
		source.NewStatic(source.SourceBing, source.Texts("lost")...),
	}

	s := New(st, sources, nil, nil, logging.Discard(), Options{KeepUnclassified: true})
	sum, err := s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, []string{"kept"}, sum.Topics[source.SourceGoogle])
	assert.Equal(t, []string{"error saving trends: disk full"}, sum.Topics[source.SourceBing])

	latest, err := st.LatestTrends(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "kept", latest[0].Topic)
}

func TestCollect_GroupByNicheSharesTimestamp(t *testing.T) {
	st := newTestStore(t)
	sources := []source.Source{
		source.NewStatic(source.SourceGoogle, source.Texts("probate help", "senior living", "random")...),
	}
	classifier := niche.NewKeyword(map[string][]string{
		"probate":     {"probate"},
		"senior-care": {"senior"},
	}, nil)

	s := New(st, sources, classifier, nil, logging.Discard(), Options{KeepUnclassified: true, GroupByNiche: true})
	sum, err := s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Records)

	latest, err := st.LatestTrends(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	for _, tr := range latest {
		assert.True(t, tr.CollectedAt.Equal(sum.CollectedAt))
	}
}

type slowSource struct {
	name source.SourceType
}

func (s slowSource) Name() source.SourceType { return s.name }

func (s slowSource) Collect(ctx context.Context) ([]source.Record, error) {
	time.Sleep(time.Second)
	return source.Texts("too late"), nil
}

func TestCollect_AdapterTimeout(t *testing.T) {
	st := newTestStore(t)
	sources := []source.Source{
		slowSource{name: source.SourceReddit},
		source.NewStatic(source.SourceGoogle, source.Texts("fast")...),
	}

	s := New(st, sources, nil, nil, logging.Discard(), Options{SourceTimeout: 50 * time.Millisecond, KeepUnclassified: true})
	sum, err := s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)

	require.Len(t, sum.Topics[source.SourceReddit], 1)
	assert.Contains(t, sum.Topics[source.SourceReddit][0], "error collecting trends: timed out")
	assert.Equal(t, []string{"fast"}, sum.Topics[source.SourceGoogle])
}

type panicSource struct{}

func (panicSource) Name() source.SourceType { return source.SourceTikTok }

func (panicSource) Collect(context.Context) ([]source.Record, error) { panic("boom") }

func TestCollect_AdapterPanicIsIsolated(t *testing.T) {
	s := New(newTestStore(t), []source.Source{panicSource{}}, nil, nil, logging.Discard(), Options{})
	sum, err := s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, []string{"error collecting trends: adapter panic: boom"}, sum.Topics[source.SourceTikTok])
}

func TestCollect_PurgesTrendCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.Set(context.Background(), TrendCachePrefix+"latest:50", []byte("stale"), time.Hour))
	require.NoError(t, c.Set(context.Background(), "other", []byte("keep"), time.Hour))

	s := New(newTestStore(t), []source.Source{source.NewStatic(source.SourceGoogle, source.Texts("x")...)}, nil, c, logging.Discard(), Options{KeepUnclassified: true})
	_, err = s.Collect(context.Background(), store.TriggerManual)
	require.NoError(t, err)

	assert.False(t, mr.Exists(TrendCachePrefix+"latest:50"))
	assert.True(t, mr.Exists("other"))
}

// blockingSource blocks in Collect until release is closed.
type blockingSource struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) Name() source.SourceType { return source.SourceGoogle }

func (b *blockingSource) Collect(ctx context.Context) ([]source.Record, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return source.Texts("topic"), nil
}

func TestScheduler_TicksCoalesceWhileCollecting(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	s := New(newTestStore(t), []source.Source{src}, nil, nil, logging.Discard(), Options{
		Interval:         10 * time.Millisecond,
		SourceTimeout:    5 * time.Second,
		KeepUnclassified: true,
	})

	manual := make(chan *Summary, 1)
	go func() {
		sum, _ := s.Collect(context.Background(), store.TriggerManual)
		manual <- sum
	}()
	<-src.started
	assert.Equal(t, StateCollecting, s.State())

	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(1), src.calls.Load(), "no cycle may start while one is running")
	assert.Positive(t, s.Skipped())

	close(src.release)
	sum := <-manual
	require.NotNil(t, sum)
	assert.Equal(t, []string{"topic"}, sum.Topics[source.SourceGoogle])

	assert.Eventually(t, func() bool { return src.calls.Load() > 1 }, time.Second, 10*time.Millisecond)
	s.Stop()

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.NotEmpty(t, last.RunID)
}

func TestScheduler_OnDemandQueuesBehindRunningCycle(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	s := New(newTestStore(t), []source.Source{src}, nil, nil, logging.Discard(), Options{SourceTimeout: 5 * time.Second, KeepUnclassified: true})

	first := make(chan *Summary, 1)
	go func() {
		sum, _ := s.Collect(context.Background(), store.TriggerManual)
		first <- sum
	}()
	<-src.started

	second := make(chan *Summary, 1)
	go func() {
		sum, _ := s.Collect(context.Background(), store.TriggerManual)
		second <- sum
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load())

	close(src.release)
	a, b := <-first, <-second
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestCollect_ContextCancelledWhileWaiting(t *testing.T) {
	src := &blockingSource{started: make(chan struct{}), release: make(chan struct{})}
	s := New(newTestStore(t), []source.Source{src}, nil, nil, logging.Discard(), Options{SourceTimeout: 5 * time.Second})

	go s.Collect(context.Background(), store.TriggerManual)
	<-src.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Collect(ctx, store.TriggerManual)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(src.release)
}

func TestScheduler_StartRunsStartupCycle(t *testing.T) {
	st := newTestStore(t)
	s := New(st, []source.Source{source.NewStatic(source.SourceBing, source.Texts("boot")...)}, nil, nil, logging.Discard(), Options{
		Interval:         time.Hour,
		RunOnStart:       true,
		KeepUnclassified: true,
	})

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		_, ok := s.LastRun()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	runs, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.TriggerStartup, runs[0].Trigger)
}

func TestGroupByNiche(t *testing.T) {
	p, s := "probate", "senior-care"
	at := time.Now()
	batches := groupByNiche(at, []store.NewTrend{
		{Source: source.SourceGoogle, Topic: "a", Niche: &p},
		{Source: source.SourceGoogle, Topic: "b"},
		{Source: source.SourceGoogle, Topic: "c", Niche: &s},
		{Source: source.SourceGoogle, Topic: "d", Niche: &p},
	})

	require.Len(t, batches, 3)
	assert.Len(t, batches[0].Trends, 2)
	assert.Equal(t, "b", batches[1].Trends[0].Topic)
	assert.Equal(t, "c", batches[2].Trends[0].Topic)
	for _, b := range batches {
		assert.Equal(t, at, b.CollectedAt)
	}
}
