package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/elonfeng/trendcollector/internal/metrics"
	"github.com/elonfeng/trendcollector/internal/store"
	"github.com/elonfeng/trendcollector/pkg/cache"
	"github.com/elonfeng/trendcollector/pkg/niche"
	"github.com/elonfeng/trendcollector/pkg/source"
	"github.com/elonfeng/trendcollector/pkg/topic"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TrendCachePrefix is the cache key prefix purged after every cycle.
const TrendCachePrefix = "trends:"

// State is the scheduler's current activity.
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
)

// Store is the subset of the store the scheduler writes to.
type Store interface {
	SaveTrends(ctx context.Context, b store.Batch) ([]store.Trend, error)
	RecordRun(ctx context.Context, r store.Run) error
}

// Options tune the collection loop.
type Options struct {
	Interval         time.Duration
	SourceTimeout    time.Duration
	Parallelism      int // zero means unbounded
	RunOnStart       bool
	KeepUnclassified bool
	GroupByNiche     bool
}

// Summary is the outcome of one cycle. Each source maps to the topics it
// produced, or to a single error message when it failed.
type Summary struct {
	RunID       string                         `json:"run_id"`
	Trigger     store.Trigger                  `json:"trigger"`
	CollectedAt time.Time                      `json:"collected_at"`
	Records     int                            `json:"records"`
	Topics      map[source.SourceType][]string `json:"summary"`
}

// Scheduler runs periodic and on-demand collection cycles. At most one
// cycle runs at a time.
type Scheduler struct {
	store      Store
	sources    []source.Source
	classifier niche.Classifier
	cache      cache.Cache
	logger     *log.Logger
	opts       Options
	now        func() time.Time

	// sem holds a token while a cycle runs.
	sem        chan struct{}
	collecting atomic.Bool
	skipped    atomic.Int64

	mu      sync.Mutex
	lastRun *Summary
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new scheduler. A nil classifier leaves every topic
// unclassified and a nil cache disables purging.
func New(
	st Store,
	sources []source.Source,
	classifier niche.Classifier,
	c cache.Cache,
	logger *log.Logger,
	opts Options,
) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 6 * time.Hour
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 30 * time.Second
	}
	if classifier == nil {
		classifier = niche.None{}
	}
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = log.Default()
	}

	srcs := make([]source.Source, len(sources))
	copy(srcs, sources)

	return &Scheduler{
		store:      st,
		sources:    srcs,
		classifier: classifier,
		cache:      c,
		logger:     logger.WithPrefix("scheduler"),
		opts:       opts,
		now:        time.Now,
		sem:        make(chan struct{}, 1),
	}
}

// State reports whether a cycle is running.
func (s *Scheduler) State() State {
	if s.collecting.Load() {
		return StateCollecting
	}
	return StateIdle
}

// Interval returns the timer period.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// LastRun returns the most recent cycle summary, if any.
func (s *Scheduler) LastRun() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return Summary{}, false
	}
	return *s.lastRun, true
}

// Skipped returns how many timer ticks were dropped because a cycle was running.
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Start launches the background loop. Call Stop to end it.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.opts.RunOnStart {
			if _, err := s.Collect(ctx, store.TriggerStartup); err != nil && ctx.Err() == nil {
				s.logger.Error("startup collection failed", "err", err)
			}
		}

		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		s.logger.Info("running", "interval", s.opts.Interval, "sources", len(s.sources))

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
				// Ticks that queued up during the cycle are coalesced.
				select {
				case <-ticker.C:
					s.skip()
				default:
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Collect runs one cycle now. If a cycle is already running, Collect waits
// for it to finish and then runs its own.
func (s *Scheduler) Collect(ctx context.Context, trigger store.Trigger) (*Summary, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for running cycle: %w", ctx.Err())
	}
	defer func() { <-s.sem }()

	return s.runCycle(ctx, trigger), nil
}

func (s *Scheduler) tick(ctx context.Context) {
	select {
	case s.sem <- struct{}{}:
	default:
		s.skip()
		return
	}
	defer func() { <-s.sem }()

	s.runCycle(ctx, store.TriggerSchedule)
}

func (s *Scheduler) skip() {
	s.skipped.Add(1)
	metrics.CyclesSkipped.Inc()
	s.logger.Warn("tick skipped, cycle already running")
}

type fetchResult struct {
	records []source.Record
	err     error
}

func (s *Scheduler) runCycle(ctx context.Context, trigger store.Trigger) *Summary {
	s.collecting.Store(true)
	defer s.collecting.Store(false)

	started := s.now().UTC()
	run := store.Run{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: started,
		Errors:    store.RunErrors{},
	}
	logger := s.logger.With("run", run.ID, "trigger", trigger)
	logger.Info("collecting", "sources", len(s.sources))

	results := s.fetchAll(ctx, logger)

	summary := &Summary{
		RunID:       run.ID,
		Trigger:     trigger,
		CollectedAt: started,
		Topics:      make(map[source.SourceType][]string, len(s.sources)),
	}

	// Writes happen in configured source order.
	for i, src := range s.sources {
		name := src.Name()
		res := results[i]

		if res.err != nil {
			msg := fmt.Sprintf("error collecting trends: %v", res.err)
			summary.Topics[name] = []string{msg}
			run.Errors[string(name)] = msg
			logger.Warn("source failed", "source", name, "err", res.err)
			continue
		}

		trends, topics := s.prepare(ctx, logger, name, res.records)
		saved, err := s.save(ctx, started, trends)
		run.Records += saved
		metrics.RecordSaved(string(name), saved)
		if err != nil {
			msg := fmt.Sprintf("error saving trends: %v", err)
			summary.Topics[name] = []string{msg}
			run.Errors[string(name)] = msg
			metrics.RecordError("save", string(name))
			logger.Error("save failed", "source", name, "err", err)
			continue
		}

		summary.Topics[name] = topics
		logger.Debug("source done", "source", name, "topics", len(topics), "saved", saved)
	}

	run.FinishedAt = s.now().UTC()
	summary.Records = run.Records

	if err := s.store.RecordRun(ctx, run); err != nil {
		logger.Error("record run failed", "err", err)
	}
	if n, err := s.cache.Purge(ctx, TrendCachePrefix); err != nil {
		logger.Warn("cache purge failed", "err", err)
	} else if n > 0 {
		logger.Debug("cache purged", "keys", n)
	}

	metrics.RecordCycle(string(trigger), run.FinishedAt.Sub(started).Seconds())
	logger.Info("collection done",
		"records", run.Records,
		"failed_sources", len(run.Errors),
		"took", run.FinishedAt.Sub(started).Round(time.Millisecond))

	s.mu.Lock()
	s.lastRun = summary
	s.mu.Unlock()

	return summary
}

// fetchAll calls every adapter concurrently. Results are indexed like s.sources.
func (s *Scheduler) fetchAll(ctx context.Context, logger *log.Logger) []fetchResult {
	results := make([]fetchResult, len(s.sources))

	var g errgroup.Group
	if s.opts.Parallelism > 0 {
		g.SetLimit(s.opts.Parallelism)
	}
	for i, src := range s.sources {
		g.Go(func() error {
			results[i] = s.fetch(ctx, src)
			return nil // never fail the group, errors are per source
		})
	}
	_ = g.Wait()

	return results
}

// fetch calls one adapter under the source timeout. An adapter that ignores
// its context is abandoned when the timeout fires.
func (s *Scheduler) fetch(ctx context.Context, src source.Source) fetchResult {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.SourceTimeout)
	defer cancel()

	start := time.Now()
	ch := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fetchResult{err: fmt.Errorf("adapter panic: %v", r)}
			}
		}()
		records, err := src.Collect(fetchCtx)
		ch <- fetchResult{records: records, err: err}
	}()

	var res fetchResult
	select {
	case res = <-ch:
	case <-fetchCtx.Done():
		res = fetchResult{err: fmt.Errorf("timed out after %s: %w", s.opts.SourceTimeout, fetchCtx.Err())}
	}

	metrics.RecordAdapter(string(src.Name()), time.Since(start).Seconds(), res.err)
	return res
}

// prepare normalizes and classifies records. It returns the trends to store
// and the topic list reported in the summary.
func (s *Scheduler) prepare(ctx context.Context, logger *log.Logger, name source.SourceType, records []source.Record) ([]store.NewTrend, []string) {
	trends := make([]store.NewTrend, 0, len(records))
	topics := make([]string, 0, len(records))

	for _, rec := range records {
		t, err := topic.Normalize(rec)
		if err != nil {
			metrics.RecordError("normalize", string(name))
			logger.Debug("record skipped", "source", name, "err", err)
			continue
		}
		topics = append(topics, t)

		labels, err := s.classifier.Classify(ctx, t)
		if err != nil {
			metrics.RecordError("classify", string(name))
			logger.Warn("classify failed, storing unclassified", "source", name, "err", err)
			labels = nil
		}

		if len(labels) == 0 {
			if s.opts.KeepUnclassified {
				trends = append(trends, store.NewTrend{Source: name, Topic: t})
			}
			continue
		}
		for _, label := range labels {
			n := label
			trends = append(trends, store.NewTrend{Source: name, Topic: t, Niche: &n})
		}
	}
	return trends, topics
}

// save writes trends as one batch, or one batch per niche when grouping is
// enabled. It returns how many rows were written.
func (s *Scheduler) save(ctx context.Context, collectedAt time.Time, trends []store.NewTrend) (int, error) {
	if len(trends) == 0 {
		return 0, nil
	}

	var batches []store.Batch
	if s.opts.GroupByNiche {
		batches = groupByNiche(collectedAt, trends)
	} else {
		batches = []store.Batch{{CollectedAt: collectedAt, Trends: trends}}
	}

	saved := 0
	for _, b := range batches {
		rows, err := s.store.SaveTrends(ctx, b)
		if err != nil {
			return saved, err
		}
		saved += len(rows)
	}
	return saved, nil
}

// groupByNiche splits trends into batches keyed by niche, in first-seen
// order. Unclassified trends form their own batch.
func groupByNiche(collectedAt time.Time, trends []store.NewTrend) []store.Batch {
	var (
		index = map[string]int{}
		out   []store.Batch
	)
	for _, t := range trends {
		key := "\x00unclassified"
		if t.Niche != nil {
			key = *t.Niche
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, store.Batch{CollectedAt: collectedAt})
		}
		out[i].Trends = append(out[i].Trends, t)
	}
	return out
}
