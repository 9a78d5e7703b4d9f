package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/elonfeng/trendcollector/internal/config"
	"github.com/elonfeng/trendcollector/internal/logging"
	"github.com/elonfeng/trendcollector/internal/scheduler"
	"github.com/elonfeng/trendcollector/internal/store"
	"github.com/elonfeng/trendcollector/pkg/alert"
	"github.com/elonfeng/trendcollector/pkg/cache"
	"github.com/elonfeng/trendcollector/pkg/content"
	"github.com/elonfeng/trendcollector/pkg/llm"
	"github.com/elonfeng/trendcollector/pkg/niche"
	"github.com/elonfeng/trendcollector/pkg/server"
	"github.com/elonfeng/trendcollector/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// app holds the shared dependencies every command builds from config.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	db     *store.SQLiteStore
	llm    *llm.Client
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db}
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		a.llm = llm.NewClient(llm.Config{
			Provider:          cfg.LLM.Provider,
			Model:             cfg.LLM.Model,
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			Temperature:       cfg.LLM.Temperature,
			MaxTokens:         cfg.LLM.MaxTokens,
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			Timeout:           cfg.LLM.ParseTimeout(),
		})
		logger.Info("llm enabled", "provider", a.llm.Provider(), "model", a.llm.Model())
	}
	return a, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) buildSources() []source.Source {
	s := a.cfg.Sources
	var sources []source.Source

	if s.Google.Enabled {
		sources = append(sources, source.NewGoogle(s.Google.Topics))
	}
	if s.YouTube.Enabled {
		sources = append(sources, source.NewYouTube(s.YouTube.Queries, s.YouTube.Topics))
	}
	if s.Reddit.Enabled {
		sources = append(sources, source.NewReddit(s.Reddit.Subreddits, s.Reddit.Topics))
	}
	if s.Bing.Enabled {
		sources = append(sources, source.NewBing(s.Bing.Market, s.Bing.Topics))
	}
	if s.TikTok.Enabled {
		sources = append(sources, source.NewTikTok(s.TikTok.Topics))
	}

	return sources
}

func (a *app) buildClassifier() (niche.Classifier, error) {
	c := a.cfg.Classifier
	switch strings.ToLower(c.Kind) {
	case "", "none":
		return niche.None{}, nil
	case "keyword":
		return niche.NewKeyword(c.Niches, c.Exclude), nil
	case "llm":
		if a.llm == nil {
			a.logger.Warn("llm classifier requested but llm is not configured, falling back to keywords")
			return niche.NewKeyword(c.Niches, c.Exclude), nil
		}
		return niche.NewLLM(a.llm, niche.NewKeyword(c.Niches, c.Exclude).Labels()), nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", c.Kind)
	}
}

func (a *app) buildCache(ctx context.Context) cache.Cache {
	if a.cfg.Cache.RedisURL == "" {
		return cache.Nop{}
	}
	c, err := cache.NewRedis(ctx, a.cfg.Cache.RedisURL)
	if err != nil {
		a.logger.Warn("redis unavailable, response cache disabled", "err", err)
		return cache.Nop{}
	}
	return c
}

func (a *app) buildAlertManager() *alert.Manager {
	cfg := a.cfg.Alerts
	var notifiers []alert.Notifier

	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Slack.WebhookURL))
	}
	if cfg.Discord.Enabled && cfg.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Discord.WebhookURL))
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func (a *app) buildScheduler(sources []source.Source, c cache.Cache) (*scheduler.Scheduler, error) {
	classifier, err := a.buildClassifier()
	if err != nil {
		return nil, err
	}
	sc := a.cfg.Schedule
	return scheduler.New(a.db, sources, classifier, c, a.logger, scheduler.Options{
		Interval:         sc.ParseCollectInterval(),
		SourceTimeout:    sc.ParseSourceTimeout(),
		Parallelism:      sc.Parallelism,
		RunOnStart:       sc.RunOnStart,
		KeepUnclassified: sc.KeepUnclassified,
		GroupByNiche:     sc.GroupByNiche,
	}), nil
}

func runCollect(ctx context.Context, filterSources []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sources := a.buildSources()
	if len(filterSources) > 0 {
		wanted := make(map[string]bool)
		for _, s := range filterSources {
			wanted[strings.ToLower(strings.TrimSpace(s))] = true
		}
		var picked []source.Source
		for _, s := range sources {
			if wanted[string(s.Name())] {
				picked = append(picked, s)
			}
		}
		if len(picked) == 0 {
			return fmt.Errorf("no matching sources for: %s", strings.Join(filterSources, ", "))
		}
		sources = picked
	}

	c := a.buildCache(ctx)
	defer c.Close()

	sched, err := a.buildScheduler(sources, c)
	if err != nil {
		return err
	}
	sum, err := sched.Collect(ctx, store.TriggerManual)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	for _, s := range sources {
		topics := sum.Topics[s.Name()]
		fmt.Fprintf(os.Stderr, "%s: %d topics\n", s.Name(), len(topics))
		for _, t := range topics {
			fmt.Fprintf(os.Stderr, "  %s\n", t)
		}
	}
	fmt.Fprintf(os.Stderr, "\nrun %s: stored %d records from %d sources\n", sum.RunID, sum.Records, len(sources))
	return nil
}

func runTrends(ctx context.Context, jsonOutput bool, nicheLabel string, limit int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var trends []store.Trend
	if label := niche.Canonical(nicheLabel); label != "" {
		grouped, err := a.db.LatestByNiche(ctx, label, limit)
		if err != nil {
			return fmt.Errorf("list trends: %w", err)
		}
		for _, st := range source.AllSourceTypes() {
			for _, t := range grouped.Sources[st] {
				trends = append(trends, store.Trend{Source: st, Topic: t.Topic, Niche: t.Niche, CollectedAt: t.CollectedAt})
			}
		}
	} else {
		trends, err = a.db.LatestTrends(ctx, limit)
		if err != nil {
			return fmt.Errorf("list trends: %w", err)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trends)
	}

	if len(trends) == 0 {
		fmt.Println("no trends found (try collecting data first: trendcollector collect)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tNICHE\tTOPIC\tCOLLECTED")
	for _, t := range trends {
		label := "-"
		if t.Niche != nil {
			label = *t.Niche
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Source, label, t.Topic, t.CollectedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runServe(ctx context.Context, port int, withScheduler bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	c := a.buildCache(ctx)
	defer c.Close()

	sched, err := a.buildScheduler(a.buildSources(), c)
	if err != nil {
		return err
	}
	if withScheduler {
		sched.Start(ctx)
		defer sched.Stop()
	}

	var gen *content.Generator
	if a.llm != nil {
		gen = content.NewGenerator(a.llm)
	}

	srv := server.New(a.db, sched, gen, a.buildAlertManager(), c, a.logger, server.Options{
		Port:           port,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		CacheTTL:       a.cfg.Cache.ParseTTL(),
	})
	return srv.ListenAndServe(ctx)
}

func runQueueList(ctx context.Context, rawStatus string, limit int, jsonOutput bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := store.QueueListOpts{Limit: limit}
	if rawStatus != "" {
		if opts.Status, err = store.ParseStatus(rawStatus); err != nil {
			return err
		}
	}

	items, err := a.db.ListQueue(ctx, opts)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Println("queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tNICHE\tHEADLINE\tCREATED")
	for _, it := range items {
		label := "-"
		if it.Niche != nil {
			label = *it.Niche
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			it.ID, it.Status, label, llm.Truncate(it.Headline, 60),
			it.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runQueueStatus(ctx context.Context, rawID, rawStatus string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	status, err := store.ParseStatus(rawStatus)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	item, err := a.db.UpdateQueueStatus(ctx, id, status)
	if err != nil {
		return err
	}
	fmt.Printf("item %d is now %s\n", item.ID, item.Status)
	return nil
}

func runQueuePublish(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pub, err := a.db.PublishQueueItem(ctx, id)
	if err != nil {
		return err
	}
	fmt.Println(pub.Text)

	mgr := a.buildAlertManager()
	if mgr.HasNotifiers() {
		n := &alert.Notification{
			ItemID:   pub.Item.ID,
			Title:    pub.Item.Headline,
			Body:     pub.Text,
			Hashtags: pub.Item.Hashtags,
		}
		if pub.Item.Niche != nil {
			n.Niche = *pub.Item.Niche
		}
		if err := mgr.Broadcast(ctx, n); err != nil {
			a.logger.Warn("publish notification failed", "item", id, "err", err)
		}
	}
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}
