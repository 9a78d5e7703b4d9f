package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elonfeng/trendcollector/internal/metrics"
	"github.com/elonfeng/trendcollector/internal/scheduler"
	"github.com/elonfeng/trendcollector/internal/store"
	"github.com/elonfeng/trendcollector/pkg/cache"
	"github.com/elonfeng/trendcollector/pkg/niche"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"message":   "Trend collector is running",
		"timestamp": time.Now().UTC(),
	}

	if s.collector != nil {
		sched := map[string]any{"state": s.collector.State()}
		if last, ok := s.collector.LastRun(); ok {
			sched["last_run_id"] = last.RunID
			sched["last_collected_at"] = last.CollectedAt
		}
		resp["scheduler"] = sched
	}

	if err := s.store.Ping(r.Context()); err != nil {
		resp["status"] = "error"
		resp["message"] = "database unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, r, http.StatusServiceUnavailable, "COLLECTOR_UNAVAILABLE", "collection is not configured", nil)
		return
	}

	// A client that disconnects must not abort a half-written cycle.
	sum, err := s.collector.Collect(context.WithoutCancel(r.Context()), store.TriggerManual)
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "COLLECTOR_BUSY", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"message":      "Trends collected",
		"run_id":       sum.RunID,
		"collected_at": sum.CollectedAt,
		"records":      sum.Records,
		"summary":      sum.Topics,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"count":  len(runs),
		"runs":   runs,
	})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	key := fmt.Sprintf("%slist:%d", scheduler.TrendCachePrefix, limit)
	s.serveCached(w, r, key, func(ctx context.Context) (any, error) {
		trends, err := s.store.LatestTrends(ctx, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status": "ok",
			"count":  len(trends),
			"trends": trends,
		}, nil
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	key := fmt.Sprintf("%slatest:%d", scheduler.TrendCachePrefix, limit)
	s.serveCached(w, r, key, func(ctx context.Context) (any, error) {
		return s.store.LatestByNiche(ctx, "", limit)
	})
}

func (s *Server) handleByNiche(w http.ResponseWriter, r *http.Request) {
	label := niche.Canonical(r.URL.Query().Get("niche"))
	if label == "" {
		s.handleError(w, r, fieldError("niche", "niche is required"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	key := fmt.Sprintf("%sby-niche:%s:%d", scheduler.TrendCachePrefix, label, limit)
	s.serveCached(w, r, key, func(ctx context.Context) (any, error) {
		return s.store.LatestByNiche(ctx, label, limit)
	})
}

func (s *Server) handleNiches(w http.ResponseWriter, r *http.Request) {
	s.serveCached(w, r, scheduler.TrendCachePrefix+"niches", func(ctx context.Context) (any, error) {
		niches, err := s.store.Niches(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status": "ok",
			"niches": niches,
		}, nil
	})
}

// serveCached answers from the response cache when possible, otherwise
// calls load and caches its JSON encoding. Cache failures only cost a miss.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string, load func(ctx context.Context) (any, error)) {
	ctx := r.Context()

	body, err := s.cache.Get(ctx, key)
	if err == nil {
		metrics.RecordCache(true)
		writeRawJSON(w, http.StatusOK, body)
		return
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache read failed", "key", key, "err", err)
	}
	metrics.RecordCache(false)

	v, err := load(ctx)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	body, err = json.Marshal(v)
	if err != nil {
		s.handleError(w, r, fmt.Errorf("encode response: %w", err))
		return
	}
	if err := s.cache.Set(ctx, key, body, s.opts.CacheTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "err", err)
	}
	writeRawJSON(w, http.StatusOK, body)
}
