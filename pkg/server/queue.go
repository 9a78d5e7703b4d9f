package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/trendcollector/internal/store"
	"github.com/elonfeng/trendcollector/pkg/alert"
	"github.com/elonfeng/trendcollector/pkg/content"
)

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req store.NewQueueItem
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	req.Trend = trimmedPtr(req.Trend)
	req.Niche = trimmedPtr(req.Niche)
	if req.Status != "" {
		st, err := store.ParseStatus(string(req.Status))
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		req.Status = st
	}

	item, err := s.store.AddQueueItem(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"item":   item,
	})
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	opts := store.QueueListOpts{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := store.ParseStatus(raw)
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		opts.Status = st
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	opts.Limit = limit

	items, err := s.store.ListQueue(r.Context(), opts)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"count":  len(items),
		"items":  items,
	})
}

type statusRequest struct {
	ID     int64  `json:"id" validate:"required,gt=0"`
	Status string `json:"status" validate:"required,oneof=draft ready published"`
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.validate.Struct(req); err != nil {
		s.handleError(w, r, err)
		return
	}

	item, err := s.store.UpdateQueueStatus(r.Context(), req.ID, store.Status(req.Status))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"item":   item,
	})
}

type publishRequest struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

func (s *Server) handleQueuePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.handleError(w, r, err)
		return
	}

	pub, err := s.store.PublishQueueItem(r.Context(), req.ID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.notifyPublished(r.Context(), pub)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"formatted": pub.Text,
		"item":      pub.Item,
	})
}

// notifyPublished broadcasts a publish in the background. Failures are logged.
func (s *Server) notifyPublished(ctx context.Context, pub *store.Published) {
	if !s.alerts.HasNotifiers() {
		return
	}

	n := &alert.Notification{
		ItemID:   pub.Item.ID,
		Title:    pub.Item.Headline,
		Body:     pub.Text,
		Hashtags: pub.Item.Hashtags,
	}
	if pub.Item.Niche != nil {
		n.Niche = *pub.Item.Niche
	}
	if n.Title == "" {
		n.Title = "Untitled post"
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer cancel()
		if err := s.alerts.Broadcast(ctx, n); err != nil {
			s.logger.Warn("publish notification failed", "item", n.ItemID, "err", err)
		}
	}()
}

type generateRequest struct {
	content.Request
	Enqueue bool `json:"enqueue"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.generator.Enabled() {
		s.handleError(w, r, content.ErrNoCompleter)
		return
	}

	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	req.Trend = strings.TrimSpace(req.Trend)
	req.Niche = strings.TrimSpace(req.Niche)
	if err := s.validate.Struct(req); err != nil {
		s.handleError(w, r, err)
		return
	}

	c, err := s.generator.Generate(r.Context(), req.Request)
	if err != nil {
		if errors.Is(err, content.ErrNoCompleter) {
			s.handleError(w, r, err)
			return
		}
		s.logger.Error("content generation failed", "niche", req.Niche, "err", err)
		writeError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "content generation failed", nil)
		return
	}

	resp := map[string]any{
		"status":  "ok",
		"content": c,
	}
	if req.Enqueue {
		item, err := s.store.AddQueueItem(r.Context(), store.NewQueueItem{
			Trend: &req.Trend,
			Niche: &req.Niche,
			Copy:  *c,
		})
		if err != nil {
			s.handleError(w, r, err)
			return
		}
		resp["item"] = item
	}
	writeJSON(w, http.StatusOK, resp)
}

func trimmedPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
