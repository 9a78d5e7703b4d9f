package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EventPublished is the event name sent when a queued post is published.
const EventPublished = "queue.published"

// webhookPayload is the JSON body posted for a published post: the
// notification fields flattened next to the event name and publish time.
type webhookPayload struct {
	Event       string    `json:"event"`
	PublishedAt time.Time `json:"published_at"`
	*Notification
}

// Webhook posts published-post notifications to a generic HTTP endpoint.
// With a secret set, the body is signed in X-Signature-256.
type Webhook struct {
	client *http.Client
	url    string
	secret string
	now    func() time.Time
}

// NewWebhook creates a new generic webhook notifier.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
		now:    time.Now,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(webhookPayload{
		Event:        EventPublished,
		PublishedAt:  w.now().UTC(),
		Notification: n,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload for item %d: %w", n.ItemID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "trendcollector/1.0")
	req.Header.Set("X-Trendcollector-Event", EventPublished)
	if w.secret != "" {
		req.Header.Set("X-Signature-256", "sha256="+sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook for item %d: %w", n.ItemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d for item %d", resp.StatusCode, n.ItemID)
	}
	return nil
}

// sign returns the hex HMAC-SHA256 of body under secret.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
