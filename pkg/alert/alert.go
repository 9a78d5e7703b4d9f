// Package alert announces published content to chat and webhook destinations.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Notification is the data sent to alert destinations.
type Notification struct {
	ItemID   int64    `json:"item_id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Niche    string   `json:"niche,omitempty"`
	Hashtags []string `json:"hashtags"`
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return m != nil && len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers. Every notifier
// is attempted; failures are joined.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// summary is the short text line shared by chat notifiers.
func (n *Notification) summary() string {
	var parts []string
	if n.Niche != "" {
		parts = append(parts, "Niche: "+n.Niche)
	}
	if len(n.Hashtags) > 0 {
		parts = append(parts, strings.Join(n.Hashtags, " "))
	}
	return strings.Join(parts, " | ")
}

// preview trims body to at most max runes.
func preview(body string, max int) string {
	r := []rune(body)
	if len(r) <= max {
		return body
	}
	return string(r[:max-3]) + "..."
}
