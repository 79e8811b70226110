// Package notify delivers run summaries to operators. Notifications are
// dispatched to every registered sender (Telegram, Discord) and filtered by
// event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/deltasync/internal/domain"
)

// Event types emitted by the pipeline.
const (
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventMismatch     = "mismatch"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches notifications to one or more Senders. Notify forwards
// only allowed event types and, when a rate limiter is set, at most limit
// notifications per event within window.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger

	limiter domain.RateLimiter
	limit   int
	window  time.Duration
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRateLimit throttles Notify per event type. A zero limit disables it.
func WithRateLimit(rl domain.RateLimiter, limit int, window time.Duration) Option {
	return func(n *Notifier) {
		if rl == nil || limit <= 0 {
			return
		}
		n.limiter = rl
		n.limit = limit
		n.window = window
	}
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger, opts ...Option) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether any sender is registered.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends a notification if event is allowed and not throttled.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.limiter != nil {
		ok, err := n.limiter.Allow(ctx, "notify:"+event, n.limit, n.window)
		if err != nil {
			// Throttle state is unavailable; deliver rather than drop.
			n.logger.WarnContext(ctx, "rate limiter failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		} else if !ok {
			n.logger.InfoContext(ctx, "notification throttled", slog.String("event", event))
			return nil
		}
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender. One failing sender does not stop the rest;
// failures are combined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
