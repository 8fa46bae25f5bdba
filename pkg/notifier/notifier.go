// Package notifier delivers lifecycle events to an external webhook.
// Delivery is best effort: a failed or slow webhook never blocks the
// lifecycle engine, it only shows up in the metrics.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Naveen-6087/sui-tma/pkg/logger"
	"github.com/Naveen-6087/sui-tma/pkg/metrics"
	"github.com/Naveen-6087/sui-tma/pkg/models"
)

const deliveryTimeout = 5 * time.Second

type Notifier struct {
	endpoint string
	client   *http.Client
	logger   logger.Logger
}

// New creates a webhook notifier. An empty endpoint disables delivery
// entirely, which is the default for local development.
func New(endpoint string, log logger.Logger) *Notifier {
	return &Notifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: deliveryTimeout},
		logger:   log,
	}
}

// Enabled reports whether a webhook endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n.endpoint != ""
}

// Notify posts a single lifecycle event to the webhook. Errors are
// logged and counted, never returned: the caller has no recourse.
func (n *Notifier) Notify(ctx context.Context, ev models.LifecycleEvent) {
	if !n.Enabled() {
		return
	}
	if err := n.deliver(ctx, ev); err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		n.logger.ErrorWith(logger.Notifier, "Webhook delivery failed for intent %s: %v", ev.IntentID, err)
		return
	}
	metrics.NotificationsSent.WithLabelValues("delivered").Inc()
}

func (n *Notifier) deliver(ctx context.Context, ev models.LifecycleEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Run consumes events until the channel closes or the context is
// cancelled. It is the fan-out sink wired to the registry's event
// stream alongside the audit journal.
func (n *Notifier) Run(ctx context.Context, events <-chan models.LifecycleEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.Notify(ctx, ev)
		}
	}
}
