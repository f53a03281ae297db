// Package webhook implements the fan-out notifier for promotion lifecycle
// events, ported from the Python original's
// floe_core/oci/webhooks.py::WebhookNotifier: per-subscriber concurrent,
// non-blocking delivery with event-type filtering and exponential backoff
// retry on 5xx/transport errors.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/obsidian-owl/floe/internal/config"
	"github.com/obsidian-owl/floe/internal/floelog"
	"github.com/obsidian-owl/floe/internal/metrics"
	"github.com/obsidian-owl/floe/internal/tracing"
)

// backoffBase is the base exponential-backoff delay: attempt N (1-indexed)
// waits backoffBase * 2^(N-1) before the next attempt.
const backoffBase = time.Second

// Subscriber is one configured webhook target.
type Subscriber struct {
	URL        string
	Events     map[string]bool
	Headers    map[string]string
	Timeout    time.Duration
	RetryCount int
}

// NewSubscriber builds a Subscriber from config, normalizing its event
// list into a set for O(1) filtering.
func NewSubscriber(cfg config.WebhookSubscriberConfig) Subscriber {
	events := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		events[e] = true
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return Subscriber{
		URL:        cfg.URL,
		Events:     events,
		Headers:    cfg.Headers,
		Timeout:    timeout,
		RetryCount: cfg.RetryCount,
	}
}

func (s Subscriber) shouldNotify(eventType string) bool {
	return s.Events[eventType]
}

// DeliveryResult is the outcome of one subscriber's delivery attempt.
type DeliveryResult struct {
	Subscriber string
	Success    bool
	StatusCode int
	Attempts   int
	Error      string
}

// Notifier fans promotion lifecycle events out to configured subscribers.
type Notifier struct {
	subscribers []Subscriber
	httpClient  *http.Client
	tracer      tracing.Tracer
	logger      *floelog.Logger
	metrics     *metrics.Metrics
}

// New constructs a Notifier over the given subscribers.
func New(subscribers []Subscriber, logger *floelog.Logger, m *metrics.Metrics, tracer tracing.Tracer) *Notifier {
	if tracer == nil {
		tracer = tracing.NoopTracer
	}
	return &Notifier{
		subscribers: subscribers,
		httpClient:  &http.Client{},
		tracer:      tracer,
		logger:      logger,
		metrics:     m,
	}
}

// NotifyAll delivers the event to every subscribed subscriber concurrently.
// One subscriber's failure (including after exhausting retries) never
// blocks or fails delivery to another. NotifyAll itself waits for every
// delivery to finish and returns a result slice purely for diagnostics;
// the Controller calls it on its own goroutine so promotion does not wait.
func (n *Notifier) NotifyAll(ctx context.Context, eventType string, payload map[string]interface{}) []DeliveryResult {
	body := buildPayload(eventType, payload)

	var wg sync.WaitGroup
	results := make([]DeliveryResult, len(n.subscribers))
	for i, sub := range n.subscribers {
		if !sub.shouldNotify(eventType) {
			results[i] = DeliveryResult{Subscriber: sub.URL, Success: true, Attempts: 0}
			continue
		}
		wg.Add(1)
		go func(idx int, s Subscriber) {
			defer wg.Done()
			results[idx] = n.deliver(ctx, s, eventType, body)
		}(i, sub)
	}
	wg.Wait()
	return results
}

func buildPayload(eventType string, data map[string]interface{}) map[string]interface{} {
	payload := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["event_type"] = eventType
	return payload
}

// deliver performs the retry loop for one subscriber: 1 initial attempt
// plus RetryCount retries, exponential backoff on 5xx or transport errors,
// no retry on 4xx.
func (n *Notifier) deliver(ctx context.Context, sub Subscriber, eventType string, payload map[string]interface{}) DeliveryResult {
	spanCtx, end := n.tracer.StartSpan(ctx, "floe.webhook.notify", map[string]string{
		"floe.webhook.url":        sub.URL,
		"floe.webhook.event_type": eventType,
	})

	encoded, err := json.Marshal(payload)
	if err != nil {
		end(err)
		return DeliveryResult{Subscriber: sub.URL, Success: false, Error: fmt.Sprintf("encode payload: %v", err)}
	}

	maxAttempts := 1 + sub.RetryCount
	var lastStatus, attempts int
	var lastErr error

retryLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		status, err := n.attempt(spanCtx, sub, encoded)
		lastStatus, lastErr = status, err

		if n.logger != nil {
			n.logger.LogWebhookDelivery(spanCtx, sub.URL, eventType, attempt, status, err)
		}

		if err == nil && status < 400 {
			if n.metrics != nil {
				n.metrics.RecordWebhookDelivery(sub.URL, eventType, "success", attempt)
			}
			end(nil)
			return DeliveryResult{Subscriber: sub.URL, Success: true, StatusCode: status, Attempts: attempt}
		}
		if err == nil && status < 500 {
			break // 4xx: not retried
		}
		if attempt < maxAttempts {
			backoff := backoffBase * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retryLoop
			}
		}
	}

	finalErr := lastErr
	if finalErr == nil {
		finalErr = fmt.Errorf("server error: %d", lastStatus)
	}
	if n.metrics != nil {
		n.metrics.RecordWebhookDelivery(sub.URL, eventType, "failure", attempts)
	}
	end(finalErr)
	return DeliveryResult{
		Subscriber: sub.URL,
		Success:    false,
		StatusCode: lastStatus,
		Attempts:   attempts,
		Error:      finalErr.Error(),
	}
}

func (n *Notifier) attempt(ctx context.Context, sub Subscriber, body []byte) (statusCode int, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, sub.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
