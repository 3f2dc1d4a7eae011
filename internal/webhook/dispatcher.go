// Package webhook delivers signed callbacks for committed state changes.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/mockflow/internal/telemetry"
	"github.com/TimurManjosov/mockflow/internal/workflow"
)

const (
	defaultQueueSize = 1000
	defaultTimeout   = 5 * time.Second

	// maxResponseBodySize limits how much of the response body we log
	maxResponseBodySize = 1024
)

// Delivery headers.
const (
	HeaderSignature = "X-Mockflow-Signature"
	HeaderEvent     = "X-Mockflow-Event"
	HeaderDelivery  = "X-Mockflow-Delivery"
)

// Dispatcher queues events and delivers them to every matching target from a
// single worker goroutine.
type Dispatcher struct {
	targets []Target
	client  *http.Client
	logger  zerolog.Logger
	backoff func(attempt int) time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	queue  chan Event
	done   chan struct{}
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger.With().Str("component", "webhook").Logger() }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithBackoff sets the wait before retry attempt n (starting at 0).
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(d *Dispatcher) { d.backoff = fn }
}

// WithQueueSize sets the event buffer size.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// ExponentialBackoff waits 1s, 2s, 4s, ... between attempts.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// NewDispatcher creates a dispatcher for targets and starts its worker.
func NewDispatcher(targets []Target, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		targets: targets,
		client:  &http.Client{},
		logger:  zerolog.Nop(),
		backoff: ExponentialBackoff,
		now:     time.Now,
		queue:   make(chan Event, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.worker()
	return d
}

// OnChange turns a committed change into an event and queues it. It has the
// workflow.Listener signature.
func (d *Dispatcher) OnChange(c workflow.Change) {
	d.Dispatch(NewEvent(c, d.now()))
}

// Dispatch queues an event for delivery. It never blocks: when the queue is
// full or the dispatcher is closed the event is dropped.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(event, "dispatcher closed")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

func (d *Dispatcher) drop(event Event, reason string) {
	telemetry.WebhookDeliveries.WithLabelValues("dropped").Inc()
	d.logger.Warn().
		Str("event", event.Type).
		Str("scenario_id", event.ScenarioID).
		Str("reason", reason).
		Msg("webhook event dropped")
}

// Close stops accepting events and waits until queued ones are delivered.
// Close is safe to call multiple times.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return nil
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for event := range d.queue {
		for _, t := range d.targets {
			if t.matches(event) {
				d.deliverWithRetry(context.Background(), t, event)
			}
		}
	}
}

// deliverWithRetry posts the event until a 2xx response or MaxRetries is
// exhausted. It reports whether delivery succeeded.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, t Target, event Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error().Err(err).Str("event", event.Type).Msg("failed to marshal webhook payload")
		return false
	}

	signature := ComputeHMAC(payload, t.Secret)
	deliveryID := uuid.NewString()
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	log := d.logger.With().
		Str("url", t.URL).
		Str("event", event.Type).
		Str("scenario_id", event.ScenarioID).
		Str("delivery_id", deliveryID).
		Logger()

	for attempt := 0; attempt <= t.MaxRetries; attempt++ {
		start := time.Now()
		status, body, err := d.post(ctx, t.URL, timeout, payload, map[string]string{
			HeaderSignature: signature,
			HeaderEvent:     event.Type,
			HeaderDelivery:  deliveryID,
		})
		duration := time.Since(start)

		if err == nil && status >= 200 && status < 300 {
			telemetry.WebhookDeliveries.WithLabelValues("success").Inc()
			log.Debug().Int("status", status).Dur("duration", duration).Int("attempt", attempt+1).
				Msg("webhook delivered")
			return true
		}
		if err == nil {
			err = fmt.Errorf("unexpected status %d: %s", status, body)
		}

		if attempt < t.MaxRetries {
			wait := d.backoff(attempt)
			log.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", wait).Msg("webhook delivery failed")
			time.Sleep(wait)
			continue
		}
		telemetry.WebhookDeliveries.WithLabelValues("failure").Inc()
		log.Error().Err(err).Int("attempts", attempt+1).Msg("webhook delivery failed permanently")
	}
	return false
}

func (d *Dispatcher) post(ctx context.Context, url string, timeout time.Duration, payload []byte, headers map[string]string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	return resp.StatusCode, string(body), nil
}
