// Package webhooks pushes audit entries to external HTTP endpoints, signed
// with a per-subscription HMAC secret. It plugs into audit.Recorder as a
// Publisher.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jmerrifield20/bharatchain/internal/audit"
	"go.uber.org/zap"
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher delivers audit entries to matching subscriptions. Deliveries run
// in the background with retries; Publish never blocks on the network.
type Dispatcher struct {
	subs       []Subscription
	httpClient *http.Client
	delays     []time.Duration // wait before each attempt; len = max attempts
	onMetrics  MetricsRecorder
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// NewDispatcher creates a Dispatcher for subs.
func NewDispatcher(subs []Subscription, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		subs:       subs,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{0, 1 * time.Second, 5 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// Publish implements audit.Publisher.
func (d *Dispatcher) Publish(ctx context.Context, e *audit.Entry) error {
	event := Event{Type: EventAudit, Timestamp: time.Now().UTC(), Entry: e}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	// Deliveries outlive the request that produced the entry.
	ctx = context.WithoutCancel(ctx)
	for _, sub := range d.subs {
		if !sub.wants(e.Action) {
			continue
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(ctx, sub, body)
		}()
	}
	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver sends body to a single subscription with retries.
func (d *Dispatcher) deliver(ctx context.Context, sub Subscription, body []byte) {
	signature := SignPayload(body, sub.Secret)

	for attempt, delay := range d.delays {
		if delay > 0 {
			time.Sleep(delay)
		}

		success, errMsg := d.doDelivery(ctx, sub.URL, body, signature)
		if d.onMetrics != nil {
			d.onMetrics(success)
		}
		if success {
			return
		}

		d.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt+1),
			zap.String("error", errMsg),
		)
	}
	d.logger.Error("webhook: giving up", zap.String("url", sub.URL), zap.Int("attempts", len(d.delays)))
}

// doDelivery performs a single HTTP POST delivery.
func (d *Dispatcher) doDelivery(ctx context.Context, url string, body []byte, signature string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return true, ""
}

// SignPayload computes the "sha256=<hex>" HMAC signature of body.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is the signature of body under secret.
// Receivers use it to authenticate deliveries.
func VerifySignature(body []byte, secret, sig string) bool {
	return hmac.Equal([]byte(SignPayload(body, secret)), []byte(sig))
}
