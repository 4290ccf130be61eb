// Package siem forwards canonical audit events to an external SIEM
// endpoint over HTTP, rate-limited the way the teacher's telemetry hub
// throttles its own event stream, and serialized with whichever of the
// JSON/CEF/LEEF encodings the destination declares it wants.
package siem

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/cellwarden/cellwarden/pkg/audit"
	"github.com/cellwarden/cellwarden/pkg/auditqueue"
)

// Format selects which wire encoding is sent to the SIEM endpoint.
type Format string

const (
	FormatJSON Format = "json"
	FormatCEF  Format = "cef"
	FormatLEEF Format = "leef"
)

// Config describes one SIEM destination.
type Config struct {
	Endpoint        string
	Format          Format
	AuthHeader      string
	AuthToken       string
	RateLimitPerSec int
	HTTPClient      *http.Client
}

// Exporter posts batches of audit events to a single HTTP endpoint,
// honoring ctx cancellation and a token-bucket rate limit so a SIEM
// outage or a slow endpoint cannot overrun the caller.
type Exporter struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

// New constructs an Exporter. It implements auditqueue.Exporter.
func New(cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("siem: Config.Endpoint is required")
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 50
	}
	return &Exporter{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(limit), limit),
	}, nil
}

// Export satisfies auditqueue.Exporter: one HTTP POST per batch,
// tagged with the idempotency key so a retried delivery of the same
// batch is safe to replay at the SIEM side.
func (e *Exporter) Export(ctx context.Context, idempotencyKey string, events []audit.Event) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	body, contentType, err := e.encode(events)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("siem: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if e.cfg.AuthHeader != "" && e.cfg.AuthToken != "" {
		req.Header.Set(e.cfg.AuthHeader, e.cfg.AuthToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		// A transport-level failure (connection refused, TLS handshake
		// failure, context deadline) is always worth retrying.
		return &auditqueue.ExportError{Retriable: true, Err: fmt.Errorf("siem: request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &auditqueue.ExportError{
			Status:    resp.StatusCode,
			Retriable: auditqueue.RetriableStatus(resp.StatusCode),
			Err:       fmt.Errorf("siem: endpoint returned %d: %s", resp.StatusCode, string(respBody)),
		}
	}
	return nil
}

func (e *Exporter) encode(events []audit.Event) ([]byte, string, error) {
	switch e.cfg.Format {
	case FormatCEF:
		return []byte(audit.EncodeCEF(events)), "text/plain", nil
	case FormatLEEF:
		return []byte(audit.EncodeLEEF(events)), "text/plain", nil
	default:
		body, err := audit.EncodeJSON(events)
		return body, "application/json", err
	}
}
