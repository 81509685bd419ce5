// Package forward relays accepted notifications to a downstream HTTP endpoint,
// typically the frontend that owns the Graph subscription.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kal997/graph-notification-relay/internal/backoff"
	"github.com/kal997/graph-notification-relay/internal/models"
)

// ErrPermanent marks a downstream rejection that retrying cannot fix
var ErrPermanent = errors.New("permanent forwarding failure")

var errLimiter = errors.New("rate limiter wait failed")

// maxDrain bounds how much of a response body is read before closing
const maxDrain = 64 << 10

// Options configures a forwarding sink
type Options struct {
	RequestsPerSecond float64
	Burst             int
	Retry             backoff.Policy
	Client            *http.Client
}

// Sink POSTs the redacted notification as JSON. 5xx and 429 responses and
// transport errors are retried; any other non-2xx status is permanent.
type Sink struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	retry   backoff.Policy
	logger  *slog.Logger
}

// NewSink creates a forwarding sink for url
func NewSink(url string, opts Options, logger *slog.Logger) *Sink {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = backoff.Default()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink{
		url:     url,
		client:  opts.Client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		retry:   opts.Retry,
		logger:  logger,
	}
}

func (s *Sink) Name() string {
	return "forward"
}

// Handle forwards n, waiting for the rate limiter before every attempt
func (s *Sink) Handle(ctx context.Context, n models.ChangeNotification) error {
	body, err := json.Marshal(n.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	attempt := 0
	return s.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %v", errLimiter, err)
		}
		err := s.post(ctx, n.ReceiptID, body)
		if err != nil && !errors.Is(err, ErrPermanent) {
			s.logger.Debug("forward attempt failed",
				"receipt", n.ReceiptID, "attempt", attempt, "error", err)
		}
		return err
	}, func(err error) bool {
		return errors.Is(err, ErrPermanent) || errors.Is(err, errLimiter)
	})
}

func (s *Sink) post(ctx context.Context, receiptID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if receiptID != "" {
		req.Header.Set("X-Receipt-Id", receiptID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach forward target: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("forward target returned %d", resp.StatusCode)
	default:
		return fmt.Errorf("%w: forward target returned %d", ErrPermanent, resp.StatusCode)
	}
}
