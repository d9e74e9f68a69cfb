package crmsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhukovvlad/residence-go/cmd/internal/util"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"
)

const maxAttempts = 2

// StatusError - ответ CRM не 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm responded %d: %s", e.Code, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Code >= http.StatusInternalServerError
}

type HTTPOptions struct {
	URL           string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	// Client overrides the default client (tests).
	Client *http.Client
}

// HTTPNotifier шлёт уведомления в JSON с ограничением по token bucket. На 5xx или
// ошибку транспорта - один повтор.
type HTTPNotifier struct {
	url     string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewHTTPNotifier(opts HTTPOptions, logger *logging.Logger) *HTTPNotifier {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = max(1, int(opts.RatePerSecond))
	}
	return &HTTPNotifier{
		url:     opts.URL,
		apiKey:  opts.APIKey,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (h *HTTPNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("crm rate limiter: %w", err)
		}

		lastErr = h.post(ctx, body, n)
		if lastErr == nil {
			return nil
		}

		var status *StatusError
		if errors.As(lastErr, &status) && !status.retryable() {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
		h.logger.GetLoggerWithFields(map[string]interface{}{
			"id_number":  n.IDNumber,
			"student_id": n.StudentID,
			"attempt":    attempt,
		}).Warnf("crm delivery attempt failed: %v", lastErr)
	}
	return fmt.Errorf("crm delivery failed after %d attempts: %w", maxAttempts, lastErr)
}

func (h *HTTPNotifier) post(ctx context.Context, body []byte, n Notification) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", util.IdempotencyKey(n.RunID, n.IDNumber))
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to crm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
}
