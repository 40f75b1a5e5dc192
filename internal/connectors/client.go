package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
)

const maxBodySize = 16 << 20

// httpClient does JSON GETs with bounded exponential retry. Only network errors,
// 429 and 5xx are retried.
type httpClient struct {
	logger     *slog.Logger
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
}

func newHTTPClient(logger *slog.Logger, cfg config.SourceConfig) *httpClient {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &httpClient{
		logger:     logger,
		client:     &http.Client{Timeout: cfg.GetTimeout(), Transport: tr},
		maxRetries: retries,
		backoff:    defaultDuration(cfg.Backoff, 500*time.Millisecond),
		maxBackoff: defaultDuration(cfg.MaxBackoff, 10*time.Second),
	}
}

func defaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// getJSON decodes the body of a GET into out.
func (c *httpClient) getJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error {
	op := "connectors.getJSON()"

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s: %w: bad url: %v", op, ErrNotConfigured, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	if err := c.requestJSON(ctx, http.MethodGet, u.String(), nil, header, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// postJSON sends body with the given content type and decodes the answer into out.
func (c *httpClient) postJSON(ctx context.Context, rawURL, contentType string, body []byte, header http.Header, out any) error {
	op := "connectors.postJSON()"

	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("%s: %w: bad url: %v", op, ErrNotConfigured, err)
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", contentType)

	if err := c.requestJSON(ctx, http.MethodPost, rawURL, body, h, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *httpClient) requestJSON(ctx context.Context, method, u string, reqBody []byte, header http.Header, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxInterval = c.maxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	call := func() error {
		attempt++
		body, err := c.do(ctx, method, u, reqBody, header)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("source request failed",
				slog.String("method", method),
				slog.Int("attempt", attempt),
				sl.Err(err),
			)
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(call, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%w: %v", ErrTimeout, ctxErr)
		}
		return err
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, method, u string, body []byte, header http.Header) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, classify(err)
	}

	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}
	return respBody, nil
}

// StatusError is a non-2xx upstream answer.
type StatusError struct {
	Code int
	kind error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: http status %d", e.kind, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &StatusError{Code: code, kind: ErrAuth}
	default:
		return &StatusError{Code: code, kind: ErrNetwork}
	}
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// HTMLToText strips markup, scripts and styles and collapses whitespace.
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
