// Package fetcher retrieves the sports statistics payload from the
// upstream HTTP API.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"sportsdatalake/internal/config"
	"sportsdatalake/internal/domain"
	"sportsdatalake/internal/observability"
)

// maxBodySize bounds the payload read into memory.
const maxBodySize = 64 << 20

// Fetcher performs the single authenticated GET against the sports API.
type Fetcher struct {
	client  *http.Client
	config  config.SportsAPIConfig
	logger  observability.Logger
	metrics observability.Metrics
}

// New creates a Fetcher. A nil client gets one with the configured timeout.
func New(client *http.Client, cfg config.SportsAPIConfig, logger observability.Logger, metrics observability.Metrics) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client:  client,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch returns the API response body unchanged. Any transport failure,
// non-2xx status or non-JSON body is an UpstreamRequestError. There is no
// retry.
func (f *Fetcher) Fetch(ctx context.Context) (domain.Payload, error) {
	f.metrics.StartOperation("fetch")
	defer f.metrics.EndOperation("fetch")
	startTime := time.Now()
	defer func() {
		f.metrics.RecordDuration("fetch", time.Since(startTime).Seconds())
	}()

	f.logger.Info(ctx, "Fetching sports data", observability.Fields{
		"url": f.config.URL,
	})

	body, err := f.get(ctx)
	if err != nil {
		f.metrics.RecordError("fetch", categorizeError(err))
		f.logger.Error(ctx, "Error fetching API data", err, observability.Fields{
			"url": f.config.URL,
		})
		return nil, domain.UpstreamRequestError(err)
	}

	f.metrics.RecordFileSize("json", int64(len(body)))
	f.metrics.RecordSuccess("fetch")

	fields := observability.Fields{"bytes": len(body)}
	if parsed := gjson.ParseBytes(body); parsed.IsArray() {
		fields["records"] = len(parsed.Array())
	}
	f.logger.Info(ctx, "API data fetched successfully", fields)

	return domain.Payload(body), nil
}

func (f *Fetcher) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.URL, nil)
	if err != nil {
		return nil, ErrRequestCreation(err)
	}

	req.Header.Set("Accept", "application/json")
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	req.Header.Set(f.config.KeyHeader, f.config.APIKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ErrHTTPRequest(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// The start of the body usually carries the API's rejection reason
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ErrUnexpectedStatus(resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, ErrReadResponse(err)
	}
	if len(body) > maxBodySize {
		return nil, ErrBodyTooLarge
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}

	return body, nil
}

// categorizeError categorizes errors for metrics
func categorizeError(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return "unauthorized"
		case statusErr.StatusCode == http.StatusNotFound:
			return "not_found"
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case statusErr.StatusCode >= 500:
			return "server_error"
		default:
			return fmt.Sprintf("status_%d", statusErr.StatusCode)
		}
	}

	switch {
	case errors.Is(err, ErrInvalidJSON):
		return "invalid_json"
	case errors.Is(err, ErrBodyTooLarge):
		return "too_large"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "network"
	}
}
