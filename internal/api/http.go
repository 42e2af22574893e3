package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpClient wraps resty.Client with retry logic and debug logging
type httpClient struct {
	resty  *resty.Client
	logger *slog.Logger
}

// httpClientConfig holds configuration for the HTTP client
type httpClientConfig struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	Debug     bool
	Logger    *slog.Logger
}

func newHTTPClient(cfg httpClientConfig) *httpClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mnflix/1.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	rc.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		// 5xx server errors and 429 rate limiting are worth retrying
		return r.StatusCode() >= 500 || r.StatusCode() == 429
	})

	c := &httpClient{resty: rc, logger: cfg.Logger}

	if cfg.Debug {
		rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			c.logger.Debug("api request", "method", r.Method, "url", r.URL)
			return nil
		})
		rc.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
			c.logger.Debug("api response",
				"url", r.Request.URL,
				"status", r.StatusCode(),
				"duration", r.Time())
			return nil
		})
	}

	return c
}

// getJSON performs a GET request and decodes the JSON response into out
func (c *httpClient) getJSON(ctx context.Context, url string, params map[string]string, out any) error {
	req := c.resty.R().SetContext(ctx).SetResult(out)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("GET %s: HTTP %d: %s", url, resp.StatusCode(), resp.String())
	}
	return nil
}

// postJSON performs a POST request with a JSON body
func (c *httpClient) postJSON(ctx context.Context, url string, body any) error {
	resp, err := c.resty.R().SetContext(ctx).SetBody(body).Post(url)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("POST %s: HTTP %d: %s", url, resp.StatusCode(), resp.String())
	}
	return nil
}
