// Package provider is the adapter over the WakaTime-compatible time-tracking
// API. Every call is classified into a models.Status; transport problems never
// escape as Go errors.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/devpulse/stats-api/internal/models"
)

const (
	DefaultBaseURL = "https://wakatime.com/api/v1"

	msgUnavailable = "provider temporarily unavailable"
	maxBodyBytes   = 4 << 20
)

// Credential identifies the provider account to query.
type Credential struct {
	Username string
	APIKey   string
}

// CredentialFor builds the credential stored on a user.
func CredentialFor(u models.User) Credential {
	return Credential{Username: u.ProviderName(), APIKey: u.APIKey}
}

// Fetcher is the contract the sync engine depends on.
type Fetcher interface {
	FetchDaily(ctx context.Context, cred Credential, dateKey, timeZone string) models.FetchResult
	FetchWeekly(ctx context.Context, cred Credential, rangeKey string) models.FetchResult
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int

	// Breaker trips after BreakerFailures consecutive counted failures and
	// stays open for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
}

// Client calls the provider. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[models.FetchResult]
	logger  *zap.SugaredLogger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		logger:  cfg.Logger,
	}

	failures := cfg.BreakerFailures
	c.cb = gobreaker.NewCircuitBreaker[models.FetchResult](gobreaker.Settings{
		Name:        "provider",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			c.logger.Warnw("Provider circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return c
}

// counted is returned inside the breaker for outcomes that indicate the
// provider itself is unhealthy. It carries the classified result out.
type counted struct {
	result models.FetchResult
}

func (c *counted) Error() string { return c.result.Error }

func failure(format string, args ...any) models.FetchResult {
	return models.FetchResult{Status: models.StatusError, Error: fmt.Sprintf(format, args...)}
}

// FetchDaily returns the summary of one calendar day in timeZone.
func (c *Client) FetchDaily(ctx context.Context, cred Credential, dateKey, timeZone string) models.FetchResult {
	q := url.Values{}
	q.Set("start", dateKey)
	q.Set("end", dateKey)
	if timeZone != "" {
		q.Set("timezone", timeZone)
	}
	endpoint := fmt.Sprintf("%s/users/%s/summaries?%s", c.baseURL, url.PathEscape(cred.Username), q.Encode())
	return c.fetch(ctx, "daily", endpoint, cred.APIKey, decodeSummaries)
}

// FetchWeekly returns the provider's rolling stats for rangeKey.
func (c *Client) FetchWeekly(ctx context.Context, cred Credential, rangeKey string) models.FetchResult {
	endpoint := fmt.Sprintf("%s/users/%s/stats/%s", c.baseURL, url.PathEscape(cred.Username), url.PathEscape(rangeKey))
	return c.fetch(ctx, "weekly", endpoint, cred.APIKey, decodeStats)
}

type decoder func(body []byte) (models.FetchResult, error)

func (c *Client) fetch(ctx context.Context, kind, endpoint, apiKey string, decode decoder) models.FetchResult {
	start := time.Now()
	res, err := c.cb.Execute(func() (models.FetchResult, error) {
		res := c.do(ctx, endpoint, apiKey, decode)
		if res.countsAsFailure {
			return res.FetchResult, &counted{result: res.FetchResult}
		}
		return res.FetchResult, nil
	})
	if err != nil {
		var cf *counted
		switch {
		case errors.As(err, &cf):
			res = cf.result
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			res = failure(msgUnavailable)
		default:
			res = failure("%v", err)
		}
	}

	requestsTotal.WithLabelValues(kind, string(res.Status)).Inc()
	requestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if res.Status == models.StatusError {
		c.logger.Warnw("Provider fetch failed", "kind", kind, "error", res.Error)
	}
	return res
}

type outcome struct {
	models.FetchResult
	countsAsFailure bool
}

func (c *Client) do(ctx context.Context, endpoint, apiKey string, decode decoder) outcome {
	if err := c.limiter.Wait(ctx); err != nil {
		return outcome{FetchResult: failure("rate limited: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return outcome{FetchResult: failure("build request: %v", err)}
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(apiKey)))
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return outcome{FetchResult: failure("request canceled")}
		}
		if isTimeout(err) {
			return outcome{FetchResult: failure("request timed out"), countsAsFailure: true}
		}
		return outcome{FetchResult: failure("request failed: %v", err), countsAsFailure: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return outcome{FetchResult: models.FetchResult{Status: models.StatusPrivate}}
	case resp.StatusCode == http.StatusNotFound:
		return outcome{FetchResult: models.FetchResult{Status: models.StatusNotFound}}
	case resp.StatusCode == http.StatusTooManyRequests:
		return outcome{FetchResult: failure("rate limited by provider"), countsAsFailure: true}
	case resp.StatusCode >= 500:
		return outcome{FetchResult: failure("provider returned %d", resp.StatusCode), countsAsFailure: true}
	case resp.StatusCode != http.StatusOK:
		return outcome{FetchResult: failure("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return outcome{FetchResult: failure("read body: %v", err), countsAsFailure: true}
	}
	res, err := decode(body)
	if err != nil {
		return outcome{FetchResult: failure("malformed response: %v", err), countsAsFailure: true}
	}
	return outcome{FetchResult: res}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
