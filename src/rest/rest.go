package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultBaseURL     = "https://discord.com/api/v10"
	defaultMaxAttempts = 3
)

// REST issues rate-limited requests against the HTTP API. Every call
// consults the shared RateLimiter before firing and feeds the response
// headers back into it, so concurrent callers cooperate on quota.
type REST struct {
	httpClient   *http.Client
	baseURL      string
	botToken     string
	limiter      *RateLimiter
	maxAttempts  int
	retryBackoff time.Duration
	log          zerolog.Logger
}

type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	// MaxAttempts bounds retries for transport failures, 429s and 5xx
	// responses. Defaults to 3.
	MaxAttempts int
	// RetryBackoff is the base unit for retry sleeps: attempt n waits
	// n * RetryBackoff. Defaults to one second.
	RetryBackoff time.Duration
	Logger       zerolog.Logger
}

func NewREST(botToken string, opts Options) *REST {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryBackoff := opts.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = time.Second
	}
	return &REST{
		httpClient:   httpClient,
		baseURL:      baseURL,
		botToken:     botToken,
		limiter:      NewRateLimiter(opts.Logger),
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		log:          opts.Logger,
	}
}

// RateLimiter exposes the shared tracker, mostly for tests and for
// callers that share one limiter across clients.
func (r *REST) RateLimiter() *RateLimiter {
	return r.limiter
}

// Request performs one logical call: wait for quota, fire, classify,
// retry per policy. 401/403/404/400/422 and other 4xx responses fail
// immediately; transport errors, 429 and 5xx retry up to MaxAttempts.
func (r *REST) Request(ctx context.Context, method string, path string, body []byte) ([]byte, error) {
	routeKey := method + path
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := r.limiter.WaitIfNeeded(ctx, routeKey, path); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
		// Mandatory headers.
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		req.Header.Set("Authorization", fmt.Sprintf("Bot %s", r.botToken))

		res, err := r.httpClient.Do(req)
		if err != nil {
			if attempt == r.maxAttempts {
				return nil, fmt.Errorf("%w: %s %s: %v", ErrConnectionFailed, method, path, err)
			}
			r.log.Warn().Err(err).Int("attempt", attempt).Str("route", routeKey).Msg("transport failure, retrying")
			if err := sleep(ctx, time.Duration(attempt)*r.retryBackoff); err != nil {
				return nil, err
			}
			continue
		}
		data, readErr := io.ReadAll(res.Body)
		res.Body.Close()
		// Keep the tracker current even on error responses.
		r.limiter.Update(ctx, routeKey, path, res.Header)
		if readErr != nil {
			if attempt == r.maxAttempts {
				return nil, fmt.Errorf("%w: %s %s: %v", ErrConnectionFailed, method, path, readErr)
			}
			if err := sleep(ctx, time.Duration(attempt)*r.retryBackoff); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case res.StatusCode >= 200 && res.StatusCode < 300:
			return data, nil
		case res.StatusCode == http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s %s", ErrInvalidToken, method, path)
		case res.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: %s %s", ErrMissingPermissions, method, path)
		case res.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s %s", ErrResourceNotFound, method, path)
		case res.StatusCode == http.StatusTooManyRequests:
			retryAfter, global := parseRateLimit(data, res.Header)
			if attempt == r.maxAttempts {
				return nil, &RateLimitedError{RetryAfter: retryAfter, Global: global}
			}
			r.log.Warn().Dur("retry_after", retryAfter).Bool("global", global).Str("route", routeKey).Msg("rate limited, retrying")
			if global {
				if err := r.limiter.HandleGlobalLimit(ctx, retryAfter); err != nil {
					return nil, err
				}
			} else if err := sleep(ctx, retryAfter); err != nil {
				return nil, err
			}
			continue
		case res.StatusCode == http.StatusBadRequest:
			return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, apiErrorMessage(data))
		case res.StatusCode == http.StatusUnprocessableEntity:
			return nil, fmt.Errorf("%w: %s", ErrValidationFailed, apiErrorMessage(data))
		case res.StatusCode >= 500:
			if attempt == r.maxAttempts {
				return nil, &HTTPError{Status: res.StatusCode, Body: data}
			}
			r.log.Warn().Int("status", res.StatusCode).Int("attempt", attempt).Str("route", routeKey).Msg("server error, retrying")
			if err := sleep(ctx, time.Duration(attempt)*r.retryBackoff); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, &HTTPError{Status: res.StatusCode, Body: data}
		}
	}
	return nil, fmt.Errorf("%w: %s %s: attempts exhausted", ErrConnectionFailed, method, path)
}

func (r *REST) Get(ctx context.Context, path string) ([]byte, error) {
	return r.Request(ctx, http.MethodGet, path, nil)
}

func (r *REST) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return r.Request(ctx, http.MethodPost, path, body)
}

func (r *REST) Put(ctx context.Context, path string, body []byte) ([]byte, error) {
	return r.Request(ctx, http.MethodPut, path, body)
}

func (r *REST) Patch(ctx context.Context, path string, body []byte) ([]byte, error) {
	return r.Request(ctx, http.MethodPatch, path, body)
}

func (r *REST) Delete(ctx context.Context, path string) ([]byte, error) {
	return r.Request(ctx, http.MethodDelete, path, nil)
}

// Encode marshals a request body.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return data, nil
}

// Decode unmarshals a response body into v, attaching the target type
// to the error for diagnosability.
func Decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodingError{Type: fmt.Sprintf("%T", v), Err: err}
	}
	return nil
}

// parseRateLimit extracts the cooldown of a 429. The body takes
// precedence; the headers are the fallback.
func parseRateLimit(body []byte, headers http.Header) (time.Duration, bool) {
	var parsed rateLimitResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.RetryAfter > 0 {
		return time.Duration(parsed.RetryAfter * float64(time.Second)), parsed.Global
	}
	global := headers.Get("X-RateLimit-Global") == "true"
	if ra := headers.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), global
		}
	}
	return 0, global
}

func apiErrorMessage(body []byte) string {
	var parsed APIErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(body)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
