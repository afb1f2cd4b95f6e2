package rest

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sasha-s/go-csync"
)

// bucket mirrors the server's unit of rate limit accounting. A bucket
// is overwritten wholesale on every response that carries the headers.
type bucket struct {
	id        string
	remaining int
	limit     int
	resetAt   time.Time
}

// RateLimiter tracks per-bucket quota and the account-wide cooldown.
// The server reuses bucket ids across unrelated resources, so buckets
// are stored under the bucket id combined with the major parameters of
// the request path; two channels sharing a bucket id never block each
// other. The table is guarded by a context-aware mutex and all sleeps
// happen outside it, so callers waiting on one scope never serialize
// callers on another.
type RateLimiter struct {
	mu            csync.Mutex
	routes        map[string]string  // route key -> server bucket id
	buckets       map[string]*bucket // scope key -> bucket
	globalResetAt time.Time
	log           zerolog.Logger
}

func NewRateLimiter(log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		routes:  make(map[string]string),
		buckets: make(map[string]*bucket),
		log:     log,
	}
}

// WaitIfNeeded blocks until the route is clear to fire: first the
// global cooldown, then the route's own bucket if it is exhausted.
func (rl *RateLimiter) WaitIfNeeded(ctx context.Context, routeKey string, path string) error {
	if err := rl.mu.CLock(ctx); err != nil {
		return err
	}
	now := time.Now()
	var wait time.Duration
	if rl.globalResetAt.After(now) {
		wait = rl.globalResetAt.Sub(now)
	} else if id, ok := rl.routes[routeKey]; ok {
		if b, ok := rl.buckets[bucketScope(id, path)]; ok {
			if b.remaining == 0 && b.resetAt.After(now) {
				wait = b.resetAt.Sub(now)
			}
		}
	}
	rl.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	rl.log.Debug().Str("route", routeKey).Dur("wait", wait).Msg("throttling request")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// Update records the rate limit headers of a response. Responses
// without a bucket id, or with headers that fail to parse, are ignored.
func (rl *RateLimiter) Update(ctx context.Context, routeKey string, path string, headers http.Header) {
	id := headers.Get("X-RateLimit-Bucket")
	if id == "" {
		return
	}
	remaining, err := strconv.Atoi(headers.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	limit, err := strconv.Atoi(headers.Get("X-RateLimit-Limit"))
	if err != nil {
		return
	}
	resetAt, ok := parseReset(headers)
	if !ok {
		return
	}
	if err := rl.mu.CLock(ctx); err != nil {
		return
	}
	rl.routes[routeKey] = id
	rl.buckets[bucketScope(id, path)] = &bucket{
		id:        id,
		remaining: remaining,
		limit:     limit,
		resetAt:   resetAt,
	}
	rl.mu.Unlock()
}

// HandleGlobalLimit raises the account-wide cooldown and sits it out.
// Every caller, regardless of route, waits behind this timestamp.
func (rl *RateLimiter) HandleGlobalLimit(ctx context.Context, retryAfter time.Duration) error {
	if err := rl.mu.CLock(ctx); err != nil {
		return err
	}
	resetAt := time.Now().Add(retryAfter)
	if resetAt.After(rl.globalResetAt) {
		rl.globalResetAt = resetAt
	}
	rl.mu.Unlock()
	rl.log.Warn().Dur("retry_after", retryAfter).Msg("global rate limit hit")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(retryAfter):
	}
	if err := rl.mu.CLock(ctx); err != nil {
		return err
	}
	if !time.Now().Before(rl.globalResetAt) {
		rl.globalResetAt = time.Time{}
	}
	rl.mu.Unlock()
	return nil
}

// Reset-After is relative and immune to clock skew, so it wins over
// the absolute Reset header.
func parseReset(headers http.Header) (time.Time, bool) {
	if ra := headers.Get("X-RateLimit-Reset-After"); ra != "" {
		secs, err := strconv.ParseFloat(ra, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Now().Add(time.Duration(secs * float64(time.Second))), true
	}
	if r := headers.Get("X-RateLimit-Reset"); r != "" {
		epoch, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(epoch * 1000)), true
	}
	return time.Time{}, false
}

// Collections whose following id segment actually scopes the quota.
var majorSegments = map[string]bool{
	"channels": true,
	"guilds":   true,
	"webhooks": true,
}

// bucketScope derives the lookup key for a bucket: the server-assigned
// bucket id plus a signature of the path's major parameters. Webhook
// routes additionally fold in the webhook token so distinct credentials
// never share a scope. Paths with no major parameter collapse to a
// shared "global" signature.
func bucketScope(bucketID string, path string) string {
	var sb strings.Builder
	sb.WriteString(bucketID)
	segments := strings.Split(strings.Trim(path, "/"), "/")
	matched := false
	for i, seg := range segments {
		if !majorSegments[seg] || i+1 >= len(segments) {
			continue
		}
		id := segments[i+1]
		if isPlaceholder(id) {
			continue
		}
		matched = true
		sb.WriteString(";")
		sb.WriteString(seg)
		sb.WriteString(":")
		sb.WriteString(id)
		if seg == "webhooks" && i+2 < len(segments) {
			if token := segments[i+2]; !isPlaceholder(token) && !majorSegments[token] && token != "messages" {
				sb.WriteString(":")
				sb.WriteString(token)
			}
		}
	}
	if !matched {
		sb.WriteString(";global")
	}
	return sb.String()
}

func isPlaceholder(segment string) bool {
	return strings.HasPrefix(segment, ":") || strings.HasPrefix(segment, "{")
}
