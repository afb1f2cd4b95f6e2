package rest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBucketScope(t *testing.T) {
	tests := []struct {
		name     string
		bucketID string
		path     string
		want     string
	}{
		{
			"channel message route",
			"abc",
			"/channels/111/messages",
			"abc;channels:111",
		},
		{
			"different channel, same bucket id",
			"abc",
			"/channels/222/messages",
			"abc;channels:222",
		},
		{
			"guild route",
			"g1",
			"/guilds/900/members/5",
			"g1;guilds:900",
		},
		{
			"webhook with token",
			"wh",
			"/webhooks/42/secrettoken",
			"wh;webhooks:42:secrettoken",
		},
		{
			"webhook token excluded for messages subroute",
			"wh",
			"/webhooks/42/messages",
			"wh;webhooks:42",
		},
		{
			"placeholder ids are skipped",
			"abc",
			"/channels/:id/messages",
			"abc;global",
		},
		{
			"braced placeholder ids are skipped",
			"abc",
			"/channels/{channel.id}/messages",
			"abc;global",
		},
		{
			"no major parameter",
			"inv",
			"/gateway/bot",
			"inv;global",
		},
		{
			"users are not a major parameter",
			"usr",
			"/users/@me/guilds",
			"usr;global",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bucketScope(tt.bucketID, tt.path); got != tt.want {
				t.Fatalf("bucketScope(%q, %q) = %q, want %q", tt.bucketID, tt.path, got, tt.want)
			}
		})
	}
}

func exhaustedHeaders(bucketID string, resetAfter string) http.Header {
	h := http.Header{}
	h.Set("X-RateLimit-Bucket", bucketID)
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Limit", "5")
	h.Set("X-RateLimit-Reset-After", resetAfter)
	return h
}

func TestScopeIsolation(t *testing.T) {
	rl := NewRateLimiter(zerolog.Nop())
	ctx := context.Background()

	// Exhaust the bucket on channel 111. Channel 222 maps to the same
	// server bucket id but a different scope, so it must not wait.
	rl.Update(ctx, "POST /channels/111/messages", "/channels/111/messages",
		exhaustedHeaders("abc", "0.2"))

	start := time.Now()
	if err := rl.WaitIfNeeded(ctx, "POST /channels/222/messages", "/channels/222/messages"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("other channel waited %s behind a foreign scope", elapsed)
	}

	start = time.Now()
	if err := rl.WaitIfNeeded(ctx, "POST /channels/111/messages", "/channels/111/messages"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("exhausted scope only waited %s", elapsed)
	}
}

func TestWaitAfterBucketReset(t *testing.T) {
	rl := NewRateLimiter(zerolog.Nop())
	ctx := context.Background()
	rl.Update(ctx, "GET /channels/111", "/channels/111", exhaustedHeaders("abc", "0.05"))
	time.Sleep(80 * time.Millisecond)
	start := time.Now()
	if err := rl.WaitIfNeeded(ctx, "GET /channels/111", "/channels/111"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("waited %s on an already-reset bucket", elapsed)
	}
}

func TestGlobalCooldownBlocksEveryRoute(t *testing.T) {
	rl := NewRateLimiter(zerolog.Nop())
	ctx := context.Background()
	rl.globalResetAt = time.Now().Add(150 * time.Millisecond)

	start := time.Now()
	if err := rl.WaitIfNeeded(ctx, "GET /gateway/bot", "/gateway/bot"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("route cleared after %s despite global cooldown", elapsed)
	}
}

func TestHandleGlobalLimit(t *testing.T) {
	rl := NewRateLimiter(zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	if err := rl.HandleGlobalLimit(ctx, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("returned after %s, before the cooldown expired", elapsed)
	}
	if !rl.globalResetAt.IsZero() {
		t.Fatal("expired cooldown was not cleared")
	}
}

func TestWaitIfNeededHonorsContext(t *testing.T) {
	rl := NewRateLimiter(zerolog.Nop())
	rl.globalResetAt = time.Now().Add(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := rl.WaitIfNeeded(ctx, "GET /gateway/bot", "/gateway/bot")
	if err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestParseResetPrefersRelative(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Reset-After", "2.5")
	h.Set("X-RateLimit-Reset", "1000000000")
	resetAt, ok := parseReset(h)
	if !ok {
		t.Fatal("parseReset failed")
	}
	want := time.Now().Add(2500 * time.Millisecond)
	if diff := resetAt.Sub(want); diff < -100*time.Millisecond || diff > 100*time.Millisecond {
		t.Fatalf("resetAt off by %s, absolute header must not win", diff)
	}
}

func TestUpdateIgnoresMalformedHeaders(t *testing.T) {
	rl := NewRateLimiter(zerolog.Nop())
	ctx := context.Background()

	h := http.Header{}
	h.Set("X-RateLimit-Bucket", "abc")
	h.Set("X-RateLimit-Remaining", "not-a-number")
	h.Set("X-RateLimit-Limit", "5")
	h.Set("X-RateLimit-Reset-After", "1")
	rl.Update(ctx, "GET /channels/111", "/channels/111", h)
	if len(rl.buckets) != 0 {
		t.Fatal("malformed headers must not create a bucket")
	}

	rl.Update(ctx, "GET /channels/111", "/channels/111", http.Header{})
	if len(rl.routes) != 0 {
		t.Fatal("responses without a bucket id must be ignored")
	}
}
