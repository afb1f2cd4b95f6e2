package gateway

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// The gateway allows 120 outbound commands per minute per connection.
// Heartbeats count against this budget, so the limiter recovers a
// little faster than the hard limit.
const (
	commandsPerMinute = 120
	sendBurst         = 5
)

type sendLimiter struct {
	limiter *rate.Limiter
}

func newSendLimiter() *sendLimiter {
	return &sendLimiter{
		limiter: rate.NewLimiter(
			rate.Every(time.Minute/(commandsPerMinute-sendBurst)),
			sendBurst,
		),
	}
}

func (s *sendLimiter) wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}
