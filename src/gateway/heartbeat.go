package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultZombieThreshold is the number of consecutive unacknowledged
// heartbeats after which the connection is treated as dead.
const DefaultZombieThreshold = 2

// heartbeat sends periodic liveness pings over the gateway socket.
// The owning session injects the sequence source, the send function
// and the zombie callback; the scheduler itself never touches the
// socket or the session state directly.
type heartbeat struct {
	interval  time.Duration
	threshold int
	sequence  func() interface{}
	send      func(seq interface{}) error
	onZombie  func()
	log       zerolog.Logger

	mu     sync.Mutex
	missed int

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newHeartbeat(interval time.Duration, threshold int, sequence func() interface{}, send func(seq interface{}) error, onZombie func(), log zerolog.Logger) *heartbeat {
	if threshold <= 0 {
		threshold = DefaultZombieThreshold
	}
	return &heartbeat{
		interval:  interval,
		threshold: threshold,
		sequence:  sequence,
		send:      send,
		onZombie:  onZombie,
		done:      make(chan struct{}),
		log:       log,
	}
}

func (h *heartbeat) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	go h.run(ctx)
}

func (h *heartbeat) run(ctx context.Context) {
	defer close(h.done)
	// Spread simultaneous reconnecting clients over the whole interval.
	jitter := initialJitter(h.interval)
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		h.mu.Lock()
		if h.missed >= h.threshold {
			h.mu.Unlock()
			h.log.Warn().Int("missed_acks", h.threshold).Msg("gateway connection became a zombie")
			go h.onZombie()
			return
		}
		h.missed++
		h.mu.Unlock()
		if err := h.send(h.sequence()); err != nil {
			h.log.Error().Err(err).Msg("failed to send heartbeat event")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ack records a heartbeat acknowledgement from the server.
func (h *heartbeat) ack() {
	h.mu.Lock()
	h.missed = 0
	h.mu.Unlock()
}

// stop cancels the loop and waits for it to exit. Safe to call more
// than once, and safe to call from the zombie callback.
func (h *heartbeat) stop() {
	h.stopOnce.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
	if h.cancel != nil {
		<-h.done
	}
}

func initialJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * float64(interval))
}
