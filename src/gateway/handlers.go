package gateway

import (
	"context"
	"encoding/json"
	"sync"
)

// EventHandler receives a dispatch event exactly as it arrived on the
// socket. Handlers run on the receive goroutine, in arrival order; a
// handler that blocks stalls the whole gateway, so anything slow should
// hand off to its own goroutine.
type EventHandler func(ctx context.Context, event EventName, data json.RawMessage)

type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[EventName][]EventHandler
	catchAll []EventHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		handlers: make(map[EventName][]EventHandler),
	}
}

func (r *handlerRegistry) add(event EventName, fn EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], fn)
}

func (r *handlerRegistry) addCatchAll(fn EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catchAll = append(r.catchAll, fn)
}

func (r *handlerRegistry) dispatch(ctx context.Context, event EventName, data json.RawMessage) {
	r.mu.RLock()
	handlers := r.handlers[event]
	catchAll := r.catchAll
	r.mu.RUnlock()
	for _, fn := range handlers {
		fn(ctx, event, data)
	}
	for _, fn := range catchAll {
		fn(ctx, event, data)
	}
}
