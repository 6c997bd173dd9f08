package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultSubscriberBuffer = 64

// Subscription receives every published change that matches at least one
// of its bindings, once, in publish order. C is closed on Unsubscribe or
// when the hub closes.
type Subscription struct {
	ID   uuid.UUID
	Name string
	C    <-chan Change

	ch       chan Change
	bindings []compiledBinding
	dropped  atomic.Int64
}

// Dropped is the number of changes discarded because C was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) matches(change Change) bool {
	for _, b := range s.bindings {
		if b.Matches(change) {
			return true
		}
	}
	return false
}

// Hub fans changes out to subscriptions. Publish never blocks on a slow
// subscriber: when its buffer is full the change is dropped and counted.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
	logger zerolog.Logger
}

func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Subscribe registers a subscription with the given bindings.
func (h *Hub) Subscribe(name string, bindings ...Binding) (*Subscription, error) {
	compiled := make([]compiledBinding, 0, len(bindings))
	for _, b := range bindings {
		cb, err := compile(b)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cb)
	}

	ch := make(chan Change, h.buffer)
	sub := &Subscription{
		ID:       uuid.New(),
		Name:     name,
		C:        ch,
		ch:       ch,
		bindings: compiled,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub, nil
	}
	h.subs[sub] = struct{}{}
	metrics.RealtimeSubscriptions.Inc()

	h.logger.Debug().
		Str("subscription_id", sub.ID.String()).
		Str("name", name).
		Int("bindings", len(compiled)).
		Msg("subscribed")
	return sub, nil
}

// Publish delivers change to every matching subscription and returns the
// number of subscriptions that received it.
func (h *Hub) Publish(change Change) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs {
		if !sub.matches(change) {
			continue
		}
		select {
		case sub.ch <- change:
			delivered++
		default:
			sub.dropped.Add(1)
			metrics.RealtimeDropped.Inc()
			h.logger.Warn().
				Str("subscription_id", sub.ID.String()).
				Str("name", sub.Name).
				Str("table", change.Table).
				Msg("dropping change; subscriber buffer full")
		}
	}
	metrics.RealtimeDeliveries.Add(float64(delivered))
	return delivered
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	metrics.RealtimeSubscriptions.Dec()
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unsubscribes everyone; later subscriptions are born closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		metrics.RealtimeSubscriptions.Dec()
	}
	h.subs = make(map[*Subscription]struct{})
}
