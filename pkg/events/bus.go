package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
)

// Bus is an in-process pub/sub bus for lifecycle events. Each transition is a
// discrete message delivered to every subscriber. Publishing never blocks:
// a subscriber whose buffer is full misses the event and a drop counter is
// incremented instead.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan interfaces.Event
	nextID      int
	dropped     atomic.Uint64
	logger      *zap.Logger
}

// NewBus creates a new event bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]chan interfaces.Event),
		logger:      logger,
	}
}

// Subscribe registers a new subscriber with the given channel buffer size.
// The returned function cancels the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan interfaces.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan interfaces.Event, buffer)
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to all subscribers without blocking
func (b *Bus) Publish(event interfaces.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Publishers hold only the read lock, so the counter is atomic
			b.dropped.Add(1)
			b.logger.Warn("event subscriber buffer full, dropping event",
				zap.String("type", string(event.Type)))
		}
	}
}

// Dropped returns the number of events dropped due to slow subscribers
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
