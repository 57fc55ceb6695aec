package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hulrap/TradingBot-sub016/pkg/interfaces"
)

func TestBus_PublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	ch1, cancel1 := bus.Subscribe(4)
	ch2, cancel2 := bus.Subscribe(4)
	defer cancel1()
	defer cancel2()

	bus.Publish(interfaces.Event{Type: interfaces.EventOpportunityFound})

	for _, ch := range []<-chan interfaces.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, interfaces.EventOpportunityFound, ev.Type)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("expected event was not delivered")
		}
	}
}

func TestBus_PublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())

	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(interfaces.Event{Type: interfaces.EventError})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, uint64(9), bus.Dropped())
}

func TestBus_ConcurrentPublishersCountEveryDrop(t *testing.T) {
	bus := NewBus(zap.NewNop())

	// One subscriber whose buffer is already full, so every publish drops
	_, cancel := bus.Subscribe(1)
	defer cancel()
	bus.Publish(interfaces.Event{Type: interfaces.EventOpportunityFound})

	const publishers = 8
	const perPublisher = 200

	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				bus.Publish(interfaces.Event{Type: interfaces.EventBundleFailed})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(publishers*perPublisher), bus.Dropped())
}

func TestBus_CancelClosesChannel(t *testing.T) {
	bus := NewBus(zap.NewNop())

	ch, cancel := bus.Subscribe(1)
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Publishing after cancellation must not panic
	bus.Publish(interfaces.Event{Type: interfaces.EventError})
}
