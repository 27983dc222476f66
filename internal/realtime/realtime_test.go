package realtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubdesk/internal/realtime"
)

type collector struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (c *collector) add(ev realtime.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestHub(t *testing.T) {
	ctx := context.Background()

	t.Run("DeliversToMatchingMember", func(t *testing.T) {
		hub := realtime.NewHub()
		var two, three collector
		hub.Subscribe(2, two.add)
		hub.Subscribe(3, three.add)

		hub.Publish(ctx, realtime.Event{Kind: realtime.EventInsert, RecipientMemberID: 2, ReceiptID: 10})

		assert.Equal(t, 1, two.len())
		assert.Equal(t, 0, three.len())
	})

	t.Run("IndependentSubscribers", func(t *testing.T) {
		hub := realtime.NewHub()
		var list, thread collector
		hub.Subscribe(2, list.add)
		hub.Subscribe(2, thread.add)

		hub.Publish(ctx, realtime.Event{Kind: realtime.EventUpdate, RecipientMemberID: 2})

		assert.Equal(t, 1, list.len())
		assert.Equal(t, 1, thread.len())
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		hub := realtime.NewHub()
		var c collector
		unsubscribe := hub.Subscribe(2, c.add)
		unsubscribe()
		unsubscribe()

		hub.Publish(ctx, realtime.Event{RecipientMemberID: 2})
		assert.Equal(t, 0, c.len())
		assert.Equal(t, 0, hub.Subscribers(2))
	})
}

func TestRedisBridge(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newBridge := func() *realtime.RedisBridge {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		b := realtime.NewRedisBridge(client, realtime.NewHub(), nil)
		require.NoError(t, b.Start(ctx))
		return b
	}
	a := newBridge()
	b := newBridge()

	var onA, onB collector
	a.Subscribe(2, onA.add)
	b.Subscribe(2, onB.add)

	a.Publish(ctx, realtime.Event{Kind: realtime.EventInsert, RecipientMemberID: 2, ReceiptID: 7, At: time.Now().UTC()})

	require.Eventually(t, func() bool { return onB.len() == 1 }, time.Second, 10*time.Millisecond)
	// The publishing instance delivers locally once and drops its own echo.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, onA.len())
	assert.Equal(t, "clubdesk:receipts:2", realtime.ChannelFor(2))
}
