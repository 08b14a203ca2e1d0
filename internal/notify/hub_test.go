package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSendIfPresent(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch := hub.Register("u1")

	ev := Event{Type: "stock_depleted", Data: json.RawMessage(`{"product_id":"p1"}`)}
	require.True(t, hub.SendIfPresent("u1", ev))

	got := <-ch
	assert.Equal(t, "stock_depleted", got.Type)
	assert.JSONEq(t, `{"product_id":"p1"}`, string(got.Data))

	assert.False(t, hub.SendIfPresent("absent", ev))
}

func TestHubReplaceOnReconnect(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	old := hub.Register("u1")
	fresh := hub.Register("u1")

	// The old channel is closed; only the new one receives.
	_, ok := <-old
	assert.False(t, ok)

	require.True(t, hub.SendIfPresent("u1", Event{Type: "x"}))
	select {
	case ev := <-fresh:
		assert.Equal(t, "x", ev.Type)
	default:
		t.Fatal("expected event on the fresh channel")
	}
	assert.Equal(t, 1, hub.Connected())
}

func TestHubEvictsStalledSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	hub.Register("u1")

	// Nobody drains the channel: fill the buffer, then one more send
	// must evict the subscriber instead of blocking.
	for i := 0; i < channelBuffer; i++ {
		require.True(t, hub.SendIfPresent("u1", Event{Type: "x"}))
	}
	assert.False(t, hub.SendIfPresent("u1", Event{Type: "x"}))
	assert.Equal(t, 0, hub.Connected())
}

func TestHubUnregister(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch := hub.Register("u1")
	hub.Unregister("u1", ch)
	assert.Equal(t, 0, hub.Connected())

	// Unregistering again, or with a stale channel, is a no-op.
	hub.Unregister("u1", ch)

	stale := hub.Register("u1")
	fresh := hub.Register("u1")
	hub.Unregister("u1", stale)
	assert.Equal(t, 1, hub.Connected())
	hub.Unregister("u1", fresh)
	assert.Equal(t, 0, hub.Connected())
}

func TestHubRunClosesOnShutdown(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ch := hub.Register("u1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Connected())
}
