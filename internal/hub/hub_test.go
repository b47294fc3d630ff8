package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Connection) []byte {
	t.Helper()
	select {
	case data := <-c.Send:
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestBroadcastReachesOnlyRunSubscribers(t *testing.T) {
	h := startHub(t)
	a := h.NewConnection(nil, "run-a")
	b := h.NewConnection(nil, "run-b")
	h.Register(a)
	h.Register(b)

	require.NoError(t, h.BroadcastJSON("run-a", map[string]string{"type": "phase:start"}))
	assert.JSONEq(t, `{"type":"phase:start"}`, string(receive(t, a)))

	select {
	case data := <-b.Send:
		t.Fatalf("run-b received %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := startHub(t)
	c := h.NewConnection(nil, "run-a")
	h.Register(c)
	require.Eventually(t, func() bool { return h.HasSubscribers("run-a") }, time.Second, 5*time.Millisecond)

	h.Unregister(c)
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.False(t, h.HasSubscribers("run-a"))
	assert.Zero(t, h.ConnectionCount())
}

func TestRunStopClosesConnections(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	c := h.NewConnection(nil, "run-a")
	h.Register(c)
	cancel()
	<-done

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Zero(t, h.ConnectionCount())
}
