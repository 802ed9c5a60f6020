package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/testutil"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()
	t.Cleanup(cancel)
	return hub, cancel, errCh
}

func newHubClient(hub *Hub, userID string) *Client {
	return NewClient(hub, newFakeConn(), userID, DealsTopic)
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHub_PublishDealEventReachesSubscribers(t *testing.T) {
	hub, _, _ := runHub(t)
	a := newHubClient(hub, "u-1")
	b := newHubClient(hub, "u-2")
	hub.Register(a)
	hub.Register(b)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, hub.PublishDealEvent(domain.DealEvent{Type: domain.DealCreated, DealID: 42, ActorID: "u-1", At: at}))

	for _, c := range []*Client{a, b} {
		var msg ServerMessage
		require.NoError(t, json.Unmarshal(receive(t, c), &msg))
		assert.Equal(t, "deal_created", msg.Type)
		assert.Equal(t, DealsTopic, msg.Topic)
		require.NotNil(t, msg.Event)
		assert.Equal(t, 42, msg.Event.DealID)
		assert.True(t, at.Equal(msg.Event.At))
	}
}

func TestHub_TopicsAreIsolated(t *testing.T) {
	hub, _, _ := runHub(t)
	deals := newHubClient(hub, "u-1")
	other := NewClient(hub, newFakeConn(), "u-2", "orders")
	hub.Register(deals)
	hub.Register(other)

	hub.Broadcast("orders", "order_created", []byte(`{"type":"order_created"}`))
	assert.JSONEq(t, `{"type":"order_created"}`, string(receive(t, other)))

	select {
	case msg := <-deals.send:
		t.Fatalf("deals subscriber got %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub, _, _ := runHub(t)
	c := newHubClient(hub, "u-1")
	hub.Register(c)
	testutil.Eventually(t, func() bool { return hub.ClientCount(DealsTopic) == 1 })

	hub.Unregister(c)
	testutil.Eventually(t, func() bool { return hub.ClientCount(DealsTopic) == 0 })

	_, ok := <-c.send
	assert.False(t, ok)

	// a second unregister is harmless
	hub.Unregister(c)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub, _, _ := runHub(t)
	slow := newHubClient(hub, "slow")
	hub.Register(slow)

	for i := 0; i < cap(slow.send)+1; i++ {
		hub.Broadcast(DealsTopic, "deal_updated", []byte(`{}`))
	}

	testutil.Eventually(t, func() bool { return hub.ClientCount(DealsTopic) == 0 })
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel, errCh := runHub(t)
	c := newHubClient(hub, "u-1")
	hub.Register(c)

	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	_, ok := <-c.send
	assert.False(t, ok)

	// nothing blocks once the hub is gone
	done := make(chan struct{})
	go func() {
		hub.Broadcast(DealsTopic, "deal_deleted", []byte(`{}`))
		hub.Unregister(c)
		late := newHubClient(hub, "late")
		hub.Register(late)
		_, ok := <-late.send
		assert.False(t, ok)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("calls blocked after shutdown")
	}
}
