package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
}

func TestHub_AddAndRemoveClient(t *testing.T) {
	hub := startHub(t)

	client := &Client{
		hub:  hub,
		send: make(chan []byte, 1),
	}

	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, hub.ConnectedClients())

	hub.unregister <- client
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, hub.ConnectedClients())
}

func TestHub_Broadcast(t *testing.T) {
	hub := startHub(t)

	client := &Client{
		hub:  hub,
		send: make(chan []byte, 10),
	}

	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(EventRunCompleted, map[string]int{"processed": 3})

	select {
	case msg := <-client.send:
		var event Event
		err := json.Unmarshal(msg, &event)
		assert.NoError(t, err)
		assert.Equal(t, EventRunCompleted, event.Type)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestHub_TopicFiltering(t *testing.T) {
	hub := startHub(t)

	alertsOnly := &Client{
		hub:    hub,
		topics: parseTopics("alert.triggered"),
		send:   make(chan []byte, 10),
	}

	everything := &Client{
		hub:    hub,
		topics: parseTopics(""),
		send:   make(chan []byte, 10),
	}

	hub.register <- alertsOnly
	hub.register <- everything
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(EventRunCompleted, map[string]string{"message": "run summary"})

	select {
	case <-everything.send:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("unfiltered client should receive message")
	}

	select {
	case <-alertsOnly.send:
		t.Fatal("alerts-only client should not receive run summaries")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.register <- client

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	_, open := <-client.send
	assert.False(t, open, "client channels are closed on shutdown")
}

func TestHub_JoinAndLeaveAfterStop(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	connected := &Client{hub: hub, send: make(chan []byte, 1)}
	assert.True(t, hub.join(connected))

	cancel()
	<-stopped

	returned := make(chan bool)
	go func() {
		// a reader that disconnects after shutdown, then a late upgrade
		hub.leave(connected)
		returned <- hub.join(&Client{hub: hub, send: make(chan []byte, 1)})
	}()

	select {
	case joined := <-returned:
		assert.False(t, joined, "a stopped hub refuses new clients")
	case <-time.After(time.Second):
		t.Fatal("join or leave blocked on a stopped hub")
	}
	assert.Equal(t, 0, hub.ConnectedClients())
}

func TestParseTopics(t *testing.T) {
	topics := parseTopics(" alert.triggered , ,run.completed")
	assert.Len(t, topics, 2)
	assert.True(t, topics["alert.triggered"])
	assert.True(t, topics["run.completed"])
}
