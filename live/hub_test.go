package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Dosada05/event-registration/models"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func TestPublishReachesRoomClients(t *testing.T) {
	h := newTestHub(t)

	watcher := &Client{Hub: h, Send: make(chan []byte, 4), Room: RoomForEvent("e1")}
	other := &Client{Hub: h, Send: make(chan []byte, 4), Room: RoomForEvent("e2")}
	require.True(t, h.Join(watcher))
	require.True(t, h.Join(other))
	require.Eventually(t, func() bool { return h.RoomSize(RoomForEvent("e1")) == 1 }, time.Second, 5*time.Millisecond)

	ev := &models.Event{ID: "e1", RegistrationLimit: 10, RegisteredCount: 3}
	h.Publish("e1", models.NewEventUpdate(models.UpdateCapacity, ev, time.Now()))

	select {
	case raw := <-watcher.Send:
		var msg struct {
			Type    string             `json:"type"`
			Payload models.EventUpdate `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		require.Equal(t, "capacity", msg.Type)
		require.Equal(t, 7, msg.Payload.Remaining)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
	require.Empty(t, other.Send)
}

func TestLeaveClosesSendChannel(t *testing.T) {
	h := newTestHub(t)

	c := &Client{Hub: h, Send: make(chan []byte, 1), Room: RoomForEvent("e1")}
	require.True(t, h.Join(c))
	h.Leave(c)

	require.Eventually(t, func() bool { return h.RoomSize(RoomForEvent("e1")) == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-c.Send
	require.False(t, open)
}

func TestJoinAfterStopDoesNotBlock(t *testing.T) {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	require.False(t, h.Join(&Client{Hub: h, Send: make(chan []byte, 1), Room: "r"}))
}
