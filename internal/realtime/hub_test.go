package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func teamMsg(channel string, kind TeamEventKind, seq int) SSEMessage {
	return SSEMessage{
		Channel: channel,
		Event:   SSEEventTeamProgress,
		Data:    TeamEvent{Kind: kind, Message: "seq", Action: "working", Timestamp: time.Unix(int64(seq), 0)},
	}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()

	clientA := hub.NewSSEClient()
	hub.AddChannel(clientA, channel)

	hub.Broadcast(teamMsg(channel, TeamEventCreated, 1))
	hub.Broadcast(teamMsg(channel, TeamEventAgentStart, 2))

	gotFirst := recvMessage(t, clientA.Outbound, time.Second)
	gotSecond := recvMessage(t, clientA.Outbound, time.Second)
	if gotFirst.Data.(TeamEvent).Kind != TeamEventCreated {
		t.Fatalf("first event kind = %v", gotFirst.Data.(TeamEvent).Kind)
	}
	if gotSecond.Data.(TeamEvent).Kind != TeamEventAgentStart {
		t.Fatalf("second event kind = %v", gotSecond.Data.(TeamEvent).Kind)
	}

	hub.CloseClient(clientA)

	// A new subscriber on the same channel gets subsequent events; nothing
	// is replayed.
	clientB := hub.NewSSEClient()
	hub.AddChannel(clientB, channel)
	hub.Broadcast(teamMsg(channel, TeamEventFinal, 3))
	got := recvMessage(t, clientB.Outbound, time.Second)
	if got.Data.(TeamEvent).Kind != TeamEventFinal {
		t.Fatalf("reconnect event kind = %v", got.Data.(TeamEvent).Kind)
	}
	select {
	case extra := <-clientB.Outbound:
		t.Fatalf("unexpected replayed message: %+v", extra)
	default:
	}
}

func TestSSEHubChannelIsolation(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	chanA, chanB := uuid.New().String(), uuid.New().String()

	clientA := hub.NewSSEClient()
	hub.AddChannel(clientA, chanA)
	clientB := hub.NewSSEClient()
	hub.AddChannel(clientB, chanB)

	hub.Broadcast(teamMsg(chanA, TeamEventCreated, 1))

	recvMessage(t, clientA.Outbound, time.Second)
	select {
	case msg := <-clientB.Outbound:
		t.Fatalf("clientB got message for another channel: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()
	client := hub.NewSSEClient()
	hub.AddChannel(client, channel)

	// Nobody drains the client; the hub must not block the publisher.
	overflow := cap(client.Outbound) + 10
	done := make(chan struct{})
	go func() {
		for i := 0; i < overflow; i++ {
			hub.Broadcast(teamMsg(channel, TeamEventThinking, i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	if got := len(client.Outbound); got != cap(client.Outbound) {
		t.Fatalf("buffered = %d, want full buffer %d", got, cap(client.Outbound))
	}
}

func TestSSEHubRemoveChannelStopsDelivery(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := uuid.New().String()
	client := hub.NewSSEClient()
	hub.AddChannel(client, channel)
	hub.RemoveChannel(client, channel)

	hub.Broadcast(teamMsg(channel, TeamEventCreated, 1))
	select {
	case msg := <-client.Outbound:
		t.Fatalf("unsubscribed client got message: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
