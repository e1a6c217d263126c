package feed

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/domain"
)

func TestSubscriberReceivesEvents(t *testing.T) {
	hub, _, url := newFeedServer(t)

	sub := NewSubscriber(url, 1, 50*time.Millisecond, zap.NewNop())
	events := make(chan *domain.ChangeEvent, 4)
	unsubscribe := sub.OnEvent(func(event *domain.ChangeEvent) { events <- event })

	if err := sub.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { sub.Disconnect() })

	if !sub.IsConnected() {
		t.Fatal("subscriber should be connected")
	}
	waitForClients(t, hub, 1)

	hub.Publish(domain.ChangeEvent{Table: "articles", PK: 3, Action: domain.ChangeActionCreated})

	select {
	case event := <-events:
		if event.Table != "articles" || event.PK != 3 || event.Action != domain.ChangeActionCreated {
			t.Errorf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	unsubscribe()
	hub.Publish(domain.ChangeEvent{Table: "articles", PK: 4, Action: domain.ChangeActionDeleted})

	select {
	case event := <-events:
		t.Errorf("unsubscribed callback fired: %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriberStateCallbacks(t *testing.T) {
	_, _, url := newFeedServer(t)

	sub := NewSubscriber(url, 1, 50*time.Millisecond, zap.NewNop())
	states := make(chan ConnState, 8)
	sub.OnStateChange(func(state ConnState) { states <- state })

	if err := sub.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { sub.Disconnect() })

	for _, want := range []ConnState{StateConnecting, StateConnected} {
		select {
		case got := <-states:
			if got != want {
				t.Errorf("state = %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("never saw state %s", want)
		}
	}
}

func TestSubscriberFailedDial(t *testing.T) {
	sub := NewSubscriber("ws://127.0.0.1:1/feed", 0, 10*time.Millisecond, zap.NewNop())

	if err := sub.Connect(context.Background()); err == nil {
		t.Fatal("expected a dial error")
	}
	if sub.GetState() != StateFailed {
		t.Errorf("state = %s, want %s", sub.GetState(), StateFailed)
	}
}

func TestSubscriberReconnects(t *testing.T) {
	hub, srv, url := newFeedServer(t)

	sub := NewSubscriber(url, 5, 50*time.Millisecond, zap.NewNop())
	if err := sub.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { sub.Disconnect() })
	waitForClients(t, hub, 1)

	srv.CloseClientConnections()

	deadline := time.Now().Add(3 * time.Second)
	for !sub.IsConnected() || hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never reconnected, state %s", sub.GetState())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
