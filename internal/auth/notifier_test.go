package auth

import (
	"testing"

	"github.com/hitoshi/bitesync/internal/model"
)

func TestNotifier_SubscribeAndUnsubscribe(t *testing.T) {
	n := NewNotifier()

	var a, b int
	unsubA := n.Subscribe(func(SessionEvent) { a++ })
	n.Subscribe(func(SessionEvent) { b++ })

	n.Publish(SessionEvent{Kind: SessionSignedIn, Session: &model.Session{UserID: "u1"}})
	unsubA()
	unsubA()
	n.Publish(SessionEvent{Kind: SessionSignedOut, Session: &model.Session{UserID: "u1"}})

	if a != 1 {
		t.Errorf("listener A called %d times, want 1", a)
	}
	if b != 2 {
		t.Errorf("listener B called %d times, want 2", b)
	}
}
