package auth

import (
	"sync"

	"github.com/hitoshi/bitesync/internal/model"
)

// SessionEventKind はセッション変化の種別。
type SessionEventKind string

const (
	SessionSignedIn  SessionEventKind = "signed_in"
	SessionSignedOut SessionEventKind = "signed_out"
)

// SessionEvent はセッションの変化を表す。
// Previousはサインインで置き換えられたセッションのIdentity（なければnil）。
type SessionEvent struct {
	Kind     SessionEventKind
	Session  *model.Session
	Previous *model.Identity
}

// Listener はセッション変化の通知を受け取る関数。
type Listener func(SessionEvent)

// Notifier はセッション変化を購読者へ配信する。
// 現在のユーザーを知る必要がある構成要素はここを購読する。
type Notifier struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// NewNotifier はNotifierを生成する。
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[int]Listener)}
}

// Subscribe はリスナーを登録し、登録解除関数を返す。
// 登録解除関数は複数回呼んでもよい。
func (n *Notifier) Subscribe(l Listener) (unsubscribe func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Publish は登録済みの全リスナーへイベントを同期的に配信する。
func (n *Notifier) Publish(ev SessionEvent) {
	n.mu.RLock()
	ls := make([]Listener, 0, len(n.listeners))
	for _, l := range n.listeners {
		ls = append(ls, l)
	}
	n.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}
