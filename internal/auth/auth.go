// Package auth supplies bearer credentials to the backend client and carries
// the process-wide logout notification the session lifecycle reacts to.
package auth

import (
	"context"
	"sync"
)

// Source supplies the bearer token attached to backend requests. The engine
// only reads the token; acquiring it (login flows, refresh) lives outside.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// StaticSource is a fixed token, typically read from the environment.
type StaticSource string

// Token implements Source.
func (s StaticSource) Token(context.Context) (string, error) {
	return string(s), nil
}

// LogoutNotifier broadcasts a fire-and-forget, payload-less logout signal to
// every subscriber.
type LogoutNotifier struct {
	mu   sync.Mutex
	subs []chan struct{}
}

// NewLogoutNotifier creates an empty notifier.
func NewLogoutNotifier() *LogoutNotifier {
	return &LogoutNotifier{}
}

// Subscribe registers a new listener. The channel is buffered so a slow
// listener never blocks the broadcast.
func (n *LogoutNotifier) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	return ch
}

// NotifyLogout signals every subscriber without blocking. A subscriber with
// a pending signal is not signalled again.
func (n *LogoutNotifier) NotifyLogout() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
