package session

import (
	"context"
	"log"
	"sync"

	"github.com/jmallory/streamchat/internal/model/chat"
	"github.com/jmallory/streamchat/internal/transcript"
)

// PointerCache stores a local pointer to the most recent session so the next
// run can reopen it. Logout discards it.
type PointerCache interface {
	Save(sessionID string) error
	Discard() error
}

// Lifecycle owns the session identity of the active transcript. Empty means
// no session is established yet; the next assistant turn creates one
// server-side and the first start event binds it.
type Lifecycle struct {
	mu         sync.RWMutex
	id         string
	transcript *transcript.Store
	cache      PointerCache
	interrupt  func()
}

// New wires the lifecycle to the transcript it governs.
func New(store *transcript.Store) *Lifecycle {
	return &Lifecycle{transcript: store}
}

// SetPointerCache attaches the local session pointer cache.
func (l *Lifecycle) SetPointerCache(cache PointerCache) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = cache
}

// SetInterrupt attaches the cancel hook for the in-flight generation. Wired
// after construction because the controller also depends on the lifecycle.
func (l *Lifecycle) SetInterrupt(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.interrupt = fn
}

// ID returns the bound session identity, or "" when none is established.
func (l *Lifecycle) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.id
}

// BindSessionIfUnset records the server-assigned identity carried by the
// first start event. First writer wins for the life of the transcript.
func (l *Lifecycle) BindSessionIfUnset(id string) {
	l.mu.Lock()
	if l.id != "" || id == "" {
		l.mu.Unlock()
		return
	}
	l.id = id
	cache := l.cache
	l.mu.Unlock()

	if cache != nil {
		if err := cache.Save(id); err != nil {
			log.Printf("[session] failed to cache session pointer: %v", err)
		}
	}
}

// Restore replaces the session identity and the whole transcript with a
// previously saved session. The caller already fetched the messages; no
// network I/O happens here.
func (l *Lifecycle) Restore(sessionID string, messages []chat.Message) {
	l.mu.Lock()
	l.id = sessionID
	cache := l.cache
	l.mu.Unlock()

	l.transcript.ReplaceAll(messages)

	if cache != nil {
		if err := cache.Save(sessionID); err != nil {
			log.Printf("[session] failed to cache session pointer: %v", err)
		}
	}
}

// ClearForNewChat empties the transcript, drops the session identity and
// cancels any in-flight generation.
func (l *Lifecycle) ClearForNewChat() {
	l.mu.Lock()
	interrupt := l.interrupt
	l.id = ""
	l.mu.Unlock()

	if interrupt != nil {
		interrupt()
	}
	l.transcript.ReplaceAll(nil)
}

// ClearForLogout behaves like ClearForNewChat and additionally discards the
// locally cached session pointer. Triggered by the process-wide logout
// signal, not by user action on the transcript.
func (l *Lifecycle) ClearForLogout() {
	l.ClearForNewChat()

	l.mu.RLock()
	cache := l.cache
	l.mu.RUnlock()

	if cache != nil {
		if err := cache.Discard(); err != nil {
			log.Printf("[session] failed to discard session pointer: %v", err)
		}
	}
}

// WatchLogout clears all session state whenever the logout signal fires.
// Returns when the context is done.
func (l *Lifecycle) WatchLogout(ctx context.Context, logout <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-logout:
			if !ok {
				return
			}
			log.Printf("[session] logout observed, clearing chat state")
			l.ClearForLogout()
		}
	}
}
