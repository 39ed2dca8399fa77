package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/jmallory/streamchat/internal/model/chat"
)

var (
	ErrDuplicateID = errors.New("duplicate message id")
	ErrNotFound    = errors.New("message not found")
)

// Store holds the ordered transcript of the active session. Insertion order
// is chronological order. The store performs no I/O; it is replaced wholesale
// on session load and emptied on logout or clear.
type Store struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewStore bootstraps an empty transcript.
func NewStore() *Store {
	return &Store{messages: make([]chat.Message, 0, 16)}
}

// Append adds a message to the end of the transcript.
func (s *Store) Append(message chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID == message.ID {
			return ErrDuplicateID
		}
	}

	s.messages = append(s.messages, message)
	return nil
}

// ReplaceContent overwrites a message's content in place, preserving its
// position and role.
func (s *Store) ReplaceContent(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			return nil
		}
	}
	return ErrNotFound
}

// PatchTimestamp sets a message's timestamp only if it was never set. An
// already populated timestamp wins; the patch is then a no-op.
func (s *Store) PatchTimestamp(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			if s.messages[i].Timestamp.IsZero() {
				s.messages[i].Timestamp = at
			}
			return nil
		}
	}
	return ErrNotFound
}

// ReplaceAll swaps the entire transcript for the provided messages.
func (s *Store) ReplaceAll(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]chat.Message, len(messages))
	copy(s.messages, messages)
}

// RemoveLast drops the most recent message. Used to back out a placeholder
// assistant message when a turn fails before any content was written.
func (s *Store) RemoveLast() (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return chat.Message{}, false
	}

	last := s.messages[len(s.messages)-1]
	s.messages = s.messages[:len(s.messages)-1]
	return last, true
}

// Last returns the most recent message without removing it.
func (s *Store) Last() (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return chat.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Messages returns a snapshot copy of the transcript.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Len reports the number of messages in the transcript.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
