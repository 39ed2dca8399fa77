package stream

import (
	"strings"

	"github.com/jmallory/streamchat/internal/transcript"
)

// SessionBinder records the server-assigned session identity the first time
// a start event carries one.
type SessionBinder interface {
	BindSessionIfUnset(id string)
}

// Interpreter maps decoded events onto transcript mutations for a single
// assistant turn. Token content is accumulated here and the placeholder
// message is always replaced with the full running string, so replacement is
// idempotent for a given accumulator state.
type Interpreter struct {
	transcript  *transcript.Store
	sessions    SessionBinder
	assistantID string
	acc         strings.Builder
}

// NewInterpreter binds an interpreter to the placeholder assistant message
// created at turn start.
func NewInterpreter(store *transcript.Store, sessions SessionBinder, assistantID string) *Interpreter {
	return &Interpreter{
		transcript:  store,
		sessions:    sessions,
		assistantID: assistantID,
	}
}

// Apply performs the transition for one event. Unknown event types are a
// forward-compatible no-op. An error event aborts the turn via RemoteError.
func (i *Interpreter) Apply(ev Event) error {
	switch ev.Type {
	case EventStart:
		if ev.SessionID != "" {
			i.sessions.BindSessionIfUnset(ev.SessionID)
		}
		return nil

	case EventToken:
		i.acc.WriteString(ev.Content)
		return i.transcript.ReplaceContent(i.assistantID, i.acc.String())

	case EventDone:
		if at, ok := ParseServerTimestamp(ev.Timestamp); ok {
			// Fallback only: a timestamp assigned at submission time wins.
			return i.transcript.PatchTimestamp(i.assistantID, at)
		}
		return nil

	case EventError:
		return &RemoteError{Message: ev.Message}

	default:
		return nil
	}
}

// Content returns the text accumulated so far this turn.
func (i *Interpreter) Content() string {
	return i.acc.String()
}

// ContentLen reports how much assistant text has been written this turn.
func (i *Interpreter) ContentLen() int {
	return i.acc.Len()
}
