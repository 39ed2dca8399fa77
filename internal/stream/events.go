package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Event types the backend may emit. Unknown types are ignored so the protocol
// can grow without breaking older clients.
const (
	EventStart = "start"
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// ErrMalformedEvent marks a single undecodable payload. It is recovered
// locally: the event is skipped and the stream continues.
var ErrMalformedEvent = errors.New("malformed stream event")

// Event is one decoded protocol frame. It is transient; nothing retains it
// beyond the transcript mutation it causes. The same shape is written by the
// development server.
type Event struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	Content    string `json:"content,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Message    string `json:"message,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	Cached     bool   `json:"cached,omitempty"`
}

// ParseEvent decodes one frame payload.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ev, nil
}

// RemoteError is an explicit error event received mid-stream: the backend
// aborted generation and reported why.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote generation error: " + e.Message
}

// zoneSuffix matches an explicit offset ("+08:00", "-0500") at the end of a
// timestamp. A trailing Z/z is checked separately.
var zoneSuffix = regexp.MustCompile(`[+-]\d{2}:?\d{2}$`)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
}

// ParseServerTimestamp interprets a server-supplied timestamp as
// timezone-aware. A value with no zone or offset marker means UTC and gets
// the designator appended before parsing. Reports false when the value is
// absent or unparsable; the caller then keeps the client-assigned timestamp.
func ParseServerTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}

	last := raw[len(raw)-1]
	if last != 'Z' && last != 'z' && !zoneSuffix.MatchString(raw) {
		raw += "Z"
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
