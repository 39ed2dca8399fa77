package chat

import "time"

// HistorySession is a persisted conversation as the history endpoints return
// it: a batch of prior messages keyed by the server-assigned session id.
type HistorySession struct {
	SessionID string           `json:"session_id"`
	CreatedAt time.Time        `json:"created_at"`
	Messages  []HistoryMessage `json:"messages"`
}

// HistoryMessage is the wire form of a stored message. Timestamps come back
// as ISO-8601-ish strings that may lack a zone suffix.
type HistoryMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	TokensUsed *int   `json:"tokens_used,omitempty"`
}
