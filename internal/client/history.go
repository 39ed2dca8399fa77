package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmallory/streamchat/internal/model/chat"
	"github.com/jmallory/streamchat/internal/stream"
)

// ListSessions fetches summaries of all saved sessions.
func (b *Backend) ListSessions(ctx context.Context) ([]chat.HistorySession, error) {
	var sessions []chat.HistorySession
	if err := b.getJSON(ctx, "/api/chat/history", &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches one saved session with its full message batch.
func (b *Backend) GetSession(ctx context.Context, sessionID string) (chat.HistorySession, error) {
	var session chat.HistorySession
	if err := b.getJSON(ctx, "/api/chat/history/"+sessionID, &session); err != nil {
		return chat.HistorySession{}, err
	}
	return session, nil
}

// DeleteSession removes a saved session server-side.
func (b *Backend) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := b.newRequest(ctx, http.MethodDelete, "/api/chat/history/"+sessionID, nil)
	if err != nil {
		return err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

func (b *Backend) getJSON(ctx context.Context, path string, out any) error {
	req, err := b.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// TranscriptMessages converts a history batch into transcript messages,
// assigning fresh ids and normalizing wire timestamps.
func TranscriptMessages(session chat.HistorySession) []chat.Message {
	messages := make([]chat.Message, 0, len(session.Messages))
	for _, m := range session.Messages {
		role := chat.Role(m.Role)
		if role != chat.RoleUser && role != chat.RoleAssistant {
			continue
		}

		var at time.Time
		if parsed, ok := stream.ParseServerTimestamp(m.Timestamp); ok {
			at = parsed
		}

		msg := chat.Message{
			ID:        uuid.NewString(),
			Role:      role,
			Content:   m.Content,
			Timestamp: at,
		}
		if m.TokensUsed != nil {
			msg.TokensUsed = *m.TokensUsed
		}
		messages = append(messages, msg)
	}
	return messages
}
