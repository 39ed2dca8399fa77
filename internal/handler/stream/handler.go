// Package stream serves the dev server's generation endpoint: one POST whose
// response body is the framed token stream the client engine consumes.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jmallory/streamchat/internal/model/chat"
	"github.com/jmallory/streamchat/internal/service/ai"
	chatService "github.com/jmallory/streamchat/internal/service/chat"
	"github.com/jmallory/streamchat/internal/stream"
	"github.com/jmallory/streamchat/pkg/utils"
)

// doneTimestampLayout matches the original backend's UTC timestamps, which
// carry no zone suffix. Clients must treat them as UTC.
const doneTimestampLayout = "2006-01-02T15:04:05.000000"

// Handler streams generated replies for chat sessions.
type Handler struct {
	chatSvc   *chatService.Service
	generator ai.Generator
}

// New creates a stream handler.
func New(chatSvc *chatService.Service, generator ai.Generator) *Handler {
	return &Handler{chatSvc: chatSvc, generator: generator}
}

type streamRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// HandleStream processes one generation request. Pre-stream failures are
// plain text diagnostics; once streaming starts, failures become error
// events inside the stream.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var payload streamRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	sessionID := payload.SessionID
	if sessionID == "" {
		session, err := h.chatSvc.CreateSession(ctx)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to create session: %v", err), http.StatusInternalServerError)
			return
		}
		sessionID = session.ID
	} else if _, err := h.chatSvc.GetSession(ctx, sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	// The user message is stored before streaming starts, so a failed
	// generation still leaves the question in history.
	if err := h.chatSvc.SaveMessage(ctx, sessionID, chat.Message{
		Role:    chat.RoleUser,
		Content: payload.Prompt,
	}); err != nil {
		http.Error(w, fmt.Sprintf("failed to save message: %v", err), http.StatusInternalServerError)
		return
	}

	history, err := h.chatSvc.LoadTranscript(ctx, sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load conversation: %v", err), http.StatusInternalServerError)
		return
	}
	// Exclude the message just saved; it rides separately as the query.
	history = history[:len(history)-1]

	messageID := uuid.New().String()

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, stream.Event{
		Type:      stream.EventStart,
		SessionID: sessionID,
		MessageID: messageID,
	})

	full, err := h.pumpGeneration(ctx, w, flusher, history, payload.Prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client aborted the read; nothing left to tell it.
			log.Printf("[stream] client cancelled generation for session=%s", sessionID)
			return
		}
		utils.SendSSEChunk(w, flusher, stream.Event{
			Type:    stream.EventError,
			Message: err.Error(),
		})
		return
	}

	if err := h.chatSvc.SaveMessage(ctx, sessionID, chat.Message{
		ID:         messageID,
		Role:       chat.RoleAssistant,
		Content:    full,
		TokensUsed: tokenEstimate(full),
	}); err != nil {
		log.Printf("[stream] failed to save assistant message: %v", err)
	}

	utils.SendSSEChunk(w, flusher, stream.Event{
		Type:       stream.EventDone,
		TokensUsed: tokenEstimate(full),
		Timestamp:  time.Now().UTC().Format(doneTimestampLayout),
	})
	log.Printf("[stream] completed response for session=%s", sessionID)
}

// pumpGeneration forwards generator tokens as events and returns the full
// reply text.
func (h *Handler) pumpGeneration(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, history []chat.Message, prompt string) (string, error) {
	tokens, err := h.generator.Stream(ctx, history, prompt)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	defer tokens.Close()

	full := ""
	for {
		token, err := tokens.Recv()
		if errors.Is(err, io.EOF) {
			return full, nil
		}
		if err != nil {
			if full != "" {
				// Partial output was already streamed; report the cut-off.
				log.Printf("[stream] generation interrupted after %d bytes: %v", len(full), err)
			}
			return full, err
		}

		full += token
		utils.SendSSEChunk(w, flusher, stream.Event{
			Type:    stream.EventToken,
			Content: token,
		})
	}
}

// tokenEstimate approximates usage by whitespace-separated words.
func tokenEstimate(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		switch {
		case r == ' ' || r == '\n' || r == '\t':
			inWord = false
		case !inWord:
			inWord = true
			count++
		}
	}
	return count
}
