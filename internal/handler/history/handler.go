// Package history exposes the dev server's session archive over JSON.
package history

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmallory/streamchat/internal/model/chat"
	chatService "github.com/jmallory/streamchat/internal/service/chat"
	"github.com/jmallory/streamchat/pkg/utils"
)

// Handler serves session listing, retrieval, and deletion.
type Handler struct {
	chatSvc *chatService.Service
}

// New creates a history handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// HandleList returns every stored session, newest first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions := h.chatSvc.ListSessions(r.Context())

	out := make([]chat.HistorySession, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, chat.HistorySession{
			SessionID: session.ID,
			CreatedAt: session.CreatedAt,
		})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

// HandleGet returns one session with its full message history.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	out := chat.HistorySession{
		SessionID: session.ID,
		CreatedAt: session.CreatedAt,
		Messages:  make([]chat.HistoryMessage, 0, len(messages)),
	}
	for _, m := range messages {
		hm := chat.HistoryMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC().Format("2006-01-02T15:04:05.000000"),
		}
		if m.TokensUsed > 0 {
			tokens := m.TokensUsed
			hm.TokensUsed = &tokens
		}
		out.Messages = append(out.Messages, hm)
	}
	utils.RespondJSON(w, http.StatusOK, out)
}

// HandleDelete removes a session and its messages.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.chatSvc.DeleteSession(r.Context(), sessionID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
