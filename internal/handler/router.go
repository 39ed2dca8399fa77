package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmallory/streamchat/internal/handler/history"
	"github.com/jmallory/streamchat/internal/handler/stream"
	middlewarePkg "github.com/jmallory/streamchat/internal/middleware"
	"github.com/jmallory/streamchat/internal/service/ai"
	chatService "github.com/jmallory/streamchat/internal/service/chat"
)

// NewRouter wires HTTP routes to core services. authToken, when non-empty,
// guards every API route behind a bearer check.
func NewRouter(chatSvc *chatService.Service, generator ai.Generator, authToken string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	streamHandler := stream.New(chatSvc, generator)
	historyHandler := history.New(chatSvc)

	r.Route("/api/chat", func(api chi.Router) {
		api.Use(middlewarePkg.BearerAuth(authToken))

		api.Post("/stream", streamHandler.HandleStream)
		api.Get("/history", historyHandler.HandleList)
		api.Get("/history/{sessionID}", historyHandler.HandleGet)
		api.Delete("/history/{sessionID}", historyHandler.HandleDelete)
	})

	return r
}
