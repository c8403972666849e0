// Package rest exposes the chat services over HTTP with chi.
package rest

import (
	"chat-relay/auth"
	"chat-relay/observability"
	"chat-relay/services"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Services are the collaborators of the handlers.
type Services struct {
	Auth     services.IAuthService
	Chat     services.IChatService
	Channels services.IChannelService
	Contacts services.IContactService
	Files    services.IFileService
	Search   services.ISearchService
	Health   *observability.Health
}

type Handler struct {
	log         *slog.Logger
	services    Services
	maxFileSize int64
}

// NewRouter mounts the REST routes under /api and the WebSocket handshake on /ws.
// Everything but health, register and login needs a token.
func NewRouter(log *slog.Logger, signer auth.Signer, svc Services, ws http.Handler, requestTimeout time.Duration, maxFileSize int64) http.Handler {
	h := &Handler{log: log, services: svc, maxFileSize: maxFileSize}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	authenticated := auth.Middleware(signer, h.writeError)
	if ws != nil {
		r.With(authenticated).Handle("/ws", ws)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/health", h.health)
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/messages/direct/{userID}", h.directMessages)
			r.Get("/messages/channel/{channelID}", h.channelMessages)
			r.Get("/messages/search", h.searchMessages)
			r.Post("/messages/files", h.uploadFile)
			r.Get("/files/*", h.serveFile)

			r.Route("/channels", func(r chi.Router) {
				r.Post("/", h.createChannel)
				r.Get("/", h.listChannels)
				r.Get("/{channelID}", h.getChannel)
				r.Patch("/{channelID}", h.updateChannel)
				r.Delete("/{channelID}", h.deleteChannel)
				r.Post("/{channelID}/members", h.addMember)
				r.Delete("/{channelID}/members/{userID}", h.removeMember)
			})

			r.Get("/contacts/search", h.searchContacts)
			r.Get("/contacts/all", h.allContacts)
			r.Get("/contacts/direct", h.directContacts)
		})
	})
	return r
}
