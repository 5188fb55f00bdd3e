package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func SetupRoutes(c Client, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("httpapi")
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)

	// Read-only views of the local state
	r.Get("/state", State(c))
	r.Get("/phase", Phase(c))
	r.Get("/queue", Queue(c))
	r.Get("/restore", Restore(c))

	r.Post("/games", CreateGame(c, log))
	r.Post("/games/join", JoinGame(c, log))
	r.Post("/actions", SendAction(c, log))
	r.Post("/preview", Preview(c, log))
	r.Delete("/session", Leave(c))
	return r
}
