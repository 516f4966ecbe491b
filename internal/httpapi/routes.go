package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomgroenwoldt/new-keyglide/internal/app"
	"github.com/tomgroenwoldt/new-keyglide/internal/ws"
)

// SetupRoutes builds the router with the app injected.
func SetupRoutes(a *app.App) http.Handler {
	r := chi.NewRouter()

	r.Get("/lobbies/{mode}", LobbyInformation(a))
	r.Get("/clients", ws.ClientsHandler(a))
	r.Get("/players/{lobby_id}", ws.PlayersHandler(a))
	r.Get("/healthz", Healthz)
	return r
}
