package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomgroenwoldt/new-keyglide/internal/app"
	"github.com/tomgroenwoldt/new-keyglide/internal/protocol"
)

// LobbyInformation resolves a join mode ("quickplay", "create" or a lobby
// uuid) to a full lobby snapshot. The app loop cannot be queried directly,
// so the request carries a one-shot reply channel; the loop answers with a
// single value or closes the channel if the lobby does not exist.
func LobbyInformation(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := protocol.ParseJoinMode(chi.URLParam(r, "mode"))
		if err != nil {
			http.Error(w, "invalid join mode", http.StatusBadRequest)
			return
		}

		reply := make(chan protocol.LobbyInformation, 1)
		a.Inbox() <- app.ProvideLobbyInformation{Reply: reply, JoinMode: mode}

		info, ok := <-reply
		if !ok {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(info)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
