// Package ws bridges websocket connections and the app loop. Connection
// goroutines never touch app state: they produce messages into the app inbox
// and drain their own private outbound channel.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomgroenwoldt/new-keyglide/internal/app"
	"github.com/tomgroenwoldt/new-keyglide/internal/protocol"
)

const (
	// outboxSize buffers each connection's private outbound channel. The
	// app drops messages for connections that fall this far behind.
	outboxSize = 64

	writeTimeout = 3 * time.Second
)

// ClientsHandler serves unseated clients watching the lobby list.
func ClientsHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.New()
		out := make(chan protocol.ServerMessage, outboxSize)

		a.Inbox() <- app.AddClient{ClientID: clientID, Tx: out}
		defer func() { a.Inbox() <- app.RemoveClient{ClientID: clientID} }()

		// Bootstrap the client with the full lobby list.
		a.Inbox() <- app.CurrentLobbies{ClientID: clientID}

		writeCtx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go forward(writeCtx, conn, out)

		// Clients send nothing; drain until the connection dies.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}
}

// PlayersHandler seats a connection as a player in the lobby named in the
// URL. The lobby id usually comes from a preceding lobby-information lookup.
func PlayersHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID, err := uuid.Parse(chi.URLParam(r, "lobby_id"))
		if err != nil {
			http.Error(w, "invalid lobby id", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan protocol.ServerMessage, outboxSize)
		player := app.NewPlayer(out)

		a.Inbox() <- app.AddPlayerToLobby{LobbyID: lobbyID, Player: player}
		defer func() { a.Inbox() <- app.RemovePlayer{LobbyID: lobbyID, Player: player} }()

		writeCtx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go forward(writeCtx, conn, out)

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}

			var cm protocol.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				zap.S().Warnw("dropping malformed client message", "error", err)
				continue
			}

			switch cm.Type {
			case protocol.ClientSendMessage:
				a.Inbox() <- app.SendMessage{LobbyID: lobbyID, Player: player, Message: cm.Message}
			case protocol.ClientRequestStart:
				a.Inbox() <- app.RequestStart{LobbyID: lobbyID, Player: player}
			case protocol.ClientProgress:
				a.Inbox() <- app.ComputePlayerProgress{
					LobbyID:    lobbyID,
					PlayerID:   player.ID,
					Submission: cm.Progress,
				}
			default:
				zap.S().Warnw("dropping client message of unknown type", "type", cm.Type)
			}
		}
	}
}

// forward writes every message from the outbound channel to the websocket
// until the connection context is cancelled.
func forward(ctx context.Context, conn *websocket.Conn, out <-chan protocol.ServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			payload, err := json.Marshal(msg)
			if err != nil {
				zap.S().Errorw("failed to marshal server message", "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				zap.S().Warnw("failed to write to websocket", "error", err)
				return
			}
		}
	}
}
