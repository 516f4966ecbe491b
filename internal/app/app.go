// Package app contains the session core of the coding-race backend: a
// registry of unseated clients and active lobbies, owned exclusively by one
// goroutine that drains a single inbox of messages. All other goroutines are
// producers into that inbox and consumers of their own outbound channels, so
// no mutex ever guards this state.
package app

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomgroenwoldt/new-keyglide/internal/config"
	"github.com/tomgroenwoldt/new-keyglide/internal/protocol"
)

// ErrLobbyNotFound marks a join mode pointing at a lobby that does not
// exist (anymore).
var ErrLobbyNotFound = errors.New("app: lobby not found")

// inboxSize bounds how far external producers can run ahead of the loop. A
// connection or timer goroutine blocks if the loop falls this many messages
// behind. The loop itself never sends into the inbox: its follow-ups go
// through the pending queue, which only the loop touches.
const inboxSize = 512

// App is the single mutable root of the backend.
type App struct {
	cfg config.Config

	// clients are connected but unseated connections, keyed by id.
	clients map[uuid.UUID]chan<- protocol.ServerMessage
	// lobbies are all active lobbies, keyed by id.
	lobbies map[uuid.UUID]*Lobby

	inbox chan Message
	// pending holds follow-up messages the loop posted to itself while
	// handling another message. Drained before the next inbox receive.
	// Owned by the loop goroutine, no other goroutine touches it.
	pending []Message
}

// New creates an app with no clients and no lobbies. Call Run to start
// processing messages.
func New(cfg config.Config) *App {
	return &App{
		cfg:     cfg,
		clients: make(map[uuid.UUID]chan<- protocol.ServerMessage),
		lobbies: make(map[uuid.UUID]*Lobby),
		inbox:   make(chan Message, inboxSize),
	}
}

// Inbox exposes the message queue to producers: connection handlers, HTTP
// handlers and the app's own timers.
func (a *App) Inbox() chan<- Message { return a.inbox }

// post enqueues a follow-up message the app sends to itself while handling
// another message. Self-posts bypass the inbox so the loop can never block
// on the queue only it drains, no matter how full external producers have
// run it.
func (a *App) post(msg Message) {
	a.pending = append(a.pending, msg)
}

// schedule posts msg onto the inbox after d. This is the only timer
// mechanism: there is no cancellation, superseded timers fire into handlers
// whose status re-check turns them into no-ops.
func (a *App) schedule(d time.Duration, msg Message) {
	go func() {
		time.Sleep(d)
		a.inbox <- msg
	}()
}

// trySend delivers a message to one outbound channel without blocking the
// loop. A full or abandoned channel is logged and the message dropped;
// delivery to other recipients continues regardless.
func trySend(tx chan<- protocol.ServerMessage, msg protocol.ServerMessage) {
	select {
	case tx <- msg:
	default:
		zap.S().Warnw("dropping message for slow or gone receiver", "type", msg.Type)
	}
}

// broadcastClients sends a message to every unseated client.
func (a *App) broadcastClients(msg protocol.ServerMessage) {
	for _, tx := range a.clients {
		trySend(tx, msg)
	}
}

// currentLobbies snapshots the lobby list for clients.
func (a *App) currentLobbies() map[uuid.UUID]protocol.LobbyListItem {
	lobbies := make(map[uuid.UUID]protocol.LobbyListItem, len(a.lobbies))
	for id, l := range a.lobbies {
		lobbies[id] = l.toListItem()
	}
	return lobbies
}

// connectionCounts totals unseated clients and seated players.
func (a *App) connectionCounts() protocol.ConnectionCounts {
	players := 0
	for _, l := range a.lobbies {
		players += len(l.Players)
	}
	return protocol.ConnectionCounts{Clients: len(a.clients), Players: players}
}

// createLobby registers a fresh lobby and announces it to all clients.
func (a *App) createLobby() *Lobby {
	l := newLobby()
	a.lobbies[l.ID] = l
	zap.S().Infow("created new lobby", "lobby", l.Name, "open_lobbies", len(a.lobbies))
	a.post(AddLobby{LobbyID: l.ID})
	return l
}

// lobbyForJoinMode resolves a join mode to a lobby. Quickplay fills the
// fullest lobby with a free seat before spreading players over new ones;
// ties resolve to the smallest lobby id so matchmaking is deterministic.
func (a *App) lobbyForJoinMode(mode protocol.JoinMode) (*Lobby, error) {
	switch mode.Kind {
	case protocol.JoinSpecific:
		l, ok := a.lobbies[mode.LobbyID]
		if !ok {
			return nil, ErrLobbyNotFound
		}
		return l, nil
	case protocol.JoinCreate:
		return a.createLobby(), nil
	default: // quickplay
		var best *Lobby
		for _, l := range a.lobbies {
			if len(l.Players) >= a.cfg.MaxLobbySize {
				continue
			}
			if best == nil || len(l.Players) > len(best.Players) {
				best = l
			} else if len(l.Players) == len(best.Players) && l.ID.String() < best.ID.String() {
				best = l
			}
		}
		if best != nil {
			return best, nil
		}
		return a.createLobby(), nil
	}
}

// transitionLobby applies a status change and emits the registry-wide
// update to clients followed by the in-lobby update to players.
func (a *App) transitionLobby(l *Lobby, status protocol.LobbyStatus) {
	l.Status = status
	a.broadcastClients(protocol.ServerMessage{
		Type:    protocol.ServerUpdateLobbyStatus,
		LobbyID: l.ID,
		Status:  &status,
	})
	l.broadcast(protocol.ServerMessage{
		Type:   protocol.ServerStatusUpdate,
		Status: &status,
	})
}
