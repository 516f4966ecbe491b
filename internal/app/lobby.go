package app

import (
	"bytes"
	_ "embed"
	"slices"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tomgroenwoldt/new-keyglide/internal/protocol"
)

// Every lobby races the same embedded challenge for now.
//
//go:embed assets/start.txt
var startFile []byte

//go:embed assets/goal.txt
var goalFile []byte

// Lobby is a bounded group of players racing the same challenge. It is plain
// data owned by the app loop; nothing in here is safe for concurrent use.
type Lobby struct {
	ID      uuid.UUID
	Name    string
	Players map[uuid.UUID]*Player
	// Owner is the member allowed to start the race. uuid.Nil while the
	// lobby is empty.
	Owner          uuid.UUID
	Status         protocol.LobbyStatus
	ChallengeFiles protocol.ChallengeFiles
}

func newLobby() *Lobby {
	return &Lobby{
		ID:      uuid.New(),
		Name:    gofakeit.Company(),
		Players: make(map[uuid.UUID]*Player),
		Status:  protocol.LobbyStatus{Phase: protocol.PhaseWaitingForPlayers},
		ChallengeFiles: protocol.ChallengeFiles{
			StartFile: startFile,
			GoalFile:  goalFile,
		},
	}
}

// broadcast sends a message to every player in the lobby. Best effort: a
// full or abandoned channel is logged and skipped.
func (l *Lobby) broadcast(msg protocol.ServerMessage) {
	for _, p := range l.Players {
		trySend(p.Tx, msg)
	}
}

// smallestPlayerID returns the numerically smallest member id. Owner
// succession relies on this being deterministic.
func (l *Lobby) smallestPlayerID() (uuid.UUID, bool) {
	if len(l.Players) == 0 {
		return uuid.Nil, false
	}
	ids := make([]uuid.UUID, 0, len(l.Players))
	for id := range l.Players {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids[0], true
}

func (l *Lobby) toListItem() protocol.LobbyListItem {
	return protocol.LobbyListItem{
		Name:        l.Name,
		PlayerCount: len(l.Players),
		Status:      l.Status,
	}
}

func (l *Lobby) toInformation() protocol.LobbyInformation {
	players := make(map[uuid.UUID]protocol.Player, len(l.Players))
	for id, p := range l.Players {
		players[id] = p.toProtocol()
	}
	info := protocol.LobbyInformation{
		ID:             l.ID,
		Name:           l.Name,
		Status:         l.Status,
		Players:        players,
		ChallengeFiles: l.ChallengeFiles,
	}
	if l.Owner != uuid.Nil {
		owner := l.Owner
		info.Owner = &owner
	}
	return info
}

// addPlayer seats a player. A full lobby or a lobby that already started
// rejects the candidate with a notification and stays untouched.
func (l *Lobby) addPlayer(p *Player, a *App) {
	if len(l.Players) >= a.cfg.MaxLobbySize {
		zap.S().Warnw("tried to add player to full lobby",
			"player", p.Name, "lobby", l.Name)
		a.post(LobbyFull{PlayerTx: p.Tx})
		return
	}
	if l.Status.Phase != protocol.PhaseWaitingForPlayers {
		zap.S().Warnw("tried to add player to lobby that is not waiting for players",
			"player", p.Name, "lobby", l.Name, "phase", l.Status.Phase)
		a.post(LobbyNotWaitingForPlayers{PlayerTx: p.Tx})
		return
	}

	l.Players[p.ID] = p
	zap.S().Infow("added player to lobby", "player", p.Name, "lobby", l.Name)

	// The first member owns the lobby.
	if len(l.Players) == 1 {
		l.Owner = p.ID
		trySend(p.Tx, protocol.ServerMessage{
			Type:     protocol.ServerProvideOwner,
			PlayerID: p.ID,
		})
	}

	player := p.toProtocol()
	l.broadcast(protocol.ServerMessage{
		Type:   protocol.ServerAddPlayer,
		Player: &player,
	})
	trySend(p.Tx, protocol.ServerMessage{
		Type:     protocol.ServerProvidePlayerID,
		PlayerID: p.ID,
	})

	a.post(SendLobbyPlayerCountUpdate{LobbyID: l.ID})
	a.post(SendConnectionCounts{})
}

// removePlayer unseats a player if it is a member; unknown players are a
// logged no-op. The lobby owner is re-elected deterministically, and an
// emptied lobby resets and schedules its own removal.
func (l *Lobby) removePlayer(p *Player, a *App) {
	if _, ok := l.Players[p.ID]; !ok {
		zap.S().Errorw("player was not found in lobby",
			"player", p.Name, "lobby", l.Name)
		return
	}
	delete(l.Players, p.ID)
	zap.S().Infow("removed player from lobby", "player", p.Name, "lobby", l.Name)

	l.broadcast(protocol.ServerMessage{
		Type:     protocol.ServerRemovePlayer,
		PlayerID: p.ID,
	})

	if l.Owner == p.ID {
		if successor, ok := l.smallestPlayerID(); ok {
			l.Owner = successor
			l.broadcast(protocol.ServerMessage{
				Type:     protocol.ServerProvideOwner,
				PlayerID: successor,
			})
		} else {
			l.Owner = uuid.Nil
		}
	}

	if len(l.Players) == 0 {
		a.transitionLobby(l, protocol.LobbyStatus{Phase: protocol.PhaseWaitingForPlayers})
		a.schedule(a.cfg.EmptyLobbyLifetime, RemoveLobby{LobbyID: l.ID})
	}

	a.post(SendLobbyPlayerCountUpdate{LobbyID: l.ID})
	a.post(SendConnectionCounts{})
}

// sendChat relays a chat message from a member to the whole lobby, prefixed
// with the sender's name.
func (l *Lobby) sendChat(p *Player, message string) {
	sender, ok := l.Players[p.ID]
	if !ok {
		zap.S().Errorw("player was not found in lobby",
			"player", p.Name, "lobby", l.Name)
		return
	}
	l.broadcast(protocol.ServerMessage{
		Type:    protocol.ServerSendMessage,
		Message: sender.Name + ": " + message,
	})
}
