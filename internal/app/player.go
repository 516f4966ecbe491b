package app

import (
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/tomgroenwoldt/new-keyglide/internal/protocol"
)

// Player is a seated connection. The app loop owns every field after the
// player was handed over via AddPlayerToLobby; the connection goroutine only
// consumes Tx.
type Player struct {
	ID   uuid.UUID
	Name string
	// Tx is the player's private outbound channel, drained by its
	// connection goroutine.
	Tx chan<- protocol.ServerMessage
	// Progress is the normalized similarity of the player's last
	// submission to the goal file, in [0, 1].
	Progress float64
	// Waiting marks a player sitting out the current race, i.e. a
	// late-join spectator. No path sets it yet: admission rejects joins
	// outside WaitingForPlayers, so the flag stays false. The evaluator
	// still drops submissions of waiting players and a reset clears the
	// flag, so a future late-join path only has to set it.
	Waiting bool
}

// NewPlayer creates a player with a fresh id and a generated display name.
func NewPlayer(tx chan<- protocol.ServerMessage) *Player {
	return &Player{
		ID:   uuid.New(),
		Name: gofakeit.Name(),
		Tx:   tx,
	}
}

func (p *Player) toProtocol() protocol.Player {
	return protocol.Player{
		ID:       p.ID,
		Name:     p.Name,
		Progress: p.Progress,
	}
}
