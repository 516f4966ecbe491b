package app

import (
	"github.com/google/uuid"

	"github.com/tomgroenwoldt/new-keyglide/internal/protocol"
)

// Message is the closed set of operations the app loop processes. Every
// state change, including the ones the app triggers on itself via timers,
// travels through this set.
type Message interface{ isAppMessage() }

// ProvideLobbyInformation resolves a join mode to a lobby (creating one if
// the mode asks for it) and answers with a full snapshot on Reply. Reply is
// closed without a value if the requested lobby does not exist. Reply must
// have capacity for one value: the loop writes at most once and never
// blocks on the caller.
type ProvideLobbyInformation struct {
	Reply    chan protocol.LobbyInformation
	JoinMode protocol.JoinMode
}

// AddPlayerToLobby seats a freshly connected player in a lobby.
type AddPlayerToLobby struct {
	LobbyID uuid.UUID
	Player  *Player
}

// RemovePlayer unseats a player, usually because its connection closed.
type RemovePlayer struct {
	LobbyID uuid.UUID
	Player  *Player
}

// SendMessage relays a chat message to all members of the sender's lobby.
type SendMessage struct {
	LobbyID uuid.UUID
	Player  *Player
	Message string
}

// RequestStart asks to start the race. Only honored when the requester is
// the lobby owner and the lobby is still waiting for players.
type RequestStart struct {
	LobbyID uuid.UUID
	Player  *Player
}

// ComputePlayerProgress scores a player's submitted file against the goal
// file of its lobby.
type ComputePlayerProgress struct {
	LobbyID    uuid.UUID
	PlayerID   uuid.UUID
	Submission []byte
}

// AddClient registers a connected but unseated client.
type AddClient struct {
	ClientID uuid.UUID
	Tx       chan<- protocol.ServerMessage
}

// RemoveClient drops a client from the registry.
type RemoveClient struct {
	ClientID uuid.UUID
}

// CurrentLobbies sends the full lobby list to one client.
type CurrentLobbies struct {
	ClientID uuid.UUID
}

// AddLobby announces a newly created lobby to all clients.
type AddLobby struct {
	LobbyID uuid.UUID
}

// RemoveLobby removes a lobby if it is still empty. Scheduled a grace
// period after a lobby empties out.
type RemoveLobby struct {
	LobbyID uuid.UUID
}

// LobbyFull tells a candidate player its target lobby has no free seat.
type LobbyFull struct {
	PlayerTx chan<- protocol.ServerMessage
}

// LobbyNotWaitingForPlayers tells a candidate player its target lobby is
// not accepting players right now.
type LobbyNotWaitingForPlayers struct {
	PlayerTx chan<- protocol.ServerMessage
}

// SendLobbyPlayerCountUpdate broadcasts a lobby's player count to clients.
type SendLobbyPlayerCountUpdate struct {
	LobbyID uuid.UUID
}

// SendLobbyStatusUpdate broadcasts a lobby's status to clients. Status
// transitions do not produce it: they broadcast directly, clients before
// lobby members, within the transition itself. This message lets boundary
// producers push a status refresh.
type SendLobbyStatusUpdate struct {
	LobbyID uuid.UUID
}

// SendConnectionCounts broadcasts the connection totals to everyone.
type SendConnectionCounts struct{}

// StartLobby moves a lobby from AboutToStart to InProgress. Posted by the
// start countdown timer; ignored if the status moved on in the meantime.
type StartLobby struct {
	LobbyID uuid.UUID
}

// FinishLobby moves a lobby from InProgress to Finish. Posted by the play
// time timer; ignored if the status moved on in the meantime.
type FinishLobby struct {
	LobbyID uuid.UUID
}

// ResetLobby moves a lobby from Finish back to WaitingForPlayers and wipes
// all player progress. Posted by the finish display timer.
type ResetLobby struct {
	LobbyID uuid.UUID
}

func (ProvideLobbyInformation) isAppMessage()    {}
func (AddPlayerToLobby) isAppMessage()           {}
func (RemovePlayer) isAppMessage()               {}
func (SendMessage) isAppMessage()                {}
func (RequestStart) isAppMessage()               {}
func (ComputePlayerProgress) isAppMessage()      {}
func (AddClient) isAppMessage()                  {}
func (RemoveClient) isAppMessage()               {}
func (CurrentLobbies) isAppMessage()             {}
func (AddLobby) isAppMessage()                   {}
func (RemoveLobby) isAppMessage()                {}
func (LobbyFull) isAppMessage()                  {}
func (LobbyNotWaitingForPlayers) isAppMessage()  {}
func (SendLobbyPlayerCountUpdate) isAppMessage() {}
func (SendLobbyStatusUpdate) isAppMessage()      {}
func (SendConnectionCounts) isAppMessage()       {}
func (StartLobby) isAppMessage()                 {}
func (FinishLobby) isAppMessage()                {}
func (ResetLobby) isAppMessage()                 {}
