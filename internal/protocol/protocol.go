// Package protocol holds the wire contracts shared between the backend and
// its websocket/HTTP clients. Both message directions are tagged unions: a
// single struct with a "type" discriminator and optional payload fields.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// ClientMessageType discriminates inbound player messages.
type ClientMessageType string

const (
	ClientSendMessage  ClientMessageType = "send_message"
	ClientRequestStart ClientMessageType = "request_start"
	ClientProgress     ClientMessageType = "progress"
)

// ClientMessage is what a seated player sends over its websocket.
type ClientMessage struct {
	Type     ClientMessageType `json:"type"`
	Message  string            `json:"message,omitempty"`
	Progress []byte            `json:"progress,omitempty"`
}

// ServerMessageType discriminates outbound messages.
type ServerMessageType string

const (
	ServerCurrentLobbies         ServerMessageType = "current_lobbies"
	ServerAddLobby               ServerMessageType = "add_lobby"
	ServerRemoveLobby            ServerMessageType = "remove_lobby"
	ServerUpdateLobbyPlayerCount ServerMessageType = "update_lobby_player_count"
	ServerUpdateLobbyStatus      ServerMessageType = "update_lobby_status"
	ServerConnectionCounts       ServerMessageType = "connection_counts"
	ServerLobbyFull              ServerMessageType = "lobby_full"
	ServerLobbyNotWaiting        ServerMessageType = "lobby_not_waiting_for_players"
	ServerProvidePlayerID        ServerMessageType = "provide_player_id"
	ServerProvideOwner           ServerMessageType = "provide_owner"
	ServerAddPlayer              ServerMessageType = "add_player"
	ServerRemovePlayer           ServerMessageType = "remove_player"
	ServerSendMessage            ServerMessageType = "send_message"
	ServerStatusUpdate           ServerMessageType = "status_update"
	ServerUpdatePlayerProgress   ServerMessageType = "update_player_progress"
)

// ServerMessage is the single outbound frame. Only the fields belonging to
// Type are populated.
type ServerMessage struct {
	Type ServerMessageType `json:"type"`

	Lobbies     map[uuid.UUID]LobbyListItem `json:"lobbies,omitempty"`
	LobbyID     uuid.UUID                   `json:"lobby_id,omitempty"`
	Lobby       *LobbyListItem              `json:"lobby,omitempty"`
	PlayerCount *int                        `json:"player_count,omitempty"`
	Status      *LobbyStatus                `json:"status,omitempty"`
	Counts      *ConnectionCounts           `json:"counts,omitempty"`
	PlayerID    uuid.UUID                   `json:"player_id,omitempty"`
	Player      *Player                     `json:"player,omitempty"`
	Message     string                      `json:"message,omitempty"`
	Progress    *float64                    `json:"progress,omitempty"`
}

// StatusPhase names the race phase of a lobby.
type StatusPhase string

const (
	PhaseWaitingForPlayers StatusPhase = "waiting_for_players"
	PhaseAboutToStart      StatusPhase = "about_to_start"
	PhaseInProgress        StatusPhase = "in_progress"
	PhaseFinish            StatusPhase = "finish"
)

// LobbyStatus is the lobby's race phase plus the absolute deadline at which
// the phase advances on its own. WaitingForPlayers carries no deadline.
type LobbyStatus struct {
	Phase    StatusPhase `json:"phase"`
	Deadline time.Time   `json:"deadline,omitzero"`
}

// Player is the client-facing view of a seated connection.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Progress float64   `json:"progress"`
}

// ChallengeFiles is the immutable pair of byte buffers defining one race.
type ChallengeFiles struct {
	StartFile []byte `json:"start_file"`
	GoalFile  []byte `json:"goal_file"`
}

// LobbyListItem is the lobby-list entry sent to unseated clients.
type LobbyListItem struct {
	Name        string      `json:"name"`
	PlayerCount int         `json:"player_count"`
	Status      LobbyStatus `json:"status"`
}

// LobbyInformation is the full lobby snapshot returned by the HTTP lookup.
type LobbyInformation struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	Status         LobbyStatus          `json:"status"`
	Owner          *uuid.UUID           `json:"owner,omitempty"`
	Players        map[uuid.UUID]Player `json:"players"`
	ChallengeFiles ChallengeFiles       `json:"challenge_files"`
}

// ConnectionCounts is the total of connected clients and seated players.
type ConnectionCounts struct {
	Clients int `json:"clients"`
	Players int `json:"players"`
}
