package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// JoinMode selects how a connection is matched into a lobby.
type JoinMode struct {
	Kind    JoinKind
	LobbyID uuid.UUID // set for JoinSpecific
}

type JoinKind string

const (
	// JoinQuickplay seats the player in the fullest non-full lobby and
	// creates one if none qualifies.
	JoinQuickplay JoinKind = "quickplay"
	// JoinCreate always creates a fresh lobby.
	JoinCreate JoinKind = "create"
	// JoinSpecific seats the player in the lobby with the given id.
	JoinSpecific JoinKind = "join"
)

// ParseJoinMode parses the URL segment of the lobby lookup: "quickplay",
// "create", or a lobby uuid.
func ParseJoinMode(s string) (JoinMode, error) {
	switch s {
	case string(JoinQuickplay):
		return JoinMode{Kind: JoinQuickplay}, nil
	case string(JoinCreate):
		return JoinMode{Kind: JoinCreate}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return JoinMode{}, fmt.Errorf("invalid join mode %q: %w", s, err)
	}
	return JoinMode{Kind: JoinSpecific, LobbyID: id}, nil
}

func (m JoinMode) String() string {
	if m.Kind == JoinSpecific {
		return m.LobbyID.String()
	}
	return string(m.Kind)
}
