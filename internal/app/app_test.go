package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomgroenwoldt/new-keyglide/internal/config"
	"github.com/tomgroenwoldt/new-keyglide/internal/protocol"
)

func testConfig() config.Config {
	return config.Config{
		MaxLobbySize:       3,
		EmptyLobbyLifetime: 80 * time.Millisecond,
		StartTimer:         40 * time.Millisecond,
		MaxPlayTime:        400 * time.Millisecond,
		ReducedPlayTime:    60 * time.Millisecond,
		FinishTime:         60 * time.Millisecond,
	}
}

func startApp(t *testing.T) *App {
	t.Helper()
	a := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	return a
}

// createLobby asks the app for a fresh lobby the same way the HTTP lookup
// does and returns its snapshot.
func createLobby(t *testing.T, a *App) protocol.LobbyInformation {
	t.Helper()
	info, ok := lobbyInfo(t, a, protocol.JoinMode{Kind: protocol.JoinCreate})
	require.True(t, ok, "lobby creation should always answer")
	return info
}

// lobbyInfo performs a one-shot information lookup. ok is false if the app
// closed the reply channel because the lobby does not exist.
func lobbyInfo(t *testing.T, a *App, mode protocol.JoinMode) (protocol.LobbyInformation, bool) {
	t.Helper()
	reply := make(chan protocol.LobbyInformation, 1)
	a.Inbox() <- ProvideLobbyInformation{Reply: reply, JoinMode: mode}
	select {
	case info, ok := <-reply:
		return info, ok
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for lobby information")
		return protocol.LobbyInformation{}, false // unreachable
	}
}

func snapshotLobby(t *testing.T, a *App, id uuid.UUID) (protocol.LobbyInformation, bool) {
	t.Helper()
	return lobbyInfo(t, a, protocol.JoinMode{Kind: protocol.JoinSpecific, LobbyID: id})
}

func newTestPlayer() (*Player, chan protocol.ServerMessage) {
	out := make(chan protocol.ServerMessage, 64)
	return NewPlayer(out), out
}

// waitForMessage drains the channel until a message of the wanted type
// arrives, so interleaved broadcasts never fail an assertion.
func waitForMessage(t *testing.T, ch <-chan protocol.ServerMessage, want protocol.ServerMessageType, within time.Duration) protocol.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case msg := <-ch:
			if msg.Type == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for message of type %q", want)
			return protocol.ServerMessage{} // unreachable
		}
	}
}

func drain(ch <-chan protocol.ServerMessage) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestAddFirstPlayer_BecomesOwner(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, out := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}

	owner := waitForMessage(t, out, protocol.ServerProvideOwner, time.Second)
	assert.Equal(t, p1.ID, owner.PlayerID)

	id := waitForMessage(t, out, protocol.ServerProvidePlayerID, time.Second)
	assert.Equal(t, p1.ID, id.PlayerID)

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Equal(t, protocol.PhaseWaitingForPlayers, snap.Status.Phase)
	require.NotNil(t, snap.Owner)
	assert.Equal(t, p1.ID, *snap.Owner)
	assert.Len(t, snap.Players, 1)
}

func TestAddPlayer_FullLobbyRejects(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	for range testConfig().MaxLobbySize {
		p, _ := newTestPlayer()
		a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p}
	}

	extra, out := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: extra}

	waitForMessage(t, out, protocol.ServerLobbyFull, time.Second)

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Len(t, snap.Players, testConfig().MaxLobbySize)
	assert.NotContains(t, snap.Players, extra.ID)
}

func TestRemovePlayer_OwnerSuccessionIsDeterministic(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, _ := newTestPlayer()
	p2, _ := newTestPlayer()
	p3, out3 := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p2}
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p3}

	a.Inbox() <- RemovePlayer{LobbyID: info.ID, Player: p1}

	// The remaining member with the smallest id takes over.
	expected := p2.ID
	if bytes.Compare(p3.ID[:], p2.ID[:]) < 0 {
		expected = p3.ID
	}

	owner := waitForMessage(t, out3, protocol.ServerProvideOwner, time.Second)
	assert.Equal(t, expected, owner.PlayerID)

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	require.NotNil(t, snap.Owner)
	assert.Equal(t, expected, *snap.Owner)
	assert.NotContains(t, snap.Players, p1.ID)
}

func TestRemovePlayer_UnknownPlayerIsNoOp(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, _ := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}

	stranger, _ := newTestPlayer()
	a.Inbox() <- RemovePlayer{LobbyID: info.ID, Player: stranger}

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Len(t, snap.Players, 1)
	require.NotNil(t, snap.Owner)
	assert.Equal(t, p1.ID, *snap.Owner)
}

func TestRequestStart_RunsFullStatusCycle(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, out := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	waitForMessage(t, out, protocol.ServerProvidePlayerID, time.Second)

	a.Inbox() <- RequestStart{LobbyID: info.ID, Player: p1}

	status := waitForMessage(t, out, protocol.ServerStatusUpdate, time.Second)
	require.NotNil(t, status.Status)
	assert.Equal(t, protocol.PhaseAboutToStart, status.Status.Phase)
	assert.False(t, status.Status.Deadline.IsZero())

	// The start timer advances the lobby without further input.
	require.Eventually(t, func() bool {
		snap, ok := snapshotLobby(t, a, info.ID)
		return ok && snap.Status.Phase == protocol.PhaseInProgress
	}, time.Second, 10*time.Millisecond)

	// And the play and finish timers complete the cycle on their own.
	require.Eventually(t, func() bool {
		snap, ok := snapshotLobby(t, a, info.ID)
		return ok && snap.Status.Phase == protocol.PhaseFinish
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		snap, ok := snapshotLobby(t, a, info.ID)
		return ok && snap.Status.Phase == protocol.PhaseWaitingForPlayers
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRequestStart_NonOwnerIsRejected(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, _ := newTestPlayer()
	p2, _ := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p2}

	a.Inbox() <- RequestStart{LobbyID: info.ID, Player: p2}

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Equal(t, protocol.PhaseWaitingForPlayers, snap.Status.Phase)
}

func TestStartLobby_StaleTimerIsNoOp(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, out := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	// The connection-count broadcast is the last follow-up of the join;
	// once it arrived the channel stays quiet.
	waitForMessage(t, out, protocol.ServerConnectionCounts, time.Second)
	drain(out)

	// A start timer firing into a lobby that never was about to start
	// must change nothing and broadcast nothing.
	a.Inbox() <- StartLobby{LobbyID: info.ID}

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Equal(t, protocol.PhaseWaitingForPlayers, snap.Status.Phase)

	select {
	case msg := <-out:
		t.Fatalf("expected no broadcast, got %q", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAddPlayer_RunningLobbyRejects(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, out := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	waitForMessage(t, out, protocol.ServerProvidePlayerID, time.Second)

	a.Inbox() <- RequestStart{LobbyID: info.ID, Player: p1}
	waitForMessage(t, out, protocol.ServerStatusUpdate, time.Second)

	late, lateOut := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: late}

	waitForMessage(t, lateOut, protocol.ServerLobbyNotWaiting, time.Second)

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Len(t, snap.Players, 1)
}

func TestComputePlayerProgress_FinisherShortensRace(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, out1 := newTestPlayer()
	p2, out2 := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p2}
	waitForMessage(t, out1, protocol.ServerProvidePlayerID, time.Second)

	a.Inbox() <- RequestStart{LobbyID: info.ID, Player: p1}
	require.Eventually(t, func() bool {
		snap, ok := snapshotLobby(t, a, info.ID)
		return ok && snap.Status.Phase == protocol.PhaseInProgress
	}, time.Second, 10*time.Millisecond)

	// Submit the goal file itself.
	a.Inbox() <- ComputePlayerProgress{
		LobbyID:    info.ID,
		PlayerID:   p1.ID,
		Submission: info.ChallengeFiles.GoalFile,
	}

	update := waitForMessage(t, out2, protocol.ServerUpdatePlayerProgress, time.Second)
	assert.Equal(t, p1.ID, update.PlayerID)
	require.NotNil(t, update.Progress)
	assert.Equal(t, 1.0, *update.Progress)

	placement := waitForMessage(t, out2, protocol.ServerSendMessage, time.Second)
	assert.Contains(t, placement.Message, "finished in place 1")

	// The reduced deadline finishes the race long before the full play
	// time would have elapsed.
	require.Eventually(t, func() bool {
		snap, ok := snapshotLobby(t, a, info.ID)
		return ok && snap.Status.Phase == protocol.PhaseFinish
	}, 300*time.Millisecond, 10*time.Millisecond)
}

func TestComputePlayerProgress_DroppedOutsideRace(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, _ := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}

	a.Inbox() <- ComputePlayerProgress{
		LobbyID:    info.ID,
		PlayerID:   p1.ID,
		Submission: info.ChallengeFiles.GoalFile,
	}

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Equal(t, 0.0, snap.Players[p1.ID].Progress)
}

func TestRemoveLastPlayer_LobbyResetsAndExpires(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, out := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	waitForMessage(t, out, protocol.ServerProvidePlayerID, time.Second)

	a.Inbox() <- RemovePlayer{LobbyID: info.ID, Player: p1}

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Nil(t, snap.Owner)
	assert.Empty(t, snap.Players)
	assert.Equal(t, protocol.PhaseWaitingForPlayers, snap.Status.Phase)

	// After the grace period the empty lobby disappears.
	require.Eventually(t, func() bool {
		_, ok := snapshotLobby(t, a, info.ID)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRemoveLobby_RejoinDuringGracePeriodKeepsLobby(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, _ := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	a.Inbox() <- RemovePlayer{LobbyID: info.ID, Player: p1}

	// Rejoin well inside the grace period.
	p2, _ := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p2}

	// The delayed removal fires, re-checks, and must keep the lobby.
	time.Sleep(2 * testConfig().EmptyLobbyLifetime)

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Len(t, snap.Players, 1)
}

func TestQuickplay_FillsFullestLobbyFirst(t *testing.T) {
	a := startApp(t)
	sparse := createLobby(t, a)
	crowded := createLobby(t, a)

	p1, _ := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: sparse.ID, Player: p1}
	p2, _ := newTestPlayer()
	p3, _ := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: crowded.ID, Player: p2}
	a.Inbox() <- AddPlayerToLobby{LobbyID: crowded.ID, Player: p3}

	match, ok := lobbyInfo(t, a, protocol.JoinMode{Kind: protocol.JoinQuickplay})
	require.True(t, ok)
	assert.Equal(t, crowded.ID, match.ID)
}

func TestQuickplay_CreatesLobbyWhenAllAreFull(t *testing.T) {
	a := startApp(t)
	full := createLobby(t, a)

	for range testConfig().MaxLobbySize {
		p, _ := newTestPlayer()
		a.Inbox() <- AddPlayerToLobby{LobbyID: full.ID, Player: p}
	}

	match, ok := lobbyInfo(t, a, protocol.JoinMode{Kind: protocol.JoinQuickplay})
	require.True(t, ok)
	assert.NotEqual(t, full.ID, match.ID)
	assert.Empty(t, match.Players)
}

func TestJoinSpecific_UnknownLobbyClosesReply(t *testing.T) {
	a := startApp(t)

	_, ok := snapshotLobby(t, a, uuid.New())
	assert.False(t, ok)
}

func TestAddPlayer_FollowUpsBypassFullInbox(t *testing.T) {
	// Drive the dispatcher directly, standing in for the loop goroutine.
	a := New(testConfig())

	reply := make(chan protocol.LobbyInformation, 1)
	a.handle(ProvideLobbyInformation{Reply: reply, JoinMode: protocol.JoinMode{Kind: protocol.JoinCreate}})
	info := <-reply

	// External producers have run the inbox completely full.
	for range inboxSize {
		a.inbox <- SendConnectionCounts{}
	}

	// A handler that posts follow-ups must still complete: self-posts go
	// through the pending queue, never the inbox.
	queued := len(a.pending)
	p1, _ := newTestPlayer()
	done := make(chan struct{})
	go func() {
		a.handle(AddPlayerToLobby{LobbyID: info.ID, Player: p1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("join handler blocked enqueueing follow-ups while the inbox was full")
	}
	require.Greater(t, len(a.pending), queued)
}

func TestProvideLobbyInformation_NeverBlocksOnReply(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	// An unbuffered reply channel nobody receives from loses its answer
	// but must not wedge the loop.
	reply := make(chan protocol.LobbyInformation)
	a.Inbox() <- ProvideLobbyInformation{
		Reply:    reply,
		JoinMode: protocol.JoinMode{Kind: protocol.JoinSpecific, LobbyID: info.ID},
	}

	snap, ok := snapshotLobby(t, a, info.ID)
	require.True(t, ok)
	assert.Equal(t, info.ID, snap.ID)
}

func TestSendMessage_RelaysChatToAllMembers(t *testing.T) {
	a := startApp(t)
	info := createLobby(t, a)

	p1, _ := newTestPlayer()
	p2, out2 := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p2}

	a.Inbox() <- SendMessage{LobbyID: info.ID, Player: p1, Message: "good luck"}

	chat := waitForMessage(t, out2, protocol.ServerSendMessage, time.Second)
	assert.Equal(t, p1.Name+": good luck", chat.Message)
}

func TestClients_ReceiveLobbyListAndCounts(t *testing.T) {
	a := startApp(t)

	out := make(chan protocol.ServerMessage, 64)
	clientID := uuid.New()
	a.Inbox() <- AddClient{ClientID: clientID, Tx: out}
	a.Inbox() <- CurrentLobbies{ClientID: clientID}

	list := waitForMessage(t, out, protocol.ServerCurrentLobbies, time.Second)
	assert.Empty(t, list.Lobbies)

	// A new lobby with a player shows up as incremental updates.
	info := createLobby(t, a)
	waitForMessage(t, out, protocol.ServerAddLobby, time.Second)

	p1, _ := newTestPlayer()
	a.Inbox() <- AddPlayerToLobby{LobbyID: info.ID, Player: p1}
	count := waitForMessage(t, out, protocol.ServerUpdateLobbyPlayerCount, time.Second)
	assert.Equal(t, info.ID, count.LobbyID)
	require.NotNil(t, count.PlayerCount)
	assert.Equal(t, 1, *count.PlayerCount)

	// The join also refreshes the connection totals.
	counts := waitForMessage(t, out, protocol.ServerConnectionCounts, time.Second)
	require.NotNil(t, counts.Counts)
	assert.Equal(t, 1, counts.Counts.Clients)
	assert.Equal(t, 1, counts.Counts.Players)
}
