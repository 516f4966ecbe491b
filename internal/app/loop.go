package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tomgroenwoldt/new-keyglide/internal/progress"
	"github.com/tomgroenwoldt/new-keyglide/internal/protocol"
)

// Run drains the inbox one message at a time, processing each to completion
// before taking the next. This total ordering is what replaces locking. A
// vanished lobby, player or client is an expected race with disconnects and
// delayed timers, never a reason to stop the loop.
func (a *App) Run(ctx context.Context) {
	for {
		// Self-posted follow-ups run before the next external message,
		// so one message's effects are complete before another is seen.
		if len(a.pending) > 0 {
			msg := a.pending[0]
			a.pending = a.pending[1:]
			a.handle(msg)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case msg := <-a.inbox:
			a.handle(msg)
		}
	}
}

func (a *App) handle(msg Message) {
	switch msg := msg.(type) {
	case ProvideLobbyInformation:
		a.handleProvideLobbyInformation(msg)

	case AddPlayerToLobby:
		l, ok := a.lobbies[msg.LobbyID]
		if !ok {
			zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
			return
		}
		l.addPlayer(msg.Player, a)

	case RemovePlayer:
		l, ok := a.lobbies[msg.LobbyID]
		if !ok {
			zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
			return
		}
		l.removePlayer(msg.Player, a)

	case SendMessage:
		l, ok := a.lobbies[msg.LobbyID]
		if !ok {
			zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
			return
		}
		l.sendChat(msg.Player, msg.Message)

	case RequestStart:
		a.handleRequestStart(msg)

	case ComputePlayerProgress:
		a.handleComputePlayerProgress(msg)

	case AddClient:
		a.clients[msg.ClientID] = msg.Tx
		a.post(SendConnectionCounts{})
		zap.S().Infow("added client", "client_id", msg.ClientID, "clients", len(a.clients))

	case RemoveClient:
		delete(a.clients, msg.ClientID)
		a.post(SendConnectionCounts{})
		zap.S().Infow("removed client", "client_id", msg.ClientID, "clients", len(a.clients))

	case CurrentLobbies:
		tx, ok := a.clients[msg.ClientID]
		if !ok {
			zap.S().Errorw("client was not found", "client_id", msg.ClientID)
			return
		}
		trySend(tx, protocol.ServerMessage{
			Type:    protocol.ServerCurrentLobbies,
			Lobbies: a.currentLobbies(),
		})

	case AddLobby:
		l, ok := a.lobbies[msg.LobbyID]
		if !ok {
			zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
			return
		}
		item := l.toListItem()
		a.broadcastClients(protocol.ServerMessage{
			Type:    protocol.ServerAddLobby,
			LobbyID: l.ID,
			Lobby:   &item,
		})

	case RemoveLobby:
		a.handleRemoveLobby(msg)

	case LobbyFull:
		trySend(msg.PlayerTx, protocol.ServerMessage{Type: protocol.ServerLobbyFull})

	case LobbyNotWaitingForPlayers:
		trySend(msg.PlayerTx, protocol.ServerMessage{Type: protocol.ServerLobbyNotWaiting})

	case SendLobbyPlayerCountUpdate:
		l, ok := a.lobbies[msg.LobbyID]
		if !ok {
			zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
			return
		}
		count := len(l.Players)
		a.broadcastClients(protocol.ServerMessage{
			Type:        protocol.ServerUpdateLobbyPlayerCount,
			LobbyID:     l.ID,
			PlayerCount: &count,
		})

	case SendLobbyStatusUpdate:
		l, ok := a.lobbies[msg.LobbyID]
		if !ok {
			zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
			return
		}
		status := l.Status
		a.broadcastClients(protocol.ServerMessage{
			Type:    protocol.ServerUpdateLobbyStatus,
			LobbyID: l.ID,
			Status:  &status,
		})

	case SendConnectionCounts:
		counts := a.connectionCounts()
		out := protocol.ServerMessage{
			Type:   protocol.ServerConnectionCounts,
			Counts: &counts,
		}
		a.broadcastClients(out)
		for _, l := range a.lobbies {
			l.broadcast(out)
		}

	case StartLobby:
		a.handleStartLobby(msg)

	case FinishLobby:
		a.handleFinishLobby(msg)

	case ResetLobby:
		a.handleResetLobby(msg)

	default:
		zap.S().DPanicw("unhandled app message", "message", fmt.Sprintf("%T", msg))
	}
}

func (a *App) handleProvideLobbyInformation(msg ProvideLobbyInformation) {
	l, err := a.lobbyForJoinMode(msg.JoinMode)
	if err != nil {
		zap.S().Errorw("failed to resolve join mode",
			"join_mode", msg.JoinMode.String(), "error", err)
		close(msg.Reply)
		return
	}
	// The loop never blocks on the caller; an unreceivable reply channel
	// loses its answer, not the loop.
	select {
	case msg.Reply <- l.toInformation():
	default:
		zap.S().Errorw("dropping lobby information for unreceivable reply channel",
			"lobby", l.Name)
	}
	close(msg.Reply)
}

func (a *App) handleRequestStart(msg RequestStart) {
	l, ok := a.lobbies[msg.LobbyID]
	if !ok {
		zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
		return
	}
	if l.Owner != msg.Player.ID || l.Status.Phase != protocol.PhaseWaitingForPlayers {
		zap.S().Warnw("rejected start request",
			"player", msg.Player.Name, "lobby", l.Name, "phase", l.Status.Phase)
		return
	}
	a.transitionLobby(l, protocol.LobbyStatus{
		Phase:    protocol.PhaseAboutToStart,
		Deadline: time.Now().Add(a.cfg.StartTimer),
	})
	a.schedule(a.cfg.StartTimer, StartLobby{LobbyID: l.ID})
}

func (a *App) handleStartLobby(msg StartLobby) {
	l, ok := a.lobbies[msg.LobbyID]
	if !ok {
		zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
		return
	}
	// Stale timer: the lobby moved on, e.g. everyone left and it reset.
	if l.Status.Phase != protocol.PhaseAboutToStart {
		zap.S().Warnw("tried to start lobby that was not about to start",
			"lobby", l.Name, "phase", l.Status.Phase)
		return
	}
	a.transitionLobby(l, protocol.LobbyStatus{
		Phase:    protocol.PhaseInProgress,
		Deadline: time.Now().Add(a.cfg.MaxPlayTime),
	})
	a.schedule(a.cfg.MaxPlayTime, FinishLobby{LobbyID: l.ID})
}

func (a *App) handleFinishLobby(msg FinishLobby) {
	l, ok := a.lobbies[msg.LobbyID]
	if !ok {
		zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
		return
	}
	if l.Status.Phase != protocol.PhaseInProgress {
		zap.S().Warnw("tried to finish lobby that was not in progress",
			"lobby", l.Name, "phase", l.Status.Phase)
		return
	}
	a.transitionLobby(l, protocol.LobbyStatus{
		Phase:    protocol.PhaseFinish,
		Deadline: time.Now().Add(a.cfg.FinishTime),
	})
	a.schedule(a.cfg.FinishTime, ResetLobby{LobbyID: l.ID})
}

func (a *App) handleResetLobby(msg ResetLobby) {
	l, ok := a.lobbies[msg.LobbyID]
	if !ok {
		zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
		return
	}
	if l.Status.Phase != protocol.PhaseFinish {
		zap.S().Warnw("tried to reset lobby that was not finished",
			"lobby", l.Name, "phase", l.Status.Phase)
		return
	}
	zero := 0.0
	for _, p := range l.Players {
		p.Progress = 0
		p.Waiting = false
		l.broadcast(protocol.ServerMessage{
			Type:     protocol.ServerUpdatePlayerProgress,
			PlayerID: p.ID,
			Progress: &zero,
		})
	}
	a.transitionLobby(l, protocol.LobbyStatus{Phase: protocol.PhaseWaitingForPlayers})
}

func (a *App) handleComputePlayerProgress(msg ComputePlayerProgress) {
	l, ok := a.lobbies[msg.LobbyID]
	if !ok {
		zap.S().Errorw("lobby was not found", "lobby_id", msg.LobbyID)
		return
	}
	if l.Status.Phase != protocol.PhaseInProgress {
		zap.S().Warnw("dropping progress submission outside running race",
			"lobby", l.Name, "phase", l.Status.Phase)
		return
	}
	p, ok := l.Players[msg.PlayerID]
	if !ok {
		zap.S().Errorw("player was not found in lobby",
			"player_id", msg.PlayerID, "lobby", l.Name)
		return
	}
	if p.Waiting {
		zap.S().Warnw("dropping progress submission of waiting player",
			"player", p.Name, "lobby", l.Name)
		return
	}

	score, err := progress.Score(l.ChallengeFiles.GoalFile, msg.Submission)
	if err != nil {
		zap.S().Errorw("failed to score submission",
			"player", p.Name, "lobby", l.Name, "error", err)
		return
	}

	// Placement is determined before this player's score is stored.
	placement := 1
	for id, other := range l.Players {
		if id != p.ID && other.Progress >= 1.0 {
			placement++
		}
	}

	p.Progress = score
	l.broadcast(protocol.ServerMessage{
		Type:     protocol.ServerUpdatePlayerProgress,
		PlayerID: p.ID,
		Progress: &score,
	})

	if score < 1.0 {
		return
	}

	l.broadcast(protocol.ServerMessage{
		Type:    protocol.ServerSendMessage,
		Message: fmt.Sprintf("%s finished in place %d!", p.Name, placement),
	})

	// A finisher cuts the remaining play time short.
	a.transitionLobby(l, protocol.LobbyStatus{
		Phase:    protocol.PhaseInProgress,
		Deadline: time.Now().Add(a.cfg.ReducedPlayTime),
	})
	a.schedule(a.cfg.ReducedPlayTime, FinishLobby{LobbyID: l.ID})
}

func (a *App) handleRemoveLobby(msg RemoveLobby) {
	l, ok := a.lobbies[msg.LobbyID]
	if !ok {
		// Already removed by an earlier timer.
		return
	}
	// Someone rejoined during the grace period; keep the lobby.
	if len(l.Players) > 0 {
		return
	}
	delete(a.lobbies, msg.LobbyID)
	zap.S().Infow("removed lobby", "lobby", l.Name, "open_lobbies", len(a.lobbies))
	a.broadcastClients(protocol.ServerMessage{
		Type:    protocol.ServerRemoveLobby,
		LobbyID: msg.LobbyID,
	})
}
