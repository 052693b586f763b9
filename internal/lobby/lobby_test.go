package lobby

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/auth"
	"github.com/DoyleJ11/olympics-backend/internal/engine"
	"github.com/DoyleJ11/olympics-backend/internal/model"
	"github.com/DoyleJ11/olympics-backend/internal/rooms"
	"github.com/DoyleJ11/olympics-backend/internal/store"
	"github.com/DoyleJ11/olympics-backend/internal/store/memory"
)

const host = "host-user"

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no snapshot within %v, but got version %d", within, s.Version)
	case <-time.After(within):
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func send(t *testing.T, l *Lobby, cmd engine.Command) error {
	t.Helper()
	reply := make(chan error, 1)
	l.Inbox() <- FromClient{Cmd: cmd, Reply: reply}
	select {
	case err := <-reply:
		return err
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for command reply")
		return nil
	}
}

// seedRoom stores a playing room with two teams and the given challenge lengths.
func seedRoom(t *testing.T, st store.Store, durations ...int) model.Room {
	t.Helper()
	ctx := context.Background()

	room := model.Room{Name: "Fiesta", MaxPlayers: 4, NumTeams: 2, Status: model.RoomPlaying, CreatedBy: host}
	require.NoError(t, st.InsertRoom(ctx, &room))

	for i, m := range []model.Member{
		{UserID: host, PlayerName: "Ana", Role: model.RoleHost, TeamNumber: 1, TeamColor: "#FF6B6B"},
		{UserID: "u2", PlayerName: "Bo", Role: model.RolePlayer, TeamNumber: 2, TeamColor: "#4ECDC4"},
	} {
		m.RoomID = room.ID
		m.JoinedAt = time.Unix(int64(i), 0)
		require.NoError(t, st.InsertMember(ctx, &m))
	}

	var list []model.Challenge
	for i, d := range durations {
		list = append(list, model.Challenge{Title: "round", Order: i + 1, Status: model.ChallengePending, Duration: &d})
	}
	require.NoError(t, st.ReplaceChallenges(ctx, room.ID, list))
	return room
}

func startLobby(t *testing.T, st store.Store, roomID string, opts Options) *Lobby {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	init, err := LoadState(ctx, st, roomID)
	require.NoError(t, err)

	if opts.Store == nil {
		opts.Store = st
	}
	return NewLobby(ctx, init, opts)
}

func TestLobby_SelectWinner_BroadcastsAndPersists(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60, 60)
	l := startLobby(t, st, room.ID, Options{})

	out := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	first := recvSnapshot(t, out, 100*time.Millisecond)
	assert.Equal(t, 0, first.Version)
	assert.Equal(t, 0, first.State.Cursor)
	assert.Equal(t, "01:00", first.Board.Clock)

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdSelectWinner, ActorID: host, Team: 2}))

	next := recvSnapshot(t, out, 100*time.Millisecond)
	assert.Equal(t, 1, next.Version)
	assert.Equal(t, 1, next.State.Cursor)
	assert.Equal(t, 2, engine.Winner(next.State.Podium))

	stored, err := st.ListChallenges(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChallengeCompleted, stored[0].Status)
	require.NotNil(t, stored[0].WinnerTeamID)

	members, err := st.ListMembers(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, members[1].ID, *stored[0].WinnerTeamID)

	l.Inbox() <- Shutdown{}
}

func TestLobby_RejectedCommandRepliesWithoutBroadcast(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60)
	l := startLobby(t, st, room.ID, Options{})

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	err := send(t, l, engine.Command{Type: engine.CmdStartChallenge, ActorID: "u2"})
	assert.ErrorIs(t, err, engine.ErrNotHost)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	recvNoSnapshot(t, out, 50*time.Millisecond)
}

func TestLobby_DropSlowClient(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60, 60)
	l := startLobby(t, st, room.ID, Options{})

	clientOut := make(chan Snapshot, 1)
	l.Inbox() <- Join{ClientID: "ch1", Outbox: clientOut}

	l.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdEndChallenge, ActorID: host}}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 100*time.Millisecond)

	assert.Equal(t, 0, view.NumClients, "slow client should be dropped")
}

func TestLobby_CountdownExpiresAndWaitsForHost(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 2, 60)
	l := startLobby(t, st, room.ID, Options{TickInterval: 10 * time.Millisecond})

	out := make(chan Snapshot, 8)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdStartChallenge, ActorID: host}))
	started := recvSnapshot(t, out, 100*time.Millisecond)
	assert.True(t, started.State.Running)

	stored, err := st.ListChallenges(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChallengeActive, stored[0].Status)

	var last Snapshot
	for i := 0; i < 2; i++ {
		last = recvSnapshot(t, out, 500*time.Millisecond)
	}
	assert.False(t, last.State.Running)
	assert.True(t, last.State.AwaitingResult)
	assert.Equal(t, "00:00", last.Board.Clock)

	// the ticker is stopped now
	recvNoSnapshot(t, out, 50*time.Millisecond)

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdSelectWinner, ActorID: host, Team: 1}))
	done := recvSnapshot(t, out, 100*time.Millisecond)
	assert.Equal(t, []string{stored[0].ID}, done.State.Completed)
}

func TestLobby_PauseStopsCountdown(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60)
	l := startLobby(t, st, room.ID, Options{TickInterval: 10 * time.Millisecond})

	out := make(chan Snapshot, 8)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdStartChallenge, ActorID: host}))
	_ = recvSnapshot(t, out, 100*time.Millisecond)
	tick := recvSnapshot(t, out, 500*time.Millisecond)
	require.Equal(t, 59, tick.State.Remaining)

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdPauseChallenge, ActorID: host}))

	// drain anything that raced the pause, then expect silence
	var paused Snapshot
	for !paused.State.Paused {
		paused = recvSnapshot(t, out, 500*time.Millisecond)
	}
	recvNoSnapshot(t, out, 60*time.Millisecond)

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdStartChallenge, ActorID: host}))
	resumed := recvSnapshot(t, out, 100*time.Millisecond)
	assert.Equal(t, paused.State.Remaining, resumed.State.Remaining)
}

// failingStore refuses challenge writes.
type failingStore struct {
	store.Store
}

func (failingStore) UpdateChallenge(context.Context, string, store.ChallengePatch) (model.Challenge, error) {
	return model.Challenge{}, apperr.Persistence("update challenge", errors.New("connection refused"))
}

func TestLobby_WinnerRecordedLocallyWhenStoreFails(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60, 60)
	l := startLobby(t, st, room.ID, Options{Store: failingStore{Store: st}})

	out := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdSelectWinner, ActorID: host, Team: 1}))
	next := recvSnapshot(t, out, 100*time.Millisecond)

	assert.Len(t, next.State.Completed, 1)
	assert.Equal(t, 1, next.State.Cursor)
	assert.Equal(t, 1, engine.Winner(next.State.Podium))

	stored, err := st.ListChallenges(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChallengePending, stored[0].Status, "nothing reached storage")
}

func TestLobby_LastChallengeFinishesRoom(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60)
	l := startLobby(t, st, room.ID, Options{})

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdSelectWinner, ActorID: host, Team: 2}))

	got, err := st.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomFinished, got.Status)
}

func TestLobby_RosterChangesAreBroadcast(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60)
	mgr := rooms.NewManager(st, auth.ContextIdentity{}, zap.NewNop())
	l := startLobby(t, st, room.ID, Options{Members: mgr})

	out := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	first := recvSnapshot(t, out, 100*time.Millisecond)
	require.Len(t, first.State.Members, 2)

	newcomer := model.Member{RoomID: room.ID, UserID: "u3", PlayerName: "Cy", Role: model.RolePlayer, TeamNumber: 1, TeamColor: "#FF8E8E"}
	require.NoError(t, st.InsertMember(context.Background(), &newcomer))

	next := recvSnapshot(t, out, 500*time.Millisecond)
	assert.Len(t, next.State.Members, 3)
	assert.Len(t, next.Board.Teams[1], 2)
}

func TestLobby_Shutdown_ClosesClientsAndStops(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60)
	l := startLobby(t, st, room.ID, Options{TickInterval: 10 * time.Millisecond})

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdStartChallenge, ActorID: host}}
	l.Inbox() <- Shutdown{}

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby did not stop")
	}

	// the outbox is closed after whatever was already queued
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("outbox was not closed")
		}
	}
}

func TestLobby_LeaveClosesOutbox(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60)
	l := startLobby(t, st, room.ID, Options{})

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- Leave{ClientID: "c1"}

	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("outbox was not closed")
	}
}

func TestLoadState_MissingRoom(t *testing.T) {
	_, err := LoadState(context.Background(), memory.New(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLobby_RevisitedChallengeSurvivesReload(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60, 60, 60)
	l := startLobby(t, st, room.ID, Options{})

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdSelectWinner, ActorID: host, Team: 1}))

	// a paused challenge goes back to pending when the host moves away
	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdStartChallenge, ActorID: host}))
	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdPauseChallenge, ActorID: host}))
	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdSelectChallenge, ActorID: host, Index: 0}))

	err := send(t, l, engine.Command{Type: engine.CmdStartChallenge, ActorID: host})
	assert.ErrorIs(t, err, engine.ErrChallengeCompleted)
	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdPauseChallenge, ActorID: host}))
	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdSelectChallenge, ActorID: host, Index: 1}))

	stored, err := st.ListChallenges(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChallengeCompleted, stored[0].Status)
	assert.Equal(t, model.ChallengePending, stored[1].Status)

	reloaded, err := LoadState(context.Background(), st, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{stored[0].ID}, reloaded.Completed)
	assert.Equal(t, 1, reloaded.Cursor)
	assert.True(t, engine.IsUnlocked(reloaded, 1))
}

func TestLobby_ClosesAfterLastClientLeaves(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60)
	l := startLobby(t, st, room.ID, Options{IdleTimeout: 30 * time.Millisecond})

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	select {
	case <-l.Done():
		t.Fatal("lobby closed while a client was watching")
	case <-time.After(100 * time.Millisecond):
	}

	l.Inbox() <- Leave{ClientID: "c1"}
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby outlived its last client")
	}
	assert.False(t, l.Send(context.Background(), GetState{Reply: make(chan View, 1)}))
}

func TestLobby_RunningClockKeepsSessionOpen(t *testing.T) {
	st := memory.New()
	room := seedRoom(t, st, 60)
	l := startLobby(t, st, room.ID, Options{IdleTimeout: 30 * time.Millisecond})

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdStartChallenge, ActorID: host}))
	select {
	case <-l.Done():
		t.Fatal("lobby closed with the clock running")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, send(t, l, engine.Command{Type: engine.CmdPauseChallenge, ActorID: host}))
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("paused lobby without clients never closed")
	}
}
