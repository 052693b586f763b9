package lobby

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/engine"
	"github.com/DoyleJ11/olympics-backend/internal/model"
	"github.com/DoyleJ11/olympics-backend/internal/store"
)

type Msg interface{ isLobbyMsg() }

// FromClient carries a command. Reply, when set, receives the outcome and
// must be buffered.
type FromClient struct {
	Cmd   engine.Command
	Reply chan error
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

// MembersChanged replaces the roster the session resolves winners through.
type MembersChanged struct{ Members []model.Member }

func (MembersChanged) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Snapshot struct {
	Version int          `json:"version"`
	State   engine.State `json:"state"`
	Board   engine.Board `json:"board"`
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

// MemberWatcher pushes the full roster of a room whenever it changes.
type MemberWatcher interface {
	WatchMembers(ctx context.Context, roomID string, fn func([]model.Member)) (func(), error)
}

type Options struct {
	// Store receives durable challenge and room updates. Nil keeps the
	// session purely in memory.
	Store        store.Store
	Members      MemberWatcher
	Log          *zap.Logger
	TickInterval time.Duration
	StoreTimeout time.Duration
	// IdleTimeout closes a session that has had no clients and no running
	// clock for this long.
	IdleTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * time.Minute
	}
	return o
}

type Lobby struct {
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	opts    Options
	log     *zap.Logger
	ticker  *time.Ticker
	idle    *time.Timer
	unwatch func()
}

func NewLobby(parent context.Context, initial engine.State, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	opts = opts.withDefaults()

	l := &Lobby{
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		opts:    opts,
		log:     opts.Log.Named("lobby").With(zap.String("room_id", initial.RoomID)),
	}

	if opts.Members != nil {
		unwatch, err := opts.Members.WatchMembers(ctx, initial.RoomID, func(members []model.Member) {
			select {
			case l.inbox <- MembersChanged{Members: members}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			l.log.Warn("member updates unavailable", zap.Error(err))
		} else {
			l.unwatch = unwatch
		}
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		l.syncIdle()
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-l.idleC():
			l.log.Info("closing idle session", zap.Duration("idle_for", l.opts.IdleTimeout))
			l.shutdown()
			return

		case <-l.tickC():
			l.apply(engine.Command{Type: engine.CmdTick})

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- l.snapshot()

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case FromClient:
				err := l.apply(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case MembersChanged:
				l.state = engine.WithMembers(l.state, msg.Members)
				l.version++
				l.broadcast(l.snapshot())

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.state,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// apply runs cmd through the engine, persists what it produced and
// broadcasts the new state. Commands that change nothing are not broadcast.
func (l *Lobby) apply(cmd engine.Command) error {
	events, next, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.log.Debug("command rejected", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return err
	}
	if cmd.Type == engine.CmdTick && len(events) == 0 && next.Remaining == l.state.Remaining {
		return nil
	}

	l.state = next
	l.version++
	l.syncTicker()
	l.persist(events)
	l.broadcast(l.snapshot())
	return nil
}

// persist writes durable side effects. Failures are logged and the session
// carries on with its local state.
func (l *Lobby) persist(events []engine.Event) {
	if l.opts.Store == nil {
		return
	}
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtTimerStarted:
			l.updateChallenge(ev, store.ChallengePatch{Status: model.ChallengeActive})

		case engine.EvtChallengeReleased:
			l.updateChallenge(ev, store.ChallengePatch{Status: model.ChallengePending})

		case engine.EvtChallengeCompleted:
			patch := store.ChallengePatch{Status: model.ChallengeCompleted}
			if ev.WinnerRef != "" {
				ref := ev.WinnerRef
				patch.Winner = &ref
			}
			l.updateChallenge(ev, patch)

		case engine.EvtGameCompleted:
			ctx, cancel := context.WithTimeout(l.ctx, l.opts.StoreTimeout)
			_, err := l.opts.Store.UpdateRoomStatus(ctx, l.state.RoomID, model.RoomPlaying, model.RoomFinished)
			cancel()
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				l.log.Debug("room already closed", zap.Error(err))
			case err != nil:
				l.log.Warn("could not mark room finished", zap.Error(err))
			}
		}
	}
}

func (l *Lobby) updateChallenge(ev engine.Event, patch store.ChallengePatch) {
	ctx, cancel := context.WithTimeout(l.ctx, l.opts.StoreTimeout)
	defer cancel()
	if _, err := l.opts.Store.UpdateChallenge(ctx, ev.ChallengeID, patch); err != nil {
		l.log.Warn("could not save challenge",
			zap.String("challenge_id", ev.ChallengeID),
			zap.String("status", string(patch.Status)),
			zap.Error(err))
	}
}

// syncTicker runs the countdown ticker exactly while the clock is running.
func (l *Lobby) syncTicker() {
	switch {
	case l.state.Running && l.ticker == nil:
		l.ticker = time.NewTicker(l.opts.TickInterval)
	case !l.state.Running && l.ticker != nil:
		l.ticker.Stop()
		l.ticker = nil
	}
}

// tickC is nil while no ticker runs, which blocks that select case.
func (l *Lobby) tickC() <-chan time.Time {
	if l.ticker == nil {
		return nil
	}
	return l.ticker.C
}

// syncIdle arms the idle timer while nobody watches and the clock is
// stopped, and disarms it otherwise.
func (l *Lobby) syncIdle() {
	idle := len(l.clients) == 0 && !l.state.Running
	switch {
	case idle && l.idle == nil:
		l.idle = time.NewTimer(l.opts.IdleTimeout)
	case !idle && l.idle != nil:
		l.idle.Stop()
		l.idle = nil
	}
}

func (l *Lobby) idleC() <-chan time.Time {
	if l.idle == nil {
		return nil
	}
	return l.idle.C
}

func (l *Lobby) snapshot() Snapshot {
	return Snapshot{Version: l.version, State: l.state, Board: engine.Describe(l.state)}
}

func (l *Lobby) shutdown() {
	if l.ticker != nil {
		l.ticker.Stop()
		l.ticker = nil
	}
	if l.idle != nil {
		l.idle.Stop()
		l.idle = nil
	}
	if l.unwatch != nil {
		l.unwatch()
		l.unwatch = nil
	}
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		select {
		case ch <- snap:
		default:
			// Client is slow/full - drop them.
			l.log.Info("dropping slow client", zap.String("client_id", id))
			close(ch)
			delete(l.clients, id)
		}
	}
}

// Inbox exposes the inbox so the hub and ws layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the loop has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Send delivers msg unless the lobby has already stopped.
func (l *Lobby) Send(ctx context.Context, msg Msg) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.inbox <- msg:
		return true
	case <-l.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// LoadState builds the session for a room from storage.
func LoadState(ctx context.Context, st store.Store, roomID string) (engine.State, error) {
	room, err := st.GetRoom(ctx, roomID)
	if err != nil {
		return engine.State{}, err
	}
	challenges, err := st.ListChallenges(ctx, roomID)
	if err != nil {
		return engine.State{}, err
	}
	members, err := st.ListMembers(ctx, roomID)
	if err != nil {
		return engine.State{}, err
	}
	return engine.NewState(room, challenges, members), nil
}
