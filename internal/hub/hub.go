package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/engine"
	"github.com/DoyleJ11/olympics-backend/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	RoomID string
	Reply  chan *lobby.Lobby
}

type EnsureLobby struct {
	RoomID string
	State  engine.State // only used if creation happens
	Reply  chan *lobby.Lobby
}

// RemoveLobby stops the room's lobby, if any. The next EnsureLobby starts
// from freshly loaded state.
type RemoveLobby struct {
	RoomID string
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()     {}
func (EnsureLobby) isHubMsg()  {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

// LoadFunc reads the current state of a room.
type LoadFunc func(ctx context.Context, roomID string) (engine.State, error)

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
	opts    lobby.Options
	load    LoadFunc
	log     *zap.Logger
}

func NewHub(parent context.Context, load LoadFunc, opts lobby.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		load:    load,
		log:     log.Named("hub"),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.live(msg.RoomID) // May be nil

			case EnsureLobby:
				if lb := h.live(msg.RoomID); lb != nil {
					msg.Reply <- lb
					break
				}
				h.prune()
				lb := lobby.NewLobby(h.ctx, msg.State, h.opts)
				h.lobbies[msg.RoomID] = lb
				h.log.Info("lobby started", zap.String("room_id", msg.RoomID))
				msg.Reply <- lb

			case RemoveLobby:
				if lb := h.lobbies[msg.RoomID]; lb != nil {
					lb.Send(h.ctx, lobby.Shutdown{})
					delete(h.lobbies, msg.RoomID)
					h.log.Info("lobby removed", zap.String("room_id", msg.RoomID))
				}

			case CountLobbies:
				h.prune()
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

// live returns the registered lobby unless it has already stopped.
func (h *Hub) live(roomID string) *lobby.Lobby {
	lb := h.lobbies[roomID]
	if lb == nil {
		return nil
	}
	select {
	case <-lb.Done():
		delete(h.lobbies, roomID)
		return nil
	default:
		return lb
	}
}

// prune forgets lobbies that closed on their own after going idle.
func (h *Hub) prune() {
	for roomID := range h.lobbies {
		h.live(roomID)
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Send(context.Background(), lobby.Shutdown{})
	}
	clear(h.lobbies)
}

// Lobby returns the running lobby for roomID, loading its state and starting
// one when needed.
func (h *Hub) Lobby(ctx context.Context, roomID string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if !h.send(ctx, GetLobby{RoomID: roomID, Reply: reply}) {
		return nil, ctx.Err()
	}
	if lb, err := h.await(ctx, reply); lb != nil || err != nil {
		return lb, err
	}

	state, err := h.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !h.send(ctx, EnsureLobby{RoomID: roomID, State: state, Reply: reply}) {
		return nil, ctx.Err()
	}
	return h.await(ctx, reply)
}

// Remove stops the lobby of roomID so the next game starts clean.
func (h *Hub) Remove(ctx context.Context, roomID string) {
	h.send(ctx, RemoveLobby{RoomID: roomID})
}

func (h *Hub) send(ctx context.Context, msg HubMsg) bool {
	select {
	case h.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) await(ctx context.Context, reply chan *lobby.Lobby) (*lobby.Lobby, error) {
	select {
	case lb := <-reply:
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
}
