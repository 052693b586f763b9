// Package rooms owns room creation, capacity, membership and team assignment.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/auth"
	"github.com/DoyleJ11/olympics-backend/internal/model"
	"github.com/DoyleJ11/olympics-backend/internal/store"
)

const maxNameLen = 32

var (
	ErrRoomNameRequired    = apperr.New(apperr.KindValidation, "please enter a name for the room")
	ErrInvalidCapacity     = apperr.New(apperr.KindValidation, "a room needs room for at least 2 players")
	ErrInvalidTeams        = apperr.New(apperr.KindValidation, "the number of teams must be between 1 and the number of players")
	ErrDisplayNameRequired = apperr.New(apperr.KindValidation, "please enter your name")
	ErrDisplayNameTooLong  = apperr.New(apperr.KindValidation, fmt.Sprintf("names can be at most %d characters", maxNameLen))
	ErrRoomUnavailable     = apperr.New(apperr.KindNotFound, "room not found or not available")
	ErrNotHost             = apperr.New(apperr.KindAuthorization, "only the host can do that")
)

type CreateRoomParams struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"max_players"`
	NumTeams   int    `json:"num_teams"`
	HostName   string `json:"player_name"`
}

// RoomSummary is a joinable room with its live player count.
type RoomSummary struct {
	model.Room
	CurrentPlayers int `json:"current_players"`
}

type Manager struct {
	store    store.Store
	identity auth.Identity
	log      *zap.Logger
}

func NewManager(st store.Store, identity auth.Identity, log *zap.Logger) *Manager {
	return &Manager{store: st, identity: identity, log: log.Named("rooms")}
}

func (m *Manager) CreateRoom(ctx context.Context, p CreateRoomParams) (model.Room, model.Member, error) {
	actor, err := m.identity.CurrentUser(ctx)
	if err != nil {
		return model.Room{}, model.Member{}, err
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		return model.Room{}, model.Member{}, ErrRoomNameRequired
	}
	if p.MaxPlayers < 2 {
		return model.Room{}, model.Member{}, ErrInvalidCapacity
	}
	if p.NumTeams < 1 || p.NumTeams > p.MaxPlayers {
		return model.Room{}, model.Member{}, ErrInvalidTeams
	}
	hostName, err := cleanDisplayName(p.HostName)
	if err != nil {
		return model.Room{}, model.Member{}, err
	}

	room := model.Room{
		Name:       name,
		MaxPlayers: p.MaxPlayers,
		NumTeams:   p.NumTeams,
		Status:     model.RoomWaiting,
		CreatedBy:  actor.ID,
	}
	if err := m.store.InsertRoom(ctx, &room); err != nil {
		return model.Room{}, model.Member{}, err
	}

	host := model.Member{
		RoomID:     room.ID,
		UserID:     actor.ID,
		PlayerName: hostName,
		Role:       model.RoleHost,
		TeamNumber: 1,
		TeamColor:  model.PaletteFor(1)[0],
	}
	if err := m.store.InsertMember(ctx, &host); err != nil {
		m.discardRoom(ctx, room.ID, err)
		return model.Room{}, model.Member{}, err
	}

	if err := m.store.ReplaceChallenges(ctx, room.ID, CatalogFor(room.ID)); err != nil {
		m.discardRoom(ctx, room.ID, err)
		return model.Room{}, model.Member{}, err
	}

	m.log.Info("room created",
		zap.String("room_id", room.ID),
		zap.String("name", room.Name),
		zap.Int("max_players", room.MaxPlayers),
		zap.Int("num_teams", room.NumTeams),
	)
	return room, host, nil
}

// discardRoom removes a half-created room so it never shows up without a
// host. It runs even when the request has been cancelled.
func (m *Manager) discardRoom(ctx context.Context, roomID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.store.DeleteRoom(ctx, roomID); err != nil {
		m.log.Error("could not discard half-created room",
			zap.String("room_id", roomID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	m.log.Warn("discarded half-created room", zap.String("room_id", roomID), zap.Error(cause))
}

func (m *Manager) GetRoom(ctx context.Context, roomID string) (model.Room, error) {
	return m.store.GetRoom(ctx, roomID)
}

// ListAvailableRooms returns waiting rooms, newest first, with player counts.
// When counting fails the rooms are still returned with zero players.
func (m *Manager) ListAvailableRooms(ctx context.Context) ([]RoomSummary, error) {
	rooms, err := m.store.ListRooms(ctx, model.RoomWaiting)
	if err != nil {
		return nil, err
	}
	out := make([]RoomSummary, len(rooms))
	if len(rooms) == 0 {
		return out, nil
	}

	ids := make([]string, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	counts, err := m.store.CountMembers(ctx, ids...)
	if err != nil {
		m.log.Warn("counting players failed", zap.Error(err))
		counts = nil
	}
	for i, r := range rooms {
		out[i] = RoomSummary{Room: r, CurrentPlayers: counts[r.ID]}
	}
	return out, nil
}

// JoinRoom seats the actor in a waiting room. Joining twice returns the
// existing membership. If the room's creator comes back without the host
// role, the role is restored: the room must always have its creator as host.
func (m *Manager) JoinRoom(ctx context.Context, roomID, displayName string) (model.Room, model.Member, error) {
	actor, err := m.identity.CurrentUser(ctx)
	if err != nil {
		return model.Room{}, model.Member{}, err
	}
	name, err := cleanDisplayName(displayName)
	if err != nil {
		return model.Room{}, model.Member{}, err
	}

	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return model.Room{}, model.Member{}, ErrRoomUnavailable
		}
		return model.Room{}, model.Member{}, err
	}
	if room.Status != model.RoomWaiting {
		return model.Room{}, model.Member{}, ErrRoomUnavailable
	}

	existing, err := m.store.FindMember(ctx, roomID, actor.ID)
	switch {
	case err == nil:
		if room.CreatedBy == actor.ID && existing.Role != model.RoleHost {
			promoted, err := m.store.UpdateMemberRole(ctx, existing.ID, model.RoleHost)
			if err != nil {
				m.log.Warn("restoring host role failed", zap.String("room_id", roomID), zap.Error(err))
				return room, existing, nil
			}
			m.log.Info("host role restored", zap.String("room_id", roomID), zap.String("member_id", promoted.ID))
			return room, promoted, nil
		}
		return room, existing, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return model.Room{}, model.Member{}, err
	}

	counts, err := m.store.CountMembers(ctx, roomID)
	if err != nil {
		return model.Room{}, model.Member{}, err
	}
	if n := counts[roomID]; n >= room.MaxPlayers {
		return model.Room{}, model.Member{}, apperr.New(apperr.KindRoomFull,
			fmt.Sprintf("the room is full (%d/%d)", n, room.MaxPlayers))
	}

	members, err := m.store.ListMembers(ctx, roomID)
	if err != nil {
		return model.Room{}, model.Member{}, err
	}
	team, color := AssignTeam(members, room.NumTeams)

	role := model.RolePlayer
	if room.CreatedBy == actor.ID {
		role = model.RoleHost
	}
	member := model.Member{
		RoomID:     roomID,
		UserID:     actor.ID,
		PlayerName: name,
		Role:       role,
		TeamNumber: team,
		TeamColor:  color,
	}
	if err := m.store.InsertMember(ctx, &member); err != nil {
		return model.Room{}, model.Member{}, err
	}

	m.log.Info("player joined",
		zap.String("room_id", roomID),
		zap.String("member_id", member.ID),
		zap.Int("team", team),
	)
	return room, member, nil
}

// LeaveRoom removes the actor's membership. Leaving a room you are not in
// is not an error.
func (m *Manager) LeaveRoom(ctx context.Context, roomID string) error {
	actor, err := m.identity.CurrentUser(ctx)
	if err != nil {
		return err
	}
	return m.store.DeleteMember(ctx, roomID, actor.ID)
}

func (m *Manager) ListMembers(ctx context.Context, roomID string) ([]model.Member, error) {
	return m.store.ListMembers(ctx, roomID)
}

// StartGame clears any completion left on the room's challenges and moves
// the room to playing.
func (m *Manager) StartGame(ctx context.Context, roomID string) (model.Room, error) {
	if _, err := m.requireHost(ctx, roomID); err != nil {
		return model.Room{}, err
	}
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}
	if !room.Status.CanAdvanceTo(model.RoomPlaying) {
		return model.Room{}, apperr.New(apperr.KindNotFound, "the game has already started")
	}

	list, err := m.store.ListChallenges(ctx, roomID)
	if err != nil {
		return model.Room{}, err
	}
	if len(list) == 0 {
		err = m.store.ReplaceChallenges(ctx, roomID, CatalogFor(roomID))
	} else {
		err = m.store.ResetChallenges(ctx, roomID)
	}
	if err != nil {
		return model.Room{}, err
	}

	room, err = m.store.UpdateRoomStatus(ctx, roomID, model.RoomWaiting, model.RoomPlaying)
	if err != nil {
		return model.Room{}, err
	}
	m.log.Info("game started", zap.String("room_id", roomID))
	return room, nil
}

func (m *Manager) FinishGame(ctx context.Context, roomID string) (model.Room, error) {
	if _, err := m.requireHost(ctx, roomID); err != nil {
		return model.Room{}, err
	}
	room, err := m.store.UpdateRoomStatus(ctx, roomID, model.RoomPlaying, model.RoomFinished)
	if err != nil {
		return model.Room{}, err
	}
	m.log.Info("game finished", zap.String("room_id", roomID))
	return room, nil
}

// ResetChallenges sets every challenge of the room back to pending.
func (m *Manager) ResetChallenges(ctx context.Context, roomID string) error {
	if _, err := m.requireHost(ctx, roomID); err != nil {
		return err
	}
	return m.store.ResetChallenges(ctx, roomID)
}

// ReseedChallenges replaces the room's challenges with the catalog.
func (m *Manager) ReseedChallenges(ctx context.Context, roomID string) error {
	if _, err := m.requireHost(ctx, roomID); err != nil {
		return err
	}
	return m.store.ReplaceChallenges(ctx, roomID, CatalogFor(roomID))
}

// WatchMembers calls fn with the full member list after every membership
// change in the room. Refetches are serialized; the latest one wins.
func (m *Manager) WatchMembers(ctx context.Context, roomID string, fn func([]model.Member)) (func(), error) {
	var mu sync.Mutex
	return m.store.Subscribe(ctx, store.TableMembers, roomID, func(store.Change) {
		mu.Lock()
		defer mu.Unlock()

		members, err := m.store.ListMembers(ctx, roomID)
		if err != nil {
			if ctx.Err() == nil {
				m.log.Warn("reloading members failed", zap.String("room_id", roomID), zap.Error(err))
			}
			return
		}
		fn(members)
	})
}

func (m *Manager) requireHost(ctx context.Context, roomID string) (model.Member, error) {
	actor, err := m.identity.CurrentUser(ctx)
	if err != nil {
		return model.Member{}, err
	}
	member, err := m.store.FindMember(ctx, roomID, actor.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return model.Member{}, ErrNotHost
	}
	if err != nil {
		return model.Member{}, err
	}
	if member.Role != model.RoleHost {
		return model.Member{}, ErrNotHost
	}
	return member, nil
}

func cleanDisplayName(raw string) (string, error) {
	name := norm.NFC.String(strings.TrimSpace(raw))
	if name == "" {
		return "", ErrDisplayNameRequired
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}
