// Package memory is an in-process store.Store used in tests and when no
// database is configured.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/model"
	"github.com/DoyleJ11/olympics-backend/internal/store"
)

type subKey struct {
	table  store.Table
	roomID string
}

type Store struct {
	mu         sync.RWMutex
	rooms      map[string]model.Room
	members    map[string]model.Member
	challenges map[string]model.Challenge
	seq        map[string]int64 // member id -> insertion order, breaks joined_at ties
	next       int64

	subsMu sync.Mutex
	subs   map[subKey]map[int]func(store.Change)
	subID  int

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		rooms:      make(map[string]model.Room),
		members:    make(map[string]model.Member),
		challenges: make(map[string]model.Challenge),
		seq:        make(map[string]int64),
		subs:       make(map[subKey]map[int]func(store.Change)),
		now:        time.Now,
	}
}

// Rooms

func (s *Store) InsertRoom(_ context.Context, r *model.Room) error {
	s.mu.Lock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.rooms[r.ID] = *r
	s.mu.Unlock()

	s.publish(store.Change{Table: store.TableRooms, Op: store.OpInsert, RoomID: r.ID})
	return nil
}

func (s *Store) GetRoom(_ context.Context, id string) (model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return model.Room{}, apperr.New(apperr.KindNotFound, "room not found")
	}
	return r, nil
}

func (s *Store) ListRooms(_ context.Context, status model.RoomStatus) ([]model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.Status == status {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.Room) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) UpdateRoomStatus(_ context.Context, id string, from, to model.RoomStatus) (model.Room, error) {
	s.mu.Lock()
	r, ok := s.rooms[id]
	if !ok || r.Status != from {
		s.mu.Unlock()
		return model.Room{}, apperr.New(apperr.KindNotFound, "room not found or not "+string(from))
	}
	r.Status = to
	s.rooms[id] = r
	s.mu.Unlock()

	s.publish(store.Change{Table: store.TableRooms, Op: store.OpUpdate, RoomID: id})
	return r, nil
}

func (s *Store) DeleteRoom(_ context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.rooms[id]
	delete(s.rooms, id)
	for mid, m := range s.members {
		if m.RoomID == id {
			delete(s.members, mid)
			delete(s.seq, mid)
		}
	}
	for cid, c := range s.challenges {
		if c.RoomID == id {
			delete(s.challenges, cid)
		}
	}
	s.mu.Unlock()

	if ok {
		s.publish(store.Change{Table: store.TableRooms, Op: store.OpDelete, RoomID: id})
	}
	return nil
}

// Members

func (s *Store) InsertMember(_ context.Context, m *model.Member) error {
	s.mu.Lock()
	for _, existing := range s.members {
		if existing.RoomID == m.RoomID && existing.UserID == m.UserID {
			s.mu.Unlock()
			return apperr.New(apperr.KindValidation, "already a member of this room")
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.now()
	}
	s.members[m.ID] = *m
	s.next++
	s.seq[m.ID] = s.next
	s.mu.Unlock()

	s.publish(store.Change{Table: store.TableMembers, Op: store.OpInsert, RoomID: m.RoomID})
	return nil
}

func (s *Store) FindMember(_ context.Context, roomID, userID string) (model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.members {
		if m.RoomID == roomID && m.UserID == userID {
			return m, nil
		}
	}
	return model.Member{}, apperr.New(apperr.KindNotFound, "membership not found")
}

func (s *Store) UpdateMemberRole(_ context.Context, id string, role model.Role) (model.Member, error) {
	s.mu.Lock()
	m, ok := s.members[id]
	if !ok {
		s.mu.Unlock()
		return model.Member{}, apperr.New(apperr.KindNotFound, "membership not found")
	}
	m.Role = role
	s.members[id] = m
	s.mu.Unlock()

	s.publish(store.Change{Table: store.TableMembers, Op: store.OpUpdate, RoomID: m.RoomID})
	return m, nil
}

func (s *Store) DeleteMember(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	deleted := false
	for id, m := range s.members {
		if m.RoomID == roomID && m.UserID == userID {
			delete(s.members, id)
			delete(s.seq, id)
			deleted = true
		}
	}
	s.mu.Unlock()

	if deleted {
		s.publish(store.Change{Table: store.TableMembers, Op: store.OpDelete, RoomID: roomID})
	}
	return nil
}

func (s *Store) ListMembers(_ context.Context, roomID string) ([]model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Member, 0)
	for _, m := range s.members {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b model.Member) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return int(s.seq[a.ID] - s.seq[b.ID])
	})
	return out, nil
}

func (s *Store) CountMembers(_ context.Context, roomIDs ...string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(roomIDs))
	for _, id := range roomIDs {
		counts[id] = 0
	}
	for _, m := range s.members {
		if _, ok := counts[m.RoomID]; ok {
			counts[m.RoomID]++
		}
	}
	return counts, nil
}

// Challenges

func (s *Store) ListChallenges(_ context.Context, roomID string) ([]model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Challenge, 0)
	for _, c := range s.challenges {
		if c.RoomID == roomID {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Challenge) int { return a.Order - b.Order })
	return out, nil
}

func (s *Store) UpdateChallenge(_ context.Context, id string, patch store.ChallengePatch) (model.Challenge, error) {
	s.mu.Lock()
	c, ok := s.challenges[id]
	if !ok {
		s.mu.Unlock()
		return model.Challenge{}, apperr.New(apperr.KindNotFound, "challenge not found")
	}
	if patch.Status != "" {
		c.Status = patch.Status
	}
	switch {
	case patch.ClearWinner:
		c.WinnerTeamID = nil
	case patch.Winner != nil:
		w := *patch.Winner
		c.WinnerTeamID = &w
	}
	s.challenges[id] = c
	s.mu.Unlock()

	s.publish(store.Change{Table: store.TableChallenges, Op: store.OpUpdate, RoomID: c.RoomID})
	return c, nil
}

func (s *Store) ResetChallenges(_ context.Context, roomID string) error {
	s.mu.Lock()
	for id, c := range s.challenges {
		if c.RoomID == roomID {
			c.Status = model.ChallengePending
			c.WinnerTeamID = nil
			s.challenges[id] = c
		}
	}
	s.mu.Unlock()

	s.publish(store.Change{Table: store.TableChallenges, Op: store.OpUpdate, RoomID: roomID})
	return nil
}

func (s *Store) ReplaceChallenges(_ context.Context, roomID string, list []model.Challenge) error {
	s.mu.Lock()
	for id, c := range s.challenges {
		if c.RoomID == roomID {
			delete(s.challenges, id)
		}
	}
	for _, c := range list {
		c.RoomID = roomID
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now()
		}
		s.challenges[c.ID] = c
	}
	s.mu.Unlock()

	s.publish(store.Change{Table: store.TableChallenges, Op: store.OpInsert, RoomID: roomID})
	return nil
}

// Subscriptions

func (s *Store) Subscribe(ctx context.Context, table store.Table, roomID string, fn func(store.Change)) (func(), error) {
	key := subKey{table: table, roomID: roomID}

	s.subsMu.Lock()
	s.subID++
	id := s.subID
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(store.Change))
	}
	s.subs[key][id] = fn
	s.subsMu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs[key], id)
			if len(s.subs[key]) == 0 {
				delete(s.subs, key)
			}
			s.subsMu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return cancel, nil
}

// publish runs outside s.mu so callbacks may read the store.
func (s *Store) publish(ch store.Change) {
	s.subsMu.Lock()
	fns := make([]func(store.Change), 0, len(s.subs[subKey{ch.Table, ch.RoomID}]))
	for _, fn := range s.subs[subKey{ch.Table, ch.RoomID}] {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		go fn(ch)
	}
}
