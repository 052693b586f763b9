// Package store declares the persistence collaborator. Implementations return
// errors from the apperr taxonomy: not_found for missing rows, validation for
// uniqueness conflicts, persistence for everything else.
package store

import (
	"context"

	"github.com/DoyleJ11/olympics-backend/internal/model"
)

type Table string

const (
	TableRooms      Table = "rooms"
	TableMembers    Table = "room_players"
	TableChallenges Table = "challenges"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Change is a push notification about a row in a room-scoped table.
type Change struct {
	Table  Table
	Op     Op
	RoomID string
}

// ChallengePatch updates a challenge. A nil Winner leaves winner_team_id
// untouched; ClearWinner sets it to null.
type ChallengePatch struct {
	Status      model.ChallengeStatus
	Winner      *string
	ClearWinner bool
}

type Rooms interface {
	InsertRoom(ctx context.Context, r *model.Room) error
	GetRoom(ctx context.Context, id string) (model.Room, error)
	// ListRooms returns rooms in the given status, newest first.
	ListRooms(ctx context.Context, status model.RoomStatus) ([]model.Room, error)
	// UpdateRoomStatus moves a room from one status to another. It fails
	// with not_found when the room is missing or not in status from.
	UpdateRoomStatus(ctx context.Context, id string, from, to model.RoomStatus) (model.Room, error)
	// DeleteRoom removes a room with its members and challenges. Deleting a
	// missing room is a no-op.
	DeleteRoom(ctx context.Context, id string) error
}

type Members interface {
	InsertMember(ctx context.Context, m *model.Member) error
	FindMember(ctx context.Context, roomID, userID string) (model.Member, error)
	UpdateMemberRole(ctx context.Context, id string, role model.Role) (model.Member, error)
	// DeleteMember is a no-op when the membership does not exist.
	DeleteMember(ctx context.Context, roomID, userID string) error
	// ListMembers orders by join time, oldest first.
	ListMembers(ctx context.Context, roomID string) ([]model.Member, error)
	CountMembers(ctx context.Context, roomIDs ...string) (map[string]int, error)
}

type Challenges interface {
	// ListChallenges orders by display order ascending.
	ListChallenges(ctx context.Context, roomID string) ([]model.Challenge, error)
	UpdateChallenge(ctx context.Context, id string, patch ChallengePatch) (model.Challenge, error)
	// ResetChallenges sets every challenge of a room back to pending with no winner.
	ResetChallenges(ctx context.Context, roomID string) error
	// ReplaceChallenges deletes a room's challenges and inserts list.
	ReplaceChallenges(ctx context.Context, roomID string, list []model.Challenge) error
}

type Subscriber interface {
	// Subscribe calls fn for every change to table rows of roomID until the
	// returned func is called or ctx ends. fn runs on a store goroutine.
	Subscribe(ctx context.Context, table Table, roomID string, fn func(Change)) (func(), error)
}

type Store interface {
	Rooms
	Members
	Challenges
	Subscriber
}
