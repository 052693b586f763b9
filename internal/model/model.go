package model

import "time"

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// CanAdvanceTo reports whether the lifecycle may move from s to next.
// Rooms only move forward: waiting -> playing -> finished.
func (s RoomStatus) CanAdvanceTo(next RoomStatus) bool {
	switch s {
	case RoomWaiting:
		return next == RoomPlaying
	case RoomPlaying:
		return next == RoomFinished
	default:
		return false
	}
}

type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

type ChallengeStatus string

const (
	ChallengePending   ChallengeStatus = "pending"
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// DefaultChallengeSeconds applies when a challenge has no duration.
const DefaultChallengeSeconds = 120

type Room struct {
	ID         string     `json:"id" gorm:"primaryKey;type:uuid"`
	Name       string     `json:"name" gorm:"not null"`
	MaxPlayers int        `json:"max_players" gorm:"not null"`
	NumTeams   int        `json:"num_teams" gorm:"not null"`
	Status     RoomStatus `json:"status" gorm:"index;not null;default:'waiting'"`
	CreatedBy  string     `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Room) TableName() string { return "rooms" }

// Member is a player's seat in a room.
type Member struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	RoomID     string    `json:"room_id" gorm:"type:uuid;not null;uniqueIndex:idx_room_user"`
	UserID     string    `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_room_user"`
	PlayerName string    `json:"player_name" gorm:"not null"`
	Role       Role      `json:"role" gorm:"not null;default:'player'"`
	TeamNumber int       `json:"team_number"`
	TeamColor  string    `json:"team_color"`
	JoinedAt   time.Time `json:"joined_at" gorm:"index"`
}

func (Member) TableName() string { return "room_players" }

type Challenge struct {
	ID          string          `json:"id" gorm:"primaryKey;type:uuid"`
	RoomID      string          `json:"room_id" gorm:"type:uuid;index;not null"`
	Title       string          `json:"title" gorm:"not null"`
	Description string          `json:"description"`
	Order       int             `json:"order" gorm:"column:sort_order;not null"`
	Status      ChallengeStatus `json:"status" gorm:"not null;default:'pending'"`
	// WinnerTeamID is the id of a member of the winning team.
	WinnerTeamID *string    `json:"winner_team_id" gorm:"type:uuid"`
	ImageURL     string     `json:"image_url"`
	Duration     *int       `json:"duration"`
	Difficulty   Difficulty `json:"difficulty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (Challenge) TableName() string { return "challenges" }

// Seconds returns the challenge length, falling back to the default.
func (c Challenge) Seconds() int {
	if c.Duration == nil || *c.Duration <= 0 {
		return DefaultChallengeSeconds
	}
	return *c.Duration
}
