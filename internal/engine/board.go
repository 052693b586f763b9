package engine

import "github.com/DoyleJ11/olympics-backend/internal/model"

// Board is what players see: the challenge list with lock flags, the clock
// and the podium once there is one.
type Board struct {
	Challenges []BoardChallenge `json:"challenges"`
	Current    *BoardChallenge  `json:"current,omitempty"`
	Clock      string           `json:"clock"`
	Running    bool             `json:"running"`
	Paused     bool             `json:"paused"`
	// AwaitingResult is set once time runs out until the host records the result.
	AwaitingResult bool                `json:"awaiting_result"`
	Completed      int                 `json:"completed"`
	Total          int                 `json:"total"`
	Podium         []PodiumEntry       `json:"podium,omitempty"`
	Winner         int                 `json:"winner,omitempty"`
	Finished       bool                `json:"finished"`
	Instructions   []InstructionStep   `json:"instructions,omitempty"`
	Teams          map[int][]TeamBadge `json:"teams"`
}

type BoardChallenge struct {
	Index       int                   `json:"index"`
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	ImageURL    string                `json:"image_url,omitempty"`
	Duration    string                `json:"duration"`
	Difficulty  string                `json:"difficulty"`
	Status      model.ChallengeStatus `json:"status"`
	Unlocked    bool                  `json:"unlocked"`
	Next        bool                  `json:"next"`
	WinnerTeam  int                   `json:"winner_team,omitempty"`
}

type TeamBadge struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Host     bool   `json:"host"`
}

func Describe(s State) Board {
	b := Board{
		Challenges:     make([]BoardChallenge, 0, len(s.Challenges)),
		Clock:          FormatTime(s.Remaining),
		Running:        s.Running,
		Paused:         s.Paused,
		AwaitingResult: s.AwaitingResult,
		Completed:      CompletedCount(s),
		Total:          len(s.Challenges),
		Podium:         s.Podium,
		Winner:         Winner(s.Podium),
		Finished:       s.Finished,
		Teams:          make(map[int][]TeamBadge, s.NumTeams),
	}

	for i, c := range s.Challenges {
		b.Challenges = append(b.Challenges, BoardChallenge{
			Index:       i,
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			ImageURL:    c.ImageURL,
			Duration:    FormatDuration(c.Duration),
			Difficulty:  DifficultyLabel(c.Difficulty),
			Status:      c.Status,
			Unlocked:    IsUnlocked(s, i),
			Next:        IsNextAvailable(s, i),
			WinnerTeam:  s.Winners[c.ID],
		})
	}

	if c, ok := Current(s); ok {
		cur := b.Challenges[s.Cursor]
		b.Current = &cur
		if !s.Running && !s.Paused && !s.Finished {
			b.Instructions = InstructionSteps(c)
		}
		if !s.Running && !s.Paused && !s.AwaitingResult {
			b.Clock = FormatTime(c.Seconds())
		}
	}

	for _, team := range TeamNumbers(s) {
		badges := []TeamBadge{}
		for _, m := range TeamMembers(s, team) {
			badges = append(badges, TeamBadge{MemberID: m.ID, Name: m.PlayerName, Color: m.TeamColor, Host: m.Role == model.RoleHost})
		}
		b.Teams[team] = badges
	}
	return b
}
