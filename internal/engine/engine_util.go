package engine

import (
	"slices"

	"github.com/DoyleJ11/olympics-backend/internal/model"
)

// NewState builds a fresh progression for room. A waiting room starts from a
// clean slate whatever storage says; a room already playing resumes from the
// completed prefix it has stored. A finished room comes back settled.
func NewState(room model.Room, challenges []model.Challenge, members []model.Member) State {
	s := State{
		RoomID:     room.ID,
		HostUserID: room.CreatedBy,
		NumTeams:   room.NumTeams,
		Status:     room.Status,
		Challenges: slices.Clone(challenges),
		Members:    slices.Clone(members),
		Cursor:     -1,
		Completed:  []string{},
		Winners:    map[string]int{},
	}
	slices.SortStableFunc(s.Challenges, func(a, b model.Challenge) int { return a.Order - b.Order })

	if room.Status == model.RoomWaiting {
		for i := range s.Challenges {
			s.Challenges[i].Status = model.ChallengePending
			s.Challenges[i].WinnerTeamID = nil
		}
	} else {
		for i := range s.Challenges {
			c := &s.Challenges[i]
			if c.Status == model.ChallengeActive {
				c.Status = model.ChallengePending
			}
			if c.Status == model.ChallengeCompleted {
				s.Completed = append(s.Completed, c.ID)
			}
		}
	}

	s.Cursor = firstOpen(s)
	allDone := len(s.Challenges) > 0 && CompletedCount(s) == len(s.Challenges)
	if allDone || room.Status == model.RoomFinished {
		s.Podium = ComputePodium(s)
		s.Finished = true
	}
	return s
}

// firstOpen is the first unlocked challenge not yet completed, the last one
// when everything is done, or -1 for an empty list.
func firstOpen(s State) int {
	if len(s.Challenges) == 0 {
		return -1
	}
	for i, c := range s.Challenges {
		if !IsCompleted(s, c.ID) && IsUnlocked(s, i) {
			return i
		}
	}
	return len(s.Challenges) - 1
}

// WithMembers swaps in a fresh membership snapshot. Progress is untouched;
// the podium is refreshed since durable winners resolve through members.
func WithMembers(s State, members []model.Member) State {
	next := s.clone()
	next.Members = slices.Clone(members)
	if len(next.Podium) > 0 {
		next.Podium = ComputePodium(next)
	}
	return next
}

func IsUnlocked(s State, index int) bool {
	if index < 0 || index >= len(s.Challenges) {
		return false
	}
	if index == 0 {
		return true
	}
	return IsCompleted(s, s.Challenges[index-1].ID)
}

func IsCompleted(s State, challengeID string) bool {
	return slices.Contains(s.Completed, challengeID)
}

// IsNextAvailable reports whether index is the challenge the group should
// play next: unlocked and not yet completed.
func IsNextAvailable(s State, index int) bool {
	if !IsUnlocked(s, index) {
		return false
	}
	return !IsCompleted(s, s.Challenges[index].ID)
}

func CompletedCount(s State) int {
	n := 0
	for _, c := range s.Challenges {
		if IsCompleted(s, c.ID) {
			n++
		}
	}
	return n
}

func Current(s State) (model.Challenge, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Challenges) {
		return model.Challenge{}, false
	}
	return s.Challenges[s.Cursor], true
}

// TeamNumbers lists 1..NumTeams.
func TeamNumbers(s State) []int {
	out := make([]int, 0, s.NumTeams)
	for t := 1; t <= s.NumTeams; t++ {
		out = append(out, t)
	}
	return out
}

func TeamMembers(s State, team int) []model.Member {
	var out []model.Member
	for _, m := range s.Members {
		if m.TeamNumber == team {
			out = append(out, m)
		}
	}
	return out
}

// CanStartGame is true with at least two players and no more than capacity.
func CanStartGame(players, maxPlayers int) bool {
	return players >= 2 && players <= maxPlayers
}
