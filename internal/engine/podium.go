package engine

import (
	"slices"

	"github.com/DoyleJ11/olympics-backend/internal/model"
)

const podiumSize = 3

type PodiumEntry struct {
	Team  int    `json:"team"`
	Wins  int    `json:"wins"`
	Color string `json:"color"`
}

// ComputePodium ranks teams by wins, lower team number first on ties, and
// keeps the top three.
func ComputePodium(s State) []PodiumEntry {
	teamOf := make(map[string]int, len(s.Members))
	for _, m := range s.Members {
		teamOf[m.ID] = m.TeamNumber
	}

	wins := make(map[int]int, s.NumTeams)
	for _, c := range s.Challenges {
		if team, ok := s.Winners[c.ID]; ok {
			wins[team]++
			continue
		}
		if c.WinnerTeamID == nil {
			continue
		}
		if team, ok := teamOf[*c.WinnerTeamID]; ok {
			wins[team]++
		}
	}

	entries := make([]PodiumEntry, 0, s.NumTeams)
	for _, team := range TeamNumbers(s) {
		entries = append(entries, PodiumEntry{Team: team, Wins: wins[team], Color: teamColor(s, team)})
	}
	slices.SortStableFunc(entries, func(a, b PodiumEntry) int { return b.Wins - a.Wins })

	if len(entries) > podiumSize {
		entries = entries[:podiumSize]
	}
	return entries
}

// Winner is the top podium team, 0 before any podium exists.
func Winner(podium []PodiumEntry) int {
	if len(podium) == 0 {
		return 0
	}
	return podium[0].Team
}

func teamColor(s State, team int) string {
	for _, m := range s.Members {
		if m.TeamNumber == team && m.TeamColor != "" {
			return m.TeamColor
		}
	}
	return model.PaletteFor(team)[0]
}
