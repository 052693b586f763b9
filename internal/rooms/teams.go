package rooms

import (
	"slices"

	"github.com/DoyleJ11/olympics-backend/internal/model"
)

// AssignTeam picks the team and color for the next member of a room. The
// least-populated team wins, lowest number first on ties, so team sizes never
// differ by more than one after any join. The color is the first entry of the
// team's palette not yet worn by a teammate, or the palette's first color when
// all are taken.
func AssignTeam(members []model.Member, numTeams int) (int, string) {
	if numTeams < 1 {
		numTeams = 1
	}

	counts := make(map[int]int, numTeams)
	used := make(map[int][]string, numTeams)
	for _, m := range members {
		if m.TeamNumber < 1 {
			continue
		}
		counts[m.TeamNumber]++
		if m.TeamColor != "" {
			used[m.TeamNumber] = append(used[m.TeamNumber], m.TeamColor)
		}
	}

	team := 1
	for i := 2; i <= numTeams; i++ {
		if counts[i] < counts[team] {
			team = i
		}
	}

	palette := model.PaletteFor(team)
	for _, c := range palette {
		if !slices.Contains(used[team], c) {
			return team, c
		}
	}
	return team, palette[0]
}
