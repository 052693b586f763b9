package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DoyleJ11/olympics-backend/internal/model"
)

func TestComputePodium_TopThreeByWins(t *testing.T) {
	s := State{NumTeams: 4, Winners: map[string]int{}}
	// wins [3,1,2,0] for teams [1,2,3,4]
	for i, team := range []int{1, 1, 1, 2, 3, 3} {
		id := string(rune('a' + i))
		s.Challenges = append(s.Challenges, model.Challenge{ID: id})
		s.Winners[id] = team
	}

	got := ComputePodium(s)

	assert.Equal(t, []PodiumEntry{
		{Team: 1, Wins: 3, Color: "#FF6B6B"},
		{Team: 3, Wins: 2, Color: "#45B7D1"},
		{Team: 2, Wins: 1, Color: "#4ECDC4"},
	}, got)
}

func TestComputePodium_TiesKeepLowerTeamFirst(t *testing.T) {
	s := State{NumTeams: 3, Winners: map[string]int{"a": 3, "b": 2}, Challenges: []model.Challenge{{ID: "a"}, {ID: "b"}}}

	got := ComputePodium(s)

	assert.Equal(t, []int{2, 3, 1}, []int{got[0].Team, got[1].Team, got[2].Team})
}

func TestComputePodium_FallsBackToDurableWinner(t *testing.T) {
	stale := "gone"
	ref := "m4"
	s := State{
		NumTeams: 2,
		Members:  fiestaMembers(),
		Winners:  map[string]int{"c2": 1},
		Challenges: []model.Challenge{
			{ID: "c1", WinnerTeamID: &ref},
			{ID: "c2", WinnerTeamID: &ref}, // local record wins
			{ID: "c3", WinnerTeamID: &stale},
		},
	}

	got := ComputePodium(s)

	assert.Equal(t, 1, got[0].Team)
	assert.Equal(t, 1, got[0].Wins)
	assert.Equal(t, 2, got[1].Team)
	assert.Equal(t, 1, got[1].Wins)
}

func TestComputePodium_ColorUsesMembersThenPalette(t *testing.T) {
	s := State{
		NumTeams: 2,
		Members:  []model.Member{{ID: "x", TeamNumber: 1, TeamColor: "#FFB1B1"}},
		Winners:  map[string]int{},
	}

	got := ComputePodium(s)

	assert.Equal(t, "#FFB1B1", got[0].Color)
	assert.Equal(t, model.PaletteFor(2)[0], got[1].Color)
}

func TestWinner(t *testing.T) {
	assert.Equal(t, 0, Winner(nil))
	assert.Equal(t, 4, Winner([]PodiumEntry{{Team: 4, Wins: 1}}))
}
