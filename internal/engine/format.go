package engine

import (
	"fmt"

	"github.com/DoyleJ11/olympics-backend/internal/model"
)

// FormatTime renders a countdown as MM:SS. Minutes are not wrapped into hours.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatDuration renders a challenge length as M:SS, 2:00 when unset.
func FormatDuration(seconds *int) string {
	s := model.DefaultChallengeSeconds
	if seconds != nil && *seconds > 0 {
		s = *seconds
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// DifficultyLabel names a difficulty; unset reads as medium.
func DifficultyLabel(d model.Difficulty) string {
	switch d {
	case model.DifficultyEasy:
		return "Easy"
	case model.DifficultyHard:
		return "Hard"
	default:
		return "Medium"
	}
}

type InstructionStep struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// InstructionSteps is the briefing read out before a challenge starts.
func InstructionSteps(c model.Challenge) []InstructionStep {
	return []InstructionStep{
		{Title: "Welcome to " + c.Title, Description: "Get your team together, the next round is about to begin.", Icon: "trophy"},
		{Title: "Objective", Description: c.Description, Icon: "flag"},
		{Title: "Duration", Description: "You have " + FormatDuration(c.Duration) + " to finish.", Icon: "time"},
		{Title: "Difficulty", Description: DifficultyLabel(c.Difficulty), Icon: "speedometer"},
		{Title: "Ready?", Description: "The host starts the clock when everyone is in place.", Icon: "play"},
	}
}
