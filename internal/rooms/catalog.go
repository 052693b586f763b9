package rooms

import "github.com/DoyleJ11/olympics-backend/internal/model"

func seconds(n int) *int { return &n }

// Catalog is the canonical challenge list seeded into every new room.
func Catalog() []model.Challenge {
	return []model.Challenge{
		{
			Title:       "Balloon war",
			Description: "Pop the other team's balloons without losing your own.",
			Order:       1,
			ImageURL:    "https://images.unsplash.com/photo-1566492031773-4f4e44671857?w=800&h=600&fit=crop",
			Duration:    seconds(180),
			Difficulty:  model.DifficultyMedium,
		},
		{
			Title:       "Relay",
			Description: "Team race passing the baton until the circuit is done.",
			Order:       2,
			ImageURL:    "https://images.unsplash.com/photo-1517649763962-0c623066013b?w=800&h=600&fit=crop",
			Duration:    seconds(300),
			Difficulty:  model.DifficultyMedium,
		},
		{
			Title:       "Handkerchief",
			Description: "Sprint for the handkerchief and get back without being tagged.",
			Order:       3,
			ImageURL:    "https://images.unsplash.com/photo-1552234994-66ba234fd567?w=800&h=600&fit=crop",
			Duration:    seconds(180),
			Difficulty:  model.DifficultyEasy,
		},
		{
			Title:       "Tug of war",
			Description: "The strongest team pulls the rope to their side.",
			Order:       4,
			ImageURL:    "https://images.unsplash.com/photo-1516534775068-ba3e7458af70?w=800&h=600&fit=crop",
			Duration:    seconds(180),
			Difficulty:  model.DifficultyHard,
		},
		{
			Title:       "Beer pong",
			Description: "Land the ball in the other team's cups to score.",
			Order:       5,
			ImageURL:    "https://images.unsplash.com/photo-1531818235588-c00b4031dab9?w=800&h=600&fit=crop",
			Duration:    seconds(420),
			Difficulty:  model.DifficultyMedium,
		},
		{
			Title:       "Flip the cup",
			Description: "Drink, then flip the cup. First team to finish wins.",
			Order:       6,
			ImageURL:    "https://images.unsplash.com/photo-1516455590571-18256e5bb9ff?w=800&h=600&fit=crop",
			Duration:    seconds(240),
			Difficulty:  model.DifficultyEasy,
		},
	}
}

// CatalogFor returns a fresh pending copy of the catalog for a room.
func CatalogFor(roomID string) []model.Challenge {
	list := Catalog()
	for i := range list {
		list[i].RoomID = roomID
		list[i].Status = model.ChallengePending
	}
	return list
}
