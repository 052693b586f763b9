package model

// TeamPalettes holds the colors handed out per team, in order.
var TeamPalettes = map[int][]string{
	1: {"#FF6B6B", "#FF8E8E", "#FFB1B1"}, // reds
	2: {"#4ECDC4", "#7ED7D1", "#AEE2DE"}, // greens
	3: {"#45B7D1", "#6BC5D8", "#91D3DF"}, // blues
	4: {"#FFA726", "#FFB74D", "#FFC774"}, // oranges
}

// PaletteFor returns the palette of a team. Teams without one of their own
// share team 1's.
func PaletteFor(team int) []string {
	if p, ok := TeamPalettes[team]; ok {
		return p
	}
	return TeamPalettes[1]
}
