package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoomStatus_CanAdvanceTo(t *testing.T) {
	cases := []struct {
		from, to RoomStatus
		want     bool
	}{
		{RoomWaiting, RoomPlaying, true},
		{RoomPlaying, RoomFinished, true},
		{RoomWaiting, RoomFinished, false},
		{RoomPlaying, RoomWaiting, false},
		{RoomFinished, RoomPlaying, false},
		{RoomFinished, RoomFinished, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanAdvanceTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestChallenge_Seconds(t *testing.T) {
	d := 90
	zero := 0
	assert.Equal(t, 120, Challenge{}.Seconds())
	assert.Equal(t, 120, Challenge{Duration: &zero}.Seconds())
	assert.Equal(t, 90, Challenge{Duration: &d}.Seconds())
}

func TestPaletteFor(t *testing.T) {
	assert.Equal(t, "#4ECDC4", PaletteFor(2)[0])
	assert.Equal(t, TeamPalettes[1], PaletteFor(7))
}
