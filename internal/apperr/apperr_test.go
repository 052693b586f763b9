package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("join: %w", New(KindRoomFull, "room is full (4/4)"))

	assert.True(t, errors.Is(err, ErrRoomFull))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindRoomFull, KindOf(err))
}

func TestIs_NamedErrorsStayDistinct(t *testing.T) {
	a := New(KindAuthorization, "only the host can start the game")
	b := New(KindAuthorization, "only the host can record winners")

	assert.True(t, errors.Is(a, a))
	assert.False(t, errors.Is(a, b))
	assert.True(t, errors.Is(b, ErrAuthorization))
}

func TestPersistence(t *testing.T) {
	assert.NoError(t, Persistence("insert room", nil))

	raw := errors.New("connection refused")
	err := Persistence("insert room", raw)
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, raw))
	assert.Equal(t, "insert room: connection refused", err.Error())

	nf := New(KindNotFound, "room not found")
	assert.Same(t, nf, Persistence("get room", nf))
}

func TestMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"domain", New(KindValidation, "room name is required"), "room name is required"},
		{"persistence hides cause", Persistence("update", errors.New("pq: boom")), "The server could not save your changes, please try again."},
		{"foreign", errors.New("boom"), "Something went wrong, please try again."},
		{"sentinel", ErrNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Message(tc.err))
		})
	}
}
