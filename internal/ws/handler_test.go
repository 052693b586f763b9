package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/auth"
	"github.com/DoyleJ11/olympics-backend/internal/engine"
	"github.com/DoyleJ11/olympics-backend/internal/hub"
	"github.com/DoyleJ11/olympics-backend/internal/lobby"
	"github.com/DoyleJ11/olympics-backend/internal/model"
	"github.com/DoyleJ11/olympics-backend/internal/types"
)

const host = "host-user"

func loader(_ context.Context, roomID string) (engine.State, error) {
	if roomID == "missing" {
		return engine.State{}, apperr.New(apperr.KindNotFound, "room not found")
	}
	room := model.Room{ID: roomID, NumTeams: 2, Status: model.RoomPlaying, CreatedBy: host}
	challenges := []model.Challenge{{ID: "c1", Title: "Relay", Order: 1}, {ID: "c2", Title: "Tug of war", Order: 2}}
	members := []model.Member{{ID: "m1", UserID: host, TeamNumber: 1}, {ID: "m2", UserID: "u2", TeamNumber: 2}}
	return engine.NewState(room, challenges, members), nil
}

// newServer fakes authentication with a ?user= parameter.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx, loader, lobby.Options{})
	handler := Handler(h, zap.NewNop(), Options{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := r.URL.Query().Get("user"); u != "" {
			r = r.WithContext(auth.WithUser(r.Context(), auth.User{ID: u}))
		}
		handler(w, r)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeMsg(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, data))
}

func TestHandler_SnapshotOnConnect(t *testing.T) {
	srv := newServer(t)
	conn := dial(t, srv, "room=r1")

	msg := readMsg(t, conn)
	assert.Equal(t, "StateSnapshot", msg.Type)
	require.NotNil(t, msg.State)
	require.NotNil(t, msg.Board)
	assert.Equal(t, 0, msg.State.Cursor)
	assert.Len(t, msg.Board.Challenges, 2)
}

func TestHandler_HostCommandBroadcastsToEveryone(t *testing.T) {
	srv := newServer(t)
	hostConn := dial(t, srv, "room=r2&user="+host)
	watcher := dial(t, srv, "room=r2")
	_ = readMsg(t, hostConn)
	_ = readMsg(t, watcher)

	writeMsg(t, hostConn, types.ClientMessage{Type: "SelectWinner", Team: 2})

	for _, c := range []*websocket.Conn{hostConn, watcher} {
		msg := readMsg(t, c)
		assert.Equal(t, "StateSnapshot", msg.Type)
		assert.Equal(t, 1, msg.Version)
		assert.Equal(t, 1, msg.State.Cursor)
		assert.Equal(t, 2, msg.Board.Winner)
	}
}

func TestHandler_ErrorsGoOnlyToSender(t *testing.T) {
	srv := newServer(t)
	player := dial(t, srv, "room=r3&user=u2")
	_ = readMsg(t, player)

	writeMsg(t, player, types.ClientMessage{Type: "StartChallenge"})
	msg := readMsg(t, player)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, "only the host can run challenges", msg.Error)

	writeMsg(t, player, types.ClientMessage{Type: "Moonwalk"})
	assert.Equal(t, "unknown type", readMsg(t, player).Error)

	require.NoError(t, player.Write(context.Background(), websocket.MessageText, []byte("{")))
	assert.Equal(t, "bad json", readMsg(t, player).Error)
}

func TestHandler_AnonymousCannotCommand(t *testing.T) {
	srv := newServer(t)
	conn := dial(t, srv, "room=r4")
	_ = readMsg(t, conn)

	writeMsg(t, conn, types.ClientMessage{Type: "StartChallenge"})
	msg := readMsg(t, conn)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, apperr.Message(auth.ErrUnauthenticated), msg.Error)
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	srv := newServer(t)

	res, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = http.Get(srv.URL + "/ws?room=missing")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestToEngineCommand(t *testing.T) {
	cases := []struct {
		in   types.ClientMessage
		want engine.Command
	}{
		{types.ClientMessage{Type: "SelectChallenge", Index: 2}, engine.Command{Type: engine.CmdSelectChallenge, Index: 2}},
		{types.ClientMessage{Type: "StartChallenge"}, engine.Command{Type: engine.CmdStartChallenge}},
		{types.ClientMessage{Type: "PauseChallenge"}, engine.Command{Type: engine.CmdPauseChallenge}},
		{types.ClientMessage{Type: "SelectWinner", Team: 3}, engine.Command{Type: engine.CmdSelectWinner, Team: 3}},
		{types.ClientMessage{Type: "EndChallenge"}, engine.Command{Type: engine.CmdEndChallenge}},
		{types.ClientMessage{Type: "FinishGame"}, engine.Command{Type: engine.CmdFinishGame}},
	}
	for _, tc := range cases {
		got, ok := ToEngineCommand(tc.in)
		assert.True(t, ok, tc.in.Type)
		assert.Equal(t, tc.want, got)
	}

	_, ok := ToEngineCommand(types.ClientMessage{Type: "Tick"})
	assert.False(t, ok, "ticks come from the server clock only")
}
