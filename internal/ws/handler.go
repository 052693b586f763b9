package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/auth"
	"github.com/DoyleJ11/olympics-backend/internal/engine"
	"github.com/DoyleJ11/olympics-backend/internal/hub"
	"github.com/DoyleJ11/olympics-backend/internal/lobby"
	"github.com/DoyleJ11/olympics-backend/internal/types"
)

const (
	writeTimeout = 3 * time.Second
	replyTimeout = 10 * time.Second
)

type Options struct {
	// OriginPatterns loosens the same-origin check, e.g. for a dev frontend.
	OriginPatterns []string
}

// Handler streams session snapshots of ?room= and accepts commands from
// signed-in players.
func Handler(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			writeError(w, http.StatusBadRequest, "missing room")
			return
		}

		lb, err := h.Lobby(r.Context(), roomID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				writeError(w, http.StatusNotFound, "room not found")
				return
			}
			log.Error("loading session failed", zap.String("room_id", roomID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, apperr.Message(err))
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		var actorID string
		if u, ok := auth.UserFromContext(r.Context()); ok {
			actorID = u.ID
		}

		out := make(chan lobby.Snapshot, 8)
		clientID := uuid.NewString()
		clog := log.With(zap.String("room_id", roomID), zap.String("client_id", clientID))

		if !lb.Send(r.Context(), lobby.Join{ClientID: clientID, Outbox: out}) {
			return
		}
		defer lb.Send(context.Background(), lobby.Leave{ClientID: clientID})

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			defer writeCancel()
			for snap := range out {
				msg := types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, State: &snap.State, Board: &snap.Board}
				if err := write(writeCtx, conn, msg); err != nil {
					clog.Debug("write failed", zap.Error(err))
					return
				}
			}
			// the lobby closed our outbox: it stopped or dropped us
			_ = conn.Close(websocket.StatusGoingAway, "session closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(writeCtx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(writeCtx, conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}
			if actorID == "" {
				_ = write(writeCtx, conn, types.ServerMessage{Type: "Error", Error: apperr.Message(auth.ErrUnauthenticated)})
				continue
			}

			cmd, ok := ToEngineCommand(cm)
			if !ok {
				_ = write(writeCtx, conn, types.ServerMessage{Type: "Error", Error: "unknown type"})
				continue
			}
			cmd.ActorID = actorID

			if err := Dispatch(writeCtx, lb, cmd); err != nil {
				_ = write(writeCtx, conn, types.ServerMessage{Type: "Error", Error: apperr.Message(err)})
			}
		}
	}
}

// Dispatch sends cmd to the lobby and waits for its verdict.
func Dispatch(ctx context.Context, lb *lobby.Lobby, cmd engine.Command) error {
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	reply := make(chan error, 1)
	if !lb.Send(ctx, lobby.FromClient{Cmd: cmd, Reply: reply}) {
		return apperr.New(apperr.KindNotFound, "the game session has ended")
	}
	select {
	case err := <-reply:
		return err
	case <-lb.Done():
		return apperr.New(apperr.KindNotFound, "the game session has ended")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ToEngineCommand maps a wire message onto an engine command. The actor is
// filled in by the caller.
func ToEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	switch m.Type {
	case "SelectChallenge":
		return engine.Command{Type: engine.CmdSelectChallenge, Index: m.Index}, true
	case "StartChallenge":
		return engine.Command{Type: engine.CmdStartChallenge}, true
	case "PauseChallenge":
		return engine.Command{Type: engine.CmdPauseChallenge}, true
	case "SelectWinner":
		return engine.Command{Type: engine.CmdSelectWinner, Team: m.Team}, true
	case "EndChallenge":
		return engine.Command{Type: engine.CmdEndChallenge}, true
	case "FinishGame":
		return engine.Command{Type: engine.CmdFinishGame}, true
	default:
		return engine.Command{}, false
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}
