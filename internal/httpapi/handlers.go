package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/auth"
	"github.com/DoyleJ11/olympics-backend/internal/engine"
	"github.com/DoyleJ11/olympics-backend/internal/hub"
	"github.com/DoyleJ11/olympics-backend/internal/lobby"
	"github.com/DoyleJ11/olympics-backend/internal/model"
	"github.com/DoyleJ11/olympics-backend/internal/rooms"
	"github.com/DoyleJ11/olympics-backend/internal/types"
	"github.com/DoyleJ11/olympics-backend/internal/ws"
)

const maxBody = 1 << 16

type API struct {
	Rooms    *rooms.Manager
	Hub      *hub.Hub
	Identity auth.Identity
	Log      *zap.Logger
}

type joinRequest struct {
	PlayerName string `json:"player_name"`
}

type roomResponse struct {
	Room     model.Room    `json:"room"`
	Member   *model.Member `json:"member,omitempty"`
	CanStart bool          `json:"can_start"`
}

type sessionResponse struct {
	Version int          `json:"version"`
	State   engine.State `json:"state"`
	Board   engine.Board `json:"board"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) ListRooms(w http.ResponseWriter, r *http.Request) {
	list, err := a.Rooms.ListAvailableRooms(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var p rooms.CreateRoomParams
	if !decode(w, r, &p) {
		return
	}
	room, host, err := a.Rooms.CreateRoom(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomResponse{Room: room, Member: &host})
}

func (a *API) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := a.Rooms.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	members, err := a.Rooms.ListMembers(r.Context(), room.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{
		Room:     room,
		CanStart: room.Status == model.RoomWaiting && engine.CanStartGame(len(members), room.MaxPlayers),
	})
}

func (a *API) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.Rooms.ListMembers(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (a *API) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	room, member, err := a.Rooms.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), req.PlayerName)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{Room: room, Member: &member})
}

func (a *API) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := a.Rooms.LeaveRoom(r.Context(), chi.URLParam(r, "roomID")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) StartGame(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	room, err := a.Rooms.StartGame(r.Context(), roomID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	// drop any session left from before so the game starts clean
	a.Hub.Remove(r.Context(), roomID)
	writeJSON(w, http.StatusOK, roomResponse{Room: room})
}

func (a *API) FinishGame(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	room, err := a.Rooms.FinishGame(r.Context(), roomID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	// settle the podium of a running session so watchers see the final
	// board, then close it; the room is final either way
	if actor, err := a.Identity.CurrentUser(r.Context()); err == nil {
		if lb, err := a.runningLobby(r.Context(), roomID); err == nil && lb != nil {
			err := ws.Dispatch(r.Context(), lb, engine.Command{Type: engine.CmdFinishGame, ActorID: actor.ID})
			if err != nil && !errors.Is(err, engine.ErrGameNotRunning) {
				a.Log.Warn("closing session failed", zap.String("room_id", roomID), zap.Error(err))
			}
		}
	}
	a.Hub.Remove(r.Context(), roomID)
	writeJSON(w, http.StatusOK, roomResponse{Room: room})
}

func (a *API) ResetChallenges(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if err := a.Rooms.ResetChallenges(r.Context(), roomID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.Hub.Remove(r.Context(), roomID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ReseedChallenges(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if err := a.Rooms.ReseedChallenges(r.Context(), roomID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.Hub.Remove(r.Context(), roomID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	lb, err := a.Hub.Lobby(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view, err := viewOf(r.Context(), lb)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Version: view.Version, State: view.State, Board: engine.Describe(view.State)})
}

func (a *API) SessionCommand(w http.ResponseWriter, r *http.Request) {
	actor, err := a.Identity.CurrentUser(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req types.CommandRequest
	if !decode(w, r, &req) {
		return
	}
	cmd, ok := ws.ToEngineCommand(req)
	if !ok {
		a.fail(w, r, apperr.New(apperr.KindValidation, "unknown command"))
		return
	}
	cmd.ActorID = actor.ID

	lb, err := a.Hub.Lobby(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := ws.Dispatch(r.Context(), lb, cmd); err != nil {
		a.fail(w, r, err)
		return
	}
	view, err := viewOf(r.Context(), lb)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Version: view.Version, State: view.State, Board: engine.Describe(view.State)})
}

// runningLobby returns the room's lobby without starting one.
func (a *API) runningLobby(ctx context.Context, roomID string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case a.Hub.Inbox() <- hub.GetLobby{RoomID: roomID, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func viewOf(ctx context.Context, lb *lobby.Lobby) (lobby.View, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	reply := make(chan lobby.View, 1)
	if !lb.Send(ctx, lobby.GetState{Reply: reply}) {
		return lobby.View{}, apperr.New(apperr.KindNotFound, "the game session has ended")
	}
	select {
	case v := <-reply:
		return v, nil
	case <-lb.Done():
		return lobby.View{}, apperr.New(apperr.KindNotFound, "the game session has ended")
	case <-ctx.Done():
		return lobby.View{}, ctx.Err()
	}
}

// StatusOf maps an error onto the HTTP status it is reported with.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindRoomFull:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		a.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, types.ErrorResponse{Error: apperr.Message(err)})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
