package types

import (
	"github.com/DoyleJ11/olympics-backend/internal/engine"
)

// ClientMessage is a command sent by a player over the socket.
type ClientMessage struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"` // SelectChallenge
	Team  int    `json:"team,omitempty"`  // SelectWinner
}

type ServerMessage struct {
	Type    string        `json:"type"` // "StateSnapshot" | "Error"
	Version int           `json:"version,omitempty"`
	State   *engine.State `json:"state,omitempty"`
	Board   *engine.Board `json:"board,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// CommandRequest is the HTTP body of a session command.
type CommandRequest = ClientMessage

type ErrorResponse struct {
	Error string `json:"error"`
}
