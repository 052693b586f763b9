package engine

import (
	"slices"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
	"github.com/DoyleJ11/olympics-backend/internal/model"
)

var (
	ErrNotHost             = apperr.New(apperr.KindAuthorization, "only the host can run challenges")
	ErrChallengeLocked     = apperr.New(apperr.KindValidation, "finish the previous challenge first")
	ErrNoChallenge         = apperr.New(apperr.KindNotFound, "no challenge selected")
	ErrChallengeInProgress = apperr.New(apperr.KindValidation, "a challenge is already in progress")
	ErrInvalidTeam         = apperr.New(apperr.KindValidation, "no such team")
	ErrUnsupportedCommand  = apperr.New(apperr.KindValidation, "unsupported command")
	ErrChallengeCompleted  = apperr.New(apperr.KindValidation, "that challenge is already finished")
	ErrGameNotRunning      = apperr.New(apperr.KindNotFound, "the game is not in progress")
)

// State is the progression of one play-through. It is built fresh by
// NewState for every game and never shared between rooms.
type State struct {
	RoomID     string            `json:"room_id"`
	HostUserID string            `json:"host_user_id"`
	NumTeams   int               `json:"num_teams"`
	// Status follows the room: commands are only accepted while playing.
	Status     model.RoomStatus  `json:"status"`
	Challenges []model.Challenge `json:"challenges"`
	Members    []model.Member    `json:"members"`

	// Cursor indexes the current challenge, -1 when there is none.
	Cursor    int      `json:"cursor"`
	Completed []string `json:"completed"`
	// Winners maps challenge id to the winning team number.
	Winners map[string]int `json:"winners"`

	Remaining      int  `json:"remaining"` // seconds
	Running        bool `json:"running"`
	Paused         bool `json:"paused"`
	AwaitingResult bool `json:"awaiting_result"`

	Podium   []PodiumEntry `json:"podium"`
	Finished bool          `json:"finished"`
}

type CommandType string

const (
	CmdSelectChallenge CommandType = "SelectChallenge"
	CmdStartChallenge  CommandType = "StartChallenge"
	CmdPauseChallenge  CommandType = "PauseChallenge"
	CmdTick            CommandType = "Tick"
	CmdSelectWinner    CommandType = "SelectWinner"
	CmdEndChallenge    CommandType = "EndChallenge"
	CmdFinishGame      CommandType = "FinishGame"
)

/*
	CmdSelectChallenge -> EvtChallengeReleased? -> EvtChallengeSelected
	CmdStartChallenge  -> EvtTimerStarted (fresh or resumed)
	CmdPauseChallenge  -> EvtTimerPaused
	CmdTick            -> EvtTimerExpired when the clock hits zero; the host then
	                      confirms with SelectWinner or EndChallenge
	CmdSelectWinner    -> EvtChallengeCompleted -> EvtCursorAdvanced? -> EvtGameCompleted?
	CmdEndChallenge    -> EvtChallengeCompleted -> EvtCursorAdvanced? -> EvtGameCompleted?
	CmdFinishGame      -> EvtGameCompleted
*/

type Command struct {
	Type    CommandType
	ActorID string
	Index   int
	Team    int
}

type EventType string

const (
	EvtChallengeSelected  EventType = "ChallengeSelected"
	// EvtChallengeReleased puts a paused challenge back to pending when the
	// host moves on without finishing it.
	EvtChallengeReleased  EventType = "ChallengeReleased"
	EvtTimerStarted       EventType = "TimerStarted"
	EvtTimerPaused        EventType = "TimerPaused"
	EvtTimerExpired       EventType = "TimerExpired"
	EvtChallengeCompleted EventType = "ChallengeCompleted"
	EvtCursorAdvanced     EventType = "CursorAdvanced"
	EvtGameCompleted      EventType = "GameCompleted"
)

type Event struct {
	Type        EventType
	ChallengeID string
	Index       int
	Team        int
	// WinnerRef is the member id stored as the durable winner, empty when
	// no winner was recorded or the team has no members.
	WinnerRef string
}

// Apply validates cmd against s and returns the resulting events and state.
// On error the returned state is s, untouched.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if cmd.Type != CmdTick && cmd.ActorID != s.HostUserID {
		return nil, s, ErrNotHost
	}
	if cmd.Type != CmdTick && s.Status != model.RoomPlaying {
		return nil, s, ErrGameNotRunning
	}

	switch cmd.Type {
	case CmdSelectChallenge:
		if s.Running {
			return nil, s, ErrChallengeInProgress
		}
		if cmd.Index < 0 || cmd.Index >= len(s.Challenges) {
			return nil, s, ErrNoChallenge
		}
		if !IsUnlocked(s, cmd.Index) {
			return nil, s, ErrChallengeLocked
		}
		next := s.clone()
		var events []Event
		if next.Cursor != cmd.Index {
			if prev := next.Cursor; prev >= 0 && next.Challenges[prev].Status == model.ChallengeActive {
				next.Challenges[prev].Status = model.ChallengePending
				events = append(events, Event{Type: EvtChallengeReleased, ChallengeID: next.Challenges[prev].ID, Index: prev})
			}
			next.Paused = false
			next.Remaining = 0
			next.AwaitingResult = false
		}
		next.Cursor = cmd.Index
		events = append(events, Event{Type: EvtChallengeSelected, ChallengeID: next.Challenges[cmd.Index].ID, Index: cmd.Index})
		return events, next, nil

	case CmdStartChallenge:
		ch, ok := Current(s)
		if !ok {
			return nil, s, ErrNoChallenge
		}
		if s.Running {
			return nil, s, ErrChallengeInProgress
		}
		if IsCompleted(s, ch.ID) {
			return nil, s, ErrChallengeCompleted
		}
		next := s.clone()
		if !(next.Paused && next.Remaining > 0) {
			next.Remaining = ch.Seconds()
		}
		next.Running = true
		next.Paused = false
		next.AwaitingResult = false
		next.Challenges[next.Cursor].Status = model.ChallengeActive
		return []Event{{Type: EvtTimerStarted, ChallengeID: ch.ID, Index: next.Cursor}}, next, nil

	case CmdPauseChallenge:
		if !s.Running {
			return nil, s, nil
		}
		next := s.clone()
		next.Running = false
		next.Paused = true
		return []Event{{Type: EvtTimerPaused, ChallengeID: next.Challenges[next.Cursor].ID, Index: next.Cursor}}, next, nil

	case CmdTick:
		if !s.Running {
			return nil, s, nil
		}
		next := s.clone()
		if next.Remaining > 0 {
			next.Remaining--
		}
		if next.Remaining > 0 {
			return nil, next, nil
		}
		next.Running = false
		next.Paused = false
		next.AwaitingResult = true
		return []Event{{Type: EvtTimerExpired, ChallengeID: next.Challenges[next.Cursor].ID, Index: next.Cursor}}, next, nil

	case CmdSelectWinner:
		if _, ok := Current(s); !ok {
			return nil, s, ErrNoChallenge
		}
		if cmd.Team < 1 || cmd.Team > s.NumTeams {
			return nil, s, ErrInvalidTeam
		}
		next := s.clone()
		ref := winnerRef(next.Members, cmd.Team)
		next.Winners[next.Challenges[next.Cursor].ID] = cmd.Team
		if ref != "" {
			next.Challenges[next.Cursor].WinnerTeamID = &ref
		}
		events := complete(&next, cmd.Team, ref)
		return events, next, nil

	case CmdEndChallenge:
		if _, ok := Current(s); !ok {
			return nil, s, ErrNoChallenge
		}
		next := s.clone()
		events := complete(&next, 0, "")
		return events, next, nil

	case CmdFinishGame:
		next := s.clone()
		next.stopClock()
		next.Podium = ComputePodium(next)
		next.Finished = true
		next.Status = model.RoomFinished
		return []Event{{Type: EvtGameCompleted}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// complete finishes the current challenge, moves the cursor on when the
// next challenge is now unlocked and refreshes the podium.
func complete(s *State, team int, ref string) []Event {
	s.stopClock()

	idx := s.Cursor
	ch := &s.Challenges[idx]
	ch.Status = model.ChallengeCompleted
	if !slices.Contains(s.Completed, ch.ID) {
		s.Completed = append(s.Completed, ch.ID)
	}

	events := []Event{{Type: EvtChallengeCompleted, ChallengeID: ch.ID, Index: idx, Team: team, WinnerRef: ref}}

	if idx+1 < len(s.Challenges) && IsUnlocked(*s, idx+1) {
		s.Cursor = idx + 1
		events = append(events, Event{Type: EvtCursorAdvanced, ChallengeID: s.Challenges[idx+1].ID, Index: idx + 1})
	}

	s.Podium = ComputePodium(*s)
	if !s.Finished && CompletedCount(*s) == len(s.Challenges) {
		s.Finished = true
		s.Status = model.RoomFinished
		events = append(events, Event{Type: EvtGameCompleted})
	}
	return events
}

func (s *State) stopClock() {
	if s.Cursor >= 0 && s.Cursor < len(s.Challenges) && s.Challenges[s.Cursor].Status == model.ChallengeActive {
		s.Challenges[s.Cursor].Status = model.ChallengePending
	}
	s.Running = false
	s.Paused = false
	s.AwaitingResult = false
	s.Remaining = 0
}

// clone copies everything Apply may mutate so snapshots already handed to
// clients stay immutable.
func (s State) clone() State {
	s.Challenges = slices.Clone(s.Challenges)
	s.Completed = slices.Clone(s.Completed)
	s.Podium = slices.Clone(s.Podium)
	winners := make(map[string]int, len(s.Winners))
	for k, v := range s.Winners {
		winners[k] = v
	}
	s.Winners = winners
	return s
}

// winnerRef picks the earliest-joined member of team as its durable reference.
func winnerRef(members []model.Member, team int) string {
	for _, m := range members {
		if m.TeamNumber == team {
			return m.ID
		}
	}
	return ""
}
