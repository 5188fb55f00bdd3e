package game

import (
	"encoding/json"
	"errors"
)

var ErrMalformedSnapshot = errors.New("malformed snapshot")
var ErrMalformedPhase2 = errors.New("malformed phase2 state")
var ErrTeamOverlap = errors.New("player listed in both teams")

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseBunker     Phase = "bunker"
	PhaseReveal     Phase = "reveal"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhasePhase2     Phase = "phase2"
	PhaseFinished   Phase = "finished"
)

type Team string

const (
	TeamNone    Team = ""
	TeamBunker  Team = "bunker"
	TeamOutside Team = "outside"
)

// Top-level snapshot keys read by the selectors.
const (
	KeyID               = "id"
	KeyHostID           = "host_id"
	KeyPhase            = "phase"
	KeyPlayers          = "players"
	KeyEliminated       = "eliminated_ids"
	KeyAvailableActions = "available_actions"
	KeyPhase2           = "phase2"
	KeyTeamInBunker     = "team_in_bunker"
	KeyTeamOutside      = "team_outside"
)

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// Phase2State is the nested team-combat sub-aggregate. Optional numeric
// resources are pointers so that "absent" and "zero" stay distinct.
type Phase2State struct {
	BunkerHP          *int `json:"bunker_hp,omitempty"`
	Morale            *int `json:"morale,omitempty"`
	Supplies          *int `json:"supplies,omitempty"`
	MoraleCountdown   *int `json:"morale_countdown,omitempty"`
	SuppliesCountdown *int `json:"supplies_countdown,omitempty"`
	Round             int  `json:"round"`

	TeamInBunker []string `json:"team_in_bunker,omitempty"`
	TeamOutside  []string `json:"team_outside,omitempty"`

	CurrentTeam   Team   `json:"current_team,omitempty"`
	CurrentPlayer string `json:"current_player,omitempty"`

	AvailableActions []Action       `json:"available_actions,omitempty"`
	ActionQueue      []QueuedAction `json:"action_queue,omitempty"`
	CurrentCrisis    *Crisis        `json:"current_crisis,omitempty"`
	Winner           Team           `json:"winner,omitempty"`

	CanProcessActions bool `json:"can_process_actions"`
	TeamTurnComplete  bool `json:"team_turn_complete"`
}

type Crisis struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Description    string   `json:"description,omitempty"`
	ImportantStats []string `json:"important_stats,omitempty"`
}

// Action is one entry of phase2.available_actions. The server sends either
// a full descriptor object or a bare action id.
type Action struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Difficulty  int    `json:"difficulty,omitempty"`
	Team        Team   `json:"team,omitempty"`
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*a = Action{ID: id}
		return nil
	}
	type plain Action
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Action(p)
	return nil
}

// QueuedAction is a submitted action still waiting for server processing.
type QueuedAction struct {
	Kind         string   `json:"action_type"`
	Participants []string `json:"participants"`
}
