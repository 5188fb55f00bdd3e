package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode wraps payload in an Envelope frame.
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		data = raw
	}
	return json.Marshal(Envelope{Type: event, Data: data})
}

type CreateGame struct{}

type JoinGame struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RejoinGame struct {
	ID       string `json:"id"`
	PlayerID string `json:"player_id"`
}

// GameAction is fire-and-forget; the server answers with game_updated.
// Payload is always sent, as {} when the action carries nothing.
type GameAction struct {
	GameID   string         `json:"gameId"`
	PlayerID string         `json:"playerId,omitempty"`
	Action   string         `json:"action"`
	Payload  map[string]any `json:"payload"`
}

type ActionPreviewRequest struct {
	GameID       string   `json:"gameId"`
	Participants []string `json:"participants"`
	ActionID     string   `json:"actionId"`
}

// Phase2 action names sent in GameAction.Action.
const (
	ActionMakeAction     = "make_action"
	ActionProcessAction  = "process_action"
	ActionResolveCrisis  = "resolve_crisis"
	ActionFinishTeamTurn = "finish_team_turn"
)

// Crisis outcomes accepted by resolve_crisis.
const (
	CrisisBunkerWin  = "bunker_win"
	CrisisBunkerLose = "bunker_lose"
)
