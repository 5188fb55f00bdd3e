// Package protocol defines the message contract between the client and the
// game server. Inbound payloads are decoded into one variant per event and
// validated before anything else sees them.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/DoyleJ11/bunker-client/internal/game"
)

const (
	// outbound
	EvtCreateGame    = "create_game"
	EvtJoinGame      = "join_game"
	EvtRejoinGame    = "rejoin_game"
	EvtGameAction    = "game_action"
	EvtActionPreview = "phase2_get_action_preview"

	// inbound
	EvtGameCreated = "game_created"
	EvtJoined      = "joined"
	EvtRejoined    = "rejoined"
	EvtGameUpdated = "game_updated"
	EvtPreview     = "action_preview"
	EvtError       = "error"
	EvtGameError   = "game_error"

	// transport lifecycle, raised locally
	EvtConnect    = "connect"
	EvtDisconnect = "disconnect"
)

var ErrUnknownEvent = errors.New("unknown event")
var ErrInvalidPayload = errors.New("invalid payload")

// Envelope is one websocket frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Inbound interface {
	Event() string
	isInbound()
}

type GameCreated struct {
	Game     game.Snapshot `json:"game"`
	PlayerID string        `json:"player_id"`
}

type Joined struct {
	Game     game.Snapshot `json:"game"`
	PlayerID string        `json:"player_id"`
}

type Rejoined struct {
	Game     game.Snapshot `json:"game"`
	PlayerID string        `json:"player_id"`
}

type GameUpdated struct {
	Game game.Snapshot `json:"game"`
}

type ActionPreview struct {
	Preview json.RawMessage `json:"preview"`
}

// ServerError covers both "error" and "game_error".
type ServerError struct {
	Name    string `json:"-"`
	Message string `json:"message"`
}

func (GameCreated) Event() string   { return EvtGameCreated }
func (Joined) Event() string        { return EvtJoined }
func (Rejoined) Event() string      { return EvtRejoined }
func (GameUpdated) Event() string   { return EvtGameUpdated }
func (ActionPreview) Event() string { return EvtPreview }
func (e ServerError) Event() string { return e.Name }

func (GameCreated) isInbound()   {}
func (Joined) isInbound()        {}
func (Rejoined) isInbound()      {}
func (GameUpdated) isInbound()   {}
func (ActionPreview) isInbound() {}
func (ServerError) isInbound()   {}

func (e ServerError) Error() string { return e.Message }

// Decode validates data against the shape expected for event and decodes it
// into the matching variant. A payload that fails validation is never
// partially decoded.
func Decode(event string, data []byte) (Inbound, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s: not json", ErrInvalidPayload, event)
	}
	root := gjson.ParseBytes(data)

	switch event {
	case EvtGameCreated:
		// The host id stands in for a missing player_id on creation.
		if err := requireGame(event, root); err != nil {
			return nil, err
		}
		var m GameCreated
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
		}
		if m.PlayerID == "" {
			m.PlayerID = m.Game.HostID()
		}
		if m.PlayerID == "" {
			return nil, fmt.Errorf("%w: %s: missing player_id", ErrInvalidPayload, event)
		}
		return m, nil

	case EvtJoined:
		if err := requireIdentity(event, root); err != nil {
			return nil, err
		}
		var m Joined
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
		}
		return m, nil

	case EvtRejoined:
		if err := requireIdentity(event, root); err != nil {
			return nil, err
		}
		var m Rejoined
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
		}
		return m, nil

	case EvtGameUpdated:
		if err := requireGame(event, root); err != nil {
			return nil, err
		}
		var m GameUpdated
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, event, err)
		}
		return m, nil

	case EvtPreview:
		preview := root.Get("preview")
		if !preview.Exists() {
			return nil, fmt.Errorf("%w: %s: missing preview", ErrInvalidPayload, event)
		}
		return ActionPreview{Preview: json.RawMessage(preview.Raw)}, nil

	case EvtError, EvtGameError:
		msg := root.Get("message")
		if msg.Type != gjson.String {
			return nil, fmt.Errorf("%w: %s: missing message", ErrInvalidPayload, event)
		}
		return ServerError{Name: event, Message: msg.String()}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
}

func requireGame(event string, root gjson.Result) error {
	if !root.Get("game").IsObject() {
		return fmt.Errorf("%w: %s: missing game object", ErrInvalidPayload, event)
	}
	return nil
}

func requireIdentity(event string, root gjson.Result) error {
	if err := requireGame(event, root); err != nil {
		return err
	}
	id := root.Get("player_id")
	if id.Type != gjson.String || id.String() == "" {
		return fmt.Errorf("%w: %s: missing player_id", ErrInvalidPayload, event)
	}
	return nil
}
