// Package contract describes the wire messages exchanged with the game
// server, and the persisted session record, as JSON Schema.
package contract

import (
	"github.com/invopop/jsonschema"

	"github.com/DoyleJ11/bunker-client/internal/protocol"
	"github.com/DoyleJ11/bunker-client/internal/session"
)

type Direction string

const (
	Outbound Direction = "out"
	Inbound  Direction = "in"
	Stored   Direction = "stored"
)

// Message pairs an event name with a zero value of its payload type.
type Message struct {
	Event     string
	Direction Direction
	Payload   any
}

// Messages lists every payload in the contract. The transport lifecycle
// events carry no payload and are not listed.
var Messages = []Message{
	{protocol.EvtCreateGame, Outbound, protocol.CreateGame{}},
	{protocol.EvtJoinGame, Outbound, protocol.JoinGame{}},
	{protocol.EvtRejoinGame, Outbound, protocol.RejoinGame{}},
	{protocol.EvtGameAction, Outbound, protocol.GameAction{}},
	{protocol.EvtActionPreview, Outbound, protocol.ActionPreviewRequest{}},

	{protocol.EvtGameCreated, Inbound, protocol.GameCreated{}},
	{protocol.EvtJoined, Inbound, protocol.Joined{}},
	{protocol.EvtRejoined, Inbound, protocol.Rejoined{}},
	{protocol.EvtGameUpdated, Inbound, protocol.GameUpdated{}},
	{protocol.EvtPreview, Inbound, protocol.ActionPreview{}},
	{protocol.EvtError, Inbound, protocol.ServerError{}},
	{protocol.EvtGameError, Inbound, protocol.ServerError{}},

	{session.Key, Stored, session.Record{}},
}

type Entry struct {
	Event     string             `json:"event"`
	Direction Direction          `json:"direction"`
	Schema    *jsonschema.Schema `json:"schema"`
}

type Document struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Messages    []Entry `json:"messages"`
}

// Build reflects a schema for every message.
func Build() Document {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	doc := Document{
		Title:       "Bunker client wire contract",
		Description: "Payloads exchanged with the game server over the websocket, keyed by event name.",
	}
	for _, m := range Messages {
		s := reflector.Reflect(m.Payload)
		s.Title = m.Event
		doc.Messages = append(doc.Messages, Entry{Event: m.Event, Direction: m.Direction, Schema: s})
	}
	return doc
}

// Lookup returns the entry for event.
func (d Document) Lookup(event string) (Entry, bool) {
	for _, e := range d.Messages {
		if e.Event == event {
			return e, true
		}
	}
	return Entry{}, false
}
