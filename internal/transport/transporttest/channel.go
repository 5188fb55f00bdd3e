// Package transporttest provides an in-process Channel for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/DoyleJ11/bunker-client/internal/protocol"
	"github.com/DoyleJ11/bunker-client/internal/transport"
)

type Emitted struct {
	Event   string
	Payload json.RawMessage
}

// Channel delivers events synchronously on the caller's goroutine.
// Responder, when set, is called after every successful Emit and may
// Deliver replies.
type Channel struct {
	transport.Registry

	mu        sync.Mutex
	connected bool
	emitted   []Emitted
	Responder func(c *Channel, event string, payload json.RawMessage)
}

func New(connected bool) *Channel {
	return &Channel{connected: connected}
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) Emit(_ context.Context, event string, payload any) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return transport.ErrNotConnected
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.emitted = append(c.emitted, Emitted{Event: event, Payload: raw})
	respond := c.Responder
	c.mu.Unlock()

	if respond != nil {
		respond(c, event, raw)
	}
	return nil
}

// SetConnected flips connectivity and dispatches the lifecycle event.
func (c *Channel) SetConnected(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
	if connected {
		c.Dispatch(protocol.EvtConnect, nil)
	} else {
		c.Dispatch(protocol.EvtDisconnect, nil)
	}
}

// Deliver simulates a server push.
func (c *Channel) Deliver(event string, data string) {
	c.Dispatch(event, json.RawMessage(data))
}

func (c *Channel) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Emitted(nil), c.emitted...)
}

func (c *Channel) EmittedEvents() []string {
	var events []string
	for _, e := range c.Emitted() {
		events = append(events, e.Event)
	}
	return events
}
