// Package transport is the single long-lived connection to the game server.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/DoyleJ11/bunker-client/internal/protocol"
)

var ErrNotConnected = errors.New("not connected")

// Handler receives the raw payload of one event. Handlers run one at a time
// on the channel's delivery goroutine, in the order events arrive.
type Handler func(data json.RawMessage)

type Channel interface {
	Emit(ctx context.Context, event string, payload any) error
	// On registers h for event and returns a function that removes it.
	On(event string, h Handler) (off func())
	Connected() bool
}

// Registry holds event handlers in registration order. It is safe to add or
// remove handlers from inside a handler.
type Registry struct {
	mu       sync.Mutex
	next     uint64
	handlers map[string][]entry
}

type entry struct {
	id uint64
	h  Handler
}

func (r *Registry) On(event string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string][]entry)
	}
	r.next++
	id := r.next
	r.handlers[event] = append(r.handlers[event], entry{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() { r.off(event, id) })
	}
}

func (r *Registry) off(event string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.handlers[event]
	for i, e := range list {
		if e.id == id {
			r.handlers[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(r.handlers[event]) == 0 {
		delete(r.handlers, event)
	}
}

// Dispatch calls every handler registered for event. A handler removed by
// an earlier handler in the same dispatch is not called.
func (r *Registry) Dispatch(event string, data json.RawMessage) {
	r.mu.Lock()
	list := append([]entry(nil), r.handlers[event]...)
	r.mu.Unlock()

	for _, e := range list {
		if !r.registered(event, e.id) {
			continue
		}
		e.h(data)
	}
}

func (r *Registry) registered(event string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.handlers[event] {
		if e.id == id {
			return true
		}
	}
	return false
}

func (r *Registry) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}

// Reply is the first of several awaited events.
type Reply struct {
	Event string
	Data  json.RawMessage
}

// Waiter is a one-shot subscription to a set of reply events. The first
// reply settles it and removes every handler; later replies are ignored.
type Waiter struct {
	once    sync.Once
	settled chan Reply

	mu      sync.Mutex
	removed bool
	offs    []func()
}

// Expect registers a Waiter on ch for events. Register before emitting the
// request so a fast reply is not missed. onReply, when set, runs on the
// delivery goroutine for the settling reply only, before later events are
// delivered.
func Expect(ch Channel, onReply func(Reply), events ...string) *Waiter {
	w := &Waiter{settled: make(chan Reply, 1)}
	for _, ev := range events {
		ev := ev
		w.track(ch.On(ev, func(data json.RawMessage) {
			w.once.Do(func() {
				w.removeAll()
				r := Reply{Event: ev, Data: data}
				if onReply != nil {
					onReply(r)
				}
				w.settled <- r
			})
		}))
	}
	return w
}

// track keeps off for removeAll. A reply can settle the waiter while later
// events are still being registered; those handlers are removed at once.
func (w *Waiter) track(off func()) {
	w.mu.Lock()
	if w.removed {
		w.mu.Unlock()
		off()
		return
	}
	w.offs = append(w.offs, off)
	w.mu.Unlock()
}

func (w *Waiter) removeAll() {
	w.mu.Lock()
	offs := w.offs
	w.offs = nil
	w.removed = true
	w.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

// Wait blocks until a reply arrives or ctx is done. On ctx expiry the
// handlers are removed; if a reply won the race it is returned instead.
func (w *Waiter) Wait(ctx context.Context) (Reply, error) {
	select {
	case r := <-w.settled:
		return r, nil
	case <-ctx.Done():
		cancelled := false
		w.once.Do(func() {
			cancelled = true
			w.removeAll()
		})
		if cancelled {
			return Reply{}, ctx.Err()
		}
		return <-w.settled, nil
	}
}

// Cancel removes the handlers without waiting.
func (w *Waiter) Cancel() {
	w.once.Do(w.removeAll)
}

// Request registers for replies, emits event and waits for the first reply.
func Request(ctx context.Context, ch Channel, event string, payload any, onReply func(Reply), replies ...string) (Reply, error) {
	w := Expect(ch, onReply, replies...)
	if err := ch.Emit(ctx, event, payload); err != nil {
		w.Cancel()
		return Reply{}, err
	}
	return w.Wait(ctx)
}

// IsLifecycle reports whether event is raised by the transport itself.
func IsLifecycle(event string) bool {
	return event == protocol.EvtConnect || event == protocol.EvtDisconnect
}
