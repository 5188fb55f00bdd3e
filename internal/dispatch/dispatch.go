// Package dispatch turns server pushes into cache transitions. It is the
// only place where inbound events mutate local state outside of an
// explicit request/reply.
package dispatch

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bunker-client/internal/cache"
	"github.com/DoyleJ11/bunker-client/internal/protocol"
	"github.com/DoyleJ11/bunker-client/internal/transport"
)

type Dispatcher struct {
	ch    transport.Channel
	cache *cache.Cache
	log   *zap.Logger

	once sync.Once
	mu   sync.Mutex
	offs []func()
}

func New(ch transport.Channel, c *cache.Cache, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{ch: ch, cache: c, log: log.Named("dispatch")}
}

// Attach binds the push handlers. Only the first call on a Dispatcher does
// anything; it reports whether this call did the binding.
func (d *Dispatcher) Attach() bool {
	attached := false
	d.once.Do(func() {
		attached = true
		d.mu.Lock()
		defer d.mu.Unlock()
		d.offs = append(d.offs,
			d.ch.On(protocol.EvtConnect, func(json.RawMessage) {
				d.cache.SetConnected(true)
			}),
			// A disconnect is transient: game and session stay.
			d.ch.On(protocol.EvtDisconnect, func(json.RawMessage) {
				d.cache.SetConnected(false)
			}),
			d.ch.On(protocol.EvtGameUpdated, func(data json.RawMessage) {
				d.onUpdate(data)
			}),
			d.ch.On(protocol.EvtGameError, func(data json.RawMessage) {
				d.onError(protocol.EvtGameError, data)
			}),
			d.ch.On(protocol.EvtError, func(data json.RawMessage) {
				d.onError(protocol.EvtError, data)
			}),
		)
		d.cache.SetConnected(d.ch.Connected())
		d.log.Info("push handlers attached")
	})
	return attached
}

// Detach removes the handlers. Attach stays latched.
func (d *Dispatcher) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, off := range d.offs {
		off()
	}
	d.offs = nil
}

func (d *Dispatcher) onUpdate(data json.RawMessage) {
	in, err := protocol.Decode(protocol.EvtGameUpdated, data)
	if err != nil {
		d.log.Warn("skipping malformed update", zap.Error(err))
		return
	}
	d.cache.Merge(in.(protocol.GameUpdated).Game)
}

func (d *Dispatcher) onError(event string, data json.RawMessage) {
	in, err := protocol.Decode(event, data)
	if err != nil {
		d.log.Warn("skipping malformed error message", zap.Error(err))
		return
	}
	msg := in.(protocol.ServerError).Message
	d.log.Warn("server error", zap.String("event", event), zap.String("message", msg))
	d.cache.SetError(msg)
}
