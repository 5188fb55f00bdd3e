// Package restore replays a saved session identity to the server once per
// process and resolves the outcome into the cache.
package restore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bunker-client/internal/cache"
	"github.com/DoyleJ11/bunker-client/internal/game"
	"github.com/DoyleJ11/bunker-client/internal/protocol"
	"github.com/DoyleJ11/bunker-client/internal/session"
	"github.com/DoyleJ11/bunker-client/internal/transport"
)

const DefaultTimeout = 10 * time.Second

type Reason string

const (
	ReasonNoSession Reason = "no_session"
	ReasonError     Reason = "error"
	ReasonTimeout   Reason = "timeout"
)

type Status int

const (
	StatusIdle Status = iota
	StatusRestoring
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRestoring:
		return "restoring"
	case StatusComplete:
		return "complete"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Result is the single terminal outcome of a restore.
type Result struct {
	Success  bool          `json:"success"`
	Reason   Reason        `json:"reason,omitempty"`
	Message  string        `json:"message,omitempty"`
	Game     game.Snapshot `json:"game,omitempty"`
	PlayerID string        `json:"player_id,omitempty"`
	Role     session.Role  `json:"role,omitempty"`
}

type Options struct {
	// Timeout bounds the wait for the rejoin reply. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Restorer runs at most one restore to completion. Concurrent and later
// callers share its result.
type Restorer struct {
	ch       transport.Channel
	cache    *cache.Cache
	sessions *session.Store
	log      *zap.Logger
	timeout  time.Duration

	mu     sync.Mutex
	status Status
	result Result
	done   chan struct{}
}

func New(ch transport.Channel, c *cache.Cache, sessions *session.Store, log *zap.Logger, opts Options) *Restorer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Restorer{
		ch:       ch,
		cache:    c,
		sessions: sessions,
		log:      log.Named("restore"),
		timeout:  opts.Timeout,
	}
}

// Restore starts the restore or joins the one already running. It only
// returns an error when ctx ends before the outcome is known; in that case
// nothing was cleared and a later call starts over. A caller that joined a
// run whose own ctx ended takes over instead of inheriting that error.
func (r *Restorer) Restore(ctx context.Context) (Result, error) {
	for {
		r.mu.Lock()
		switch r.status {
		case StatusComplete:
			res := r.result
			r.mu.Unlock()
			return res, nil
		case StatusRestoring:
			done := r.done
			r.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}
		r.status = StatusRestoring
		r.done = make(chan struct{})
		r.mu.Unlock()

		res, err := r.run(ctx)

		r.mu.Lock()
		if err != nil {
			r.status = StatusIdle
		} else {
			r.result = res
			r.status = StatusComplete
		}
		close(r.done)
		r.mu.Unlock()
		return res, err
	}
}

// Status reports the current state and, once complete, the result.
func (r *Restorer) Status() (Status, Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.result
}

func (r *Restorer) run(ctx context.Context) (Result, error) {
	rec, ok := r.sessions.Load(ctx)
	if !ok {
		r.log.Info("no session to restore")
		return Result{Reason: ReasonNoSession}, nil
	}
	log := r.log.With(
		zap.String("game_id", rec.GameID),
		zap.String("player_id", rec.PlayerID),
		zap.String("role", string(rec.Role)),
	)

	var res Result
	var w *transport.Waiter
	checkNow := true
	for {
		if err := r.awaitConnect(ctx, checkNow); err != nil {
			return Result{}, err
		}
		w = transport.Expect(r.ch, func(reply transport.Reply) {
			res = r.resolve(log, rec, reply)
		}, protocol.EvtRejoined, protocol.EvtError)

		err := r.ch.Emit(ctx, protocol.EvtRejoinGame, protocol.RejoinGame{ID: rec.GameID, PlayerID: rec.PlayerID})
		if err == nil {
			break
		}
		w.Cancel()
		log.Warn("rejoin not sent, waiting for the next connection", zap.Error(err))
		checkNow = false
	}
	log.Info("rejoin sent")

	waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := w.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Warn("rejoin timed out, starting fresh", zap.Duration("timeout", r.timeout))
		r.cache.Clear()
		return Result{Reason: ReasonTimeout}, nil
	}
	return res, nil
}

// resolve runs on the delivery goroutine for the first reply only, so the
// cache transition lands before any push that follows it.
func (r *Restorer) resolve(log *zap.Logger, rec session.Record, reply transport.Reply) Result {
	in, err := protocol.Decode(reply.Event, reply.Data)
	if err != nil {
		log.Warn("unreadable rejoin reply, clearing session", zap.Error(err))
		r.cache.Clear()
		return Result{Reason: ReasonError, Message: err.Error()}
	}

	switch m := in.(type) {
	case protocol.Rejoined:
		r.cache.Replace(m.Game, cache.Identity{PlayerID: m.PlayerID, Role: rec.Role}, false)
		log.Info("session restored")
		return Result{Success: true, Game: m.Game, PlayerID: m.PlayerID, Role: rec.Role}
	case protocol.ServerError:
		log.Warn("rejoin rejected, clearing session", zap.String("message", m.Message))
		r.cache.Clear()
		return Result{Reason: ReasonError, Message: m.Message}
	}
	r.cache.Clear()
	return Result{Reason: ReasonError, Message: "unexpected reply " + reply.Event}
}

func (r *Restorer) awaitConnect(ctx context.Context, checkNow bool) error {
	connected := make(chan struct{}, 1)
	off := r.ch.On(protocol.EvtConnect, func(json.RawMessage) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	defer off()

	if checkNow && r.ch.Connected() {
		return nil
	}
	r.log.Debug("waiting for connection")
	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
