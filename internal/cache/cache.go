package cache

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bunker-client/internal/game"
	"github.com/DoyleJ11/bunker-client/internal/session"
)

var ErrClosed = errors.New("cache closed")

type Msg interface{ isCacheMsg() }

// Merge applies a server patch as a shallow key-wise union.
type Merge struct {
	Patch game.Snapshot
}

func (Merge) isCacheMsg() {}

// Replace swaps in a full snapshot and local identity as one transition.
// Persist also saves the identity to the session store; a rejoin keeps the
// stored session as it is.
type Replace struct {
	Game     game.Snapshot
	Identity Identity
	Persist  bool
}

func (Replace) isCacheMsg() {}

type Clear struct{}

func (Clear) isCacheMsg() {}

type SetConnected struct{ Connected bool }

func (SetConnected) isCacheMsg() {}

type SetError struct{ Message string }

func (SetError) isCacheMsg() {}

type Watch struct {
	ID     string
	Outbox chan View // receives a View after every transition
}

func (Watch) isCacheMsg() {}

type Unwatch struct{ ID string }

func (Unwatch) isCacheMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isCacheMsg() {}

type Shutdown struct{}

func (Shutdown) isCacheMsg() {}

type Identity struct {
	PlayerID string       `json:"player_id"`
	Role     session.Role `json:"role"`
}

// View is a copy of the committed state. Game must not be mutated.
type View struct {
	Version   int           `json:"version"`
	Game      game.Snapshot `json:"game"`
	Identity  Identity      `json:"identity"`
	Connected bool          `json:"connected"`
	Error     string        `json:"error,omitempty"`
	Watchers  int           `json:"-"`
}

func (v View) HasGame() bool { return v.Game != nil }

// Derived recomputes the phase projection from this view.
func (v View) Derived() game.Derived { return game.Derive(v.Game, v.Identity.PlayerID) }

// Cache owns the local game snapshot. All transitions run one at a time on
// its loop goroutine in inbox order, so a read sent after a mutation always
// observes it.
type Cache struct {
	inbox    chan Msg
	view     View
	watchers map[string]chan View
	sessions *session.Store
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(parent context.Context, sessions *session.Store, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	c := &Cache{
		inbox:    make(chan Msg, 64),
		watchers: make(map[string]chan View),
		sessions: sessions,
		log:      log.Named("cache"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go c.loop()
	return c
}

func (c *Cache) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Merge:
				c.merge(msg.Patch)

			case Replace:
				c.view.Game = msg.Game
				c.view.Identity = msg.Identity
				c.view.Error = ""
				if msg.Persist && c.sessions != nil {
					c.sessions.Save(c.ctx, session.Record{
						Role:     msg.Identity.Role,
						GameID:   msg.Game.ID(),
						PlayerID: msg.Identity.PlayerID,
					})
				}
				c.commit("replace")

			case Clear:
				c.view.Game = nil
				c.view.Identity = Identity{}
				c.view.Error = ""
				if c.sessions != nil {
					c.sessions.Clear(c.ctx)
				}
				c.commit("clear")

			case SetConnected:
				if c.view.Connected == msg.Connected {
					break
				}
				c.view.Connected = msg.Connected
				c.commit("set_connected")

			case SetError:
				c.view.Error = msg.Message
				c.commit("set_error")

			case Watch:
				c.watchers[msg.ID] = msg.Outbox
				select {
				case msg.Outbox <- c.snapshot():
				default:
					close(msg.Outbox)
					delete(c.watchers, msg.ID)
				}

			case Unwatch:
				if ch, ok := c.watchers[msg.ID]; ok {
					close(ch)
					delete(c.watchers, msg.ID)
				}

			case GetState:
				msg.Reply <- c.snapshot()

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Cache) merge(patch game.Snapshot) {
	if patch == nil {
		c.log.Warn("merge skipped: patch has no game object")
		return
	}
	prevWinner := c.view.Game.Winner()
	c.view.Game = c.view.Game.Merge(patch)
	if prevWinner != game.TeamNone && c.view.Game.Winner() == game.TeamNone {
		c.log.Warn("server cleared a decided winner", zap.String("winner", string(prevWinner)))
	}
	// A patch may carry one roster while the other comes from the cache, so
	// only the merged snapshot can show an overlap.
	if err := game.CheckTeams(c.view.Game.Teams()); err != nil {
		c.log.Warn("merged snapshot lists a player in both teams", zap.Error(err))
	}
	c.commit("merge")
}

func (c *Cache) commit(action string) {
	c.view.Version++
	c.log.Debug("state change",
		zap.String("action", action),
		zap.Int("version", c.view.Version),
		zap.String("game_id", c.view.Game.ID()),
		zap.String("player_id", c.view.Identity.PlayerID),
		zap.Bool("connected", c.view.Connected),
	)
	c.broadcast(c.snapshot())
}

func (c *Cache) snapshot() View {
	v := c.view
	v.Watchers = len(c.watchers)
	return v
}

func (c *Cache) shutdown() {
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
	c.cancel()
}

func (c *Cache) broadcast(v View) {
	for id, ch := range c.watchers {
		select {
		case ch <- v:
		default:
			// Slow watcher; drop it rather than stall the loop.
			c.log.Warn("dropping slow watcher", zap.String("watcher", id))
			close(ch)
			delete(c.watchers, id)
		}
	}
}

// Inbox exposes the raw message channel.
func (c *Cache) Inbox() chan<- Msg { return c.inbox }

func (c *Cache) send(m Msg) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

func (c *Cache) Merge(patch game.Snapshot) { c.send(Merge{Patch: patch}) }

func (c *Cache) Replace(g game.Snapshot, id Identity, persist bool) {
	c.send(Replace{Game: g, Identity: id, Persist: persist})
}

func (c *Cache) Clear()                      { c.send(Clear{}) }
func (c *Cache) SetConnected(connected bool) { c.send(SetConnected{Connected: connected}) }
func (c *Cache) SetError(message string)     { c.send(SetError{Message: message}) }

// View returns the latest committed state.
func (c *Cache) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case c.inbox <- GetState{Reply: reply}:
	case <-c.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Watch registers out for a View after every transition. The current view
// is sent immediately; out is closed on Unwatch, shutdown, or when it is
// too slow to keep up.
func (c *Cache) Watch(id string, out chan View) { c.send(Watch{ID: id, Outbox: out}) }
func (c *Cache) Unwatch(id string)              { c.send(Unwatch{ID: id}) }

func (c *Cache) Close() {
	c.send(Shutdown{})
	<-c.done
}
