// Package client is the application-lifetime composition root: it owns the
// cache, dispatcher and restorer for one transport channel and exposes the
// request primitives the rest of the program uses.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DoyleJ11/bunker-client/internal/cache"
	"github.com/DoyleJ11/bunker-client/internal/dispatch"
	"github.com/DoyleJ11/bunker-client/internal/game"
	"github.com/DoyleJ11/bunker-client/internal/protocol"
	"github.com/DoyleJ11/bunker-client/internal/restore"
	"github.com/DoyleJ11/bunker-client/internal/session"
	"github.com/DoyleJ11/bunker-client/internal/transport"
)

const DefaultRequestTimeout = 10 * time.Second

var (
	ErrNotConnected      = transport.ErrNotConnected
	ErrNoActiveGame      = errors.New("no active game")
	ErrInvalidJoin       = errors.New("game id and name are required")
	ErrInvalidCrisis     = errors.New("crisis result must be bunker_win or bunker_lose")
	ErrUnexpectedReply   = errors.New("unexpected reply")
	ErrInvalidPreviewReq = errors.New("action id and participants are required")
)

type Options struct {
	// RequestTimeout bounds create, join and preview round-trips.
	RequestTimeout time.Duration
	Restore        restore.Options
}

// Entry is the identity the server assigned on create or join.
type Entry struct {
	Game     game.Snapshot `json:"game"`
	PlayerID string        `json:"player_id"`
	Role     session.Role  `json:"role"`
}

type Client struct {
	ch       transport.Channel
	sessions *session.Store
	cache    *cache.Cache
	dispatch *dispatch.Dispatcher
	restorer *restore.Restorer
	log      *zap.Logger
	timeout  time.Duration
}

func New(ctx context.Context, ch transport.Channel, sessions *session.Store, log *zap.Logger, opts Options) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	c := cache.New(ctx, sessions, log)
	return &Client{
		ch:       ch,
		sessions: sessions,
		cache:    c,
		dispatch: dispatch.New(ch, c, log),
		restorer: restore.New(ch, c, sessions, log, opts.Restore),
		log:      log.Named("client"),
		timeout:  opts.RequestTimeout,
	}
}

// Start attaches the push handlers. Repeated calls are no-ops.
func (c *Client) Start() { c.dispatch.Attach() }

func (c *Client) Cache() *cache.Cache { return c.cache }

// Restore runs the one-time session restore, or returns its result.
func (c *Client) Restore(ctx context.Context) (restore.Result, error) {
	return c.restorer.Restore(ctx)
}

func (c *Client) RestoreStatus() (restore.Status, restore.Result) { return c.restorer.Status() }

// Initialized reports whether restore has finished and the channel is up.
func (c *Client) Initialized() bool {
	status, _ := c.restorer.Status()
	return status == restore.StatusComplete && c.ch.Connected()
}

// Loading reports whether restore is in flight or the channel is down.
func (c *Client) Loading() bool {
	status, _ := c.restorer.Status()
	return status == restore.StatusRestoring || !c.ch.Connected()
}

func (c *Client) State(ctx context.Context) (cache.View, error) { return c.cache.View(ctx) }

func (c *Client) Phase(ctx context.Context) (game.Derived, error) {
	v, err := c.cache.View(ctx)
	if err != nil {
		return game.Derived{}, err
	}
	return v.Derived(), nil
}

func (c *Client) ActionGroups(ctx context.Context) ([]game.ActionGroup, error) {
	v, err := c.cache.View(ctx)
	if err != nil {
		return nil, err
	}
	return v.Game.GroupedQueue(), nil
}

// CreateGame asks the server for a new game and takes the host seat.
func (c *Client) CreateGame(ctx context.Context) (Entry, error) {
	return c.enter(ctx, protocol.EvtCreateGame, protocol.CreateGame{}, protocol.EvtGameCreated, session.RoleHost)
}

// JoinGame joins an existing game as a player. The game id is trimmed and
// upper-cased.
func (c *Client) JoinGame(ctx context.Context, id, name string) (Entry, error) {
	id = cases.Upper(language.Und).String(strings.TrimSpace(id))
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return Entry{}, ErrInvalidJoin
	}
	return c.enter(ctx, protocol.EvtJoinGame, protocol.JoinGame{ID: id, Name: name}, protocol.EvtJoined, session.RolePlayer)
}

func (c *Client) enter(ctx context.Context, event string, payload any, okEvent string, role session.Role) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var entry Entry
	var replyErr error
	_, err := transport.Request(ctx, c.ch, event, payload, func(r transport.Reply) {
		in, err := protocol.Decode(r.Event, r.Data)
		if err != nil {
			replyErr = err
			return
		}
		switch m := in.(type) {
		case protocol.GameCreated:
			entry = Entry{Game: m.Game, PlayerID: m.PlayerID, Role: role}
		case protocol.Joined:
			entry = Entry{Game: m.Game, PlayerID: m.PlayerID, Role: role}
		case protocol.ServerError:
			replyErr = m
			return
		default:
			replyErr = fmt.Errorf("%w: %s", ErrUnexpectedReply, r.Event)
			return
		}
		c.cache.Replace(entry.Game, cache.Identity{PlayerID: entry.PlayerID, Role: role}, true)
	}, okEvent, protocol.EvtError)
	if err != nil {
		c.log.Warn("request failed", zap.String("event", event), zap.Error(err))
		return Entry{}, fmt.Errorf("%s: %w", event, err)
	}
	if replyErr != nil {
		c.log.Warn("request rejected", zap.String("event", event), zap.Error(replyErr))
		return Entry{}, fmt.Errorf("%s: %w", event, replyErr)
	}

	c.log.Info("entered game",
		zap.String("game_id", entry.Game.ID()),
		zap.String("player_id", entry.PlayerID),
		zap.String("role", string(role)),
	)
	return entry, nil
}

// SendAction submits a game action. It is fire-and-forget: the effect
// arrives as a game_updated push. It is rejected locally when the channel
// is down or there is no game.
func (c *Client) SendAction(ctx context.Context, action string, payload map[string]any) error {
	v, err := c.ready(ctx, action)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	msg := protocol.GameAction{
		GameID:   v.Game.ID(),
		PlayerID: v.Identity.PlayerID,
		Action:   action,
		Payload:  payload,
	}
	if err := c.ch.Emit(ctx, protocol.EvtGameAction, msg); err != nil {
		c.log.Warn("action not sent", zap.String("action", action), zap.Error(err))
		return err
	}
	c.log.Debug("action sent", zap.String("action", action), zap.String("game_id", msg.GameID))
	return nil
}

func (c *Client) ready(ctx context.Context, action string) (cache.View, error) {
	if !c.ch.Connected() {
		c.log.Warn("action rejected: not connected", zap.String("action", action))
		return cache.View{}, ErrNotConnected
	}
	v, err := c.cache.View(ctx)
	if err != nil {
		return cache.View{}, err
	}
	if !v.HasGame() || v.Game.ID() == "" {
		c.log.Warn("action rejected: no active game", zap.String("action", action))
		return cache.View{}, ErrNoActiveGame
	}
	return v, nil
}

// phase2 sends a phase2 action; payload always carries the local player id.
func (c *Client) phase2(ctx context.Context, action string, payload map[string]any) error {
	v, err := c.ready(ctx, action)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payload["player_id"] = v.Identity.PlayerID
	return c.SendAction(ctx, action, payload)
}

func (c *Client) MakeAction(ctx context.Context, actionID string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	return c.phase2(ctx, protocol.ActionMakeAction, map[string]any{
		"action_id": actionID,
		"params":    params,
	})
}

func (c *Client) ProcessAction(ctx context.Context) error {
	return c.phase2(ctx, protocol.ActionProcessAction, nil)
}

func (c *Client) ResolveCrisis(ctx context.Context, result string) error {
	if result != protocol.CrisisBunkerWin && result != protocol.CrisisBunkerLose {
		return ErrInvalidCrisis
	}
	return c.phase2(ctx, protocol.ActionResolveCrisis, map[string]any{"result": result})
}

func (c *Client) FinishTeamTurn(ctx context.Context) error {
	return c.phase2(ctx, protocol.ActionFinishTeamTurn, nil)
}

// RequestActionPreview asks for the outcome of an action without committing
// it. The preview is returned as is and never touches the cache.
func (c *Client) RequestActionPreview(ctx context.Context, actionID string, participants []string) (protocol.ActionPreview, error) {
	if actionID == "" || len(participants) == 0 {
		return protocol.ActionPreview{}, ErrInvalidPreviewReq
	}
	v, err := c.ready(ctx, protocol.EvtActionPreview)
	if err != nil {
		return protocol.ActionPreview{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req := protocol.ActionPreviewRequest{GameID: v.Game.ID(), Participants: participants, ActionID: actionID}
	r, err := transport.Request(ctx, c.ch, protocol.EvtActionPreview, req, nil, protocol.EvtPreview, protocol.EvtError)
	if err != nil {
		return protocol.ActionPreview{}, fmt.Errorf("%s: %w", protocol.EvtActionPreview, err)
	}
	in, err := protocol.Decode(r.Event, r.Data)
	if err != nil {
		return protocol.ActionPreview{}, err
	}
	switch m := in.(type) {
	case protocol.ActionPreview:
		return m, nil
	case protocol.ServerError:
		return protocol.ActionPreview{}, fmt.Errorf("%s: %w", protocol.EvtActionPreview, m)
	}
	return protocol.ActionPreview{}, fmt.Errorf("%w: %s", ErrUnexpectedReply, r.Event)
}

// Leave drops the local game and the saved session.
func (c *Client) Leave() {
	c.log.Info("leaving game")
	c.cache.Clear()
}

// Close stops the cache and releases the session storage, and the channel
// too when it can be closed.
func (c *Client) Close() error {
	c.dispatch.Detach()
	c.cache.Close()
	var err error
	if c.sessions != nil {
		err = multierr.Append(err, c.sessions.Close())
	}
	if closer, ok := c.ch.(io.Closer); ok {
		err = multierr.Append(err, closer.Close())
	}
	return err
}
