package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bunker-client/internal/game"
	"github.com/DoyleJ11/bunker-client/internal/protocol"
	"github.com/DoyleJ11/bunker-client/internal/restore"
	"github.com/DoyleJ11/bunker-client/internal/session"
	"github.com/DoyleJ11/bunker-client/internal/transport/transporttest"
)

// fakeServer answers requests the way the game server does.
func fakeServer(c *transporttest.Channel, event string, payload json.RawMessage) {
	switch event {
	case protocol.EvtCreateGame:
		c.Deliver(protocol.EvtGameCreated, `{"game":{"id":"ABCD","host_id":"h1","phase":"lobby"}}`)
	case protocol.EvtJoinGame:
		var req protocol.JoinGame
		_ = json.Unmarshal(payload, &req)
		if req.ID != "ABCD" {
			c.Deliver(protocol.EvtError, `{"message":"Game not found"}`)
			return
		}
		c.Deliver(protocol.EvtJoined, `{"game":{"id":"ABCD","phase":"lobby"},"player_id":"p1"}`)
	case protocol.EvtActionPreview:
		c.Deliver(protocol.EvtPreview, `{"preview":{"bunker_hp":{"before":5,"after":4}}}`)
	}
}

func newClient(t *testing.T, connected bool) (*Client, *transporttest.Channel, *session.Store) {
	t.Helper()
	ch := transporttest.New(connected)
	ch.Responder = fakeServer
	store := session.NewStore(session.NewMemoryStorage(), zap.NewNop(), session.Options{})
	c := New(context.Background(), ch, store, zap.NewNop(), Options{RequestTimeout: time.Second})
	c.Start()
	t.Cleanup(func() { _ = c.Close() })
	return c, ch, store
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCreateGame_HostFallsBackToHostID(t *testing.T) {
	c, _, store := newClient(t, true)

	entry, err := c.CreateGame(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, "h1", entry.PlayerID)
	assert.Equal(t, session.RoleHost, entry.Role)

	v, err := c.State(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, "ABCD", v.Game.ID())
	assert.Equal(t, "h1", v.Identity.PlayerID)

	rec, ok := store.Load(ctx(t))
	require.True(t, ok)
	assert.Equal(t, session.Record{Role: session.RoleHost, GameID: "ABCD", PlayerID: "h1", SavedAt: rec.SavedAt}, rec)
}

func TestJoinGame_NormalisesID(t *testing.T) {
	c, ch, store := newClient(t, true)

	entry, err := c.JoinGame(ctx(t), "  abcd ", " Ann ")
	require.NoError(t, err)
	assert.Equal(t, "p1", entry.PlayerID)
	assert.Equal(t, session.RolePlayer, entry.Role)

	emitted := ch.Emitted()
	require.Len(t, emitted, 1)
	assert.JSONEq(t, `{"id":"ABCD","name":"Ann"}`, string(emitted[0].Payload))

	// Reading the cache orders the check after the session save.
	_, err = c.State(ctx(t))
	require.NoError(t, err)
	rec, ok := store.Load(ctx(t))
	require.True(t, ok)
	assert.Equal(t, session.RolePlayer, rec.Role)
}

func TestJoinGame_Validation(t *testing.T) {
	c, ch, _ := newClient(t, true)

	tests := []struct{ id, name string }{
		{"", "Ann"},
		{"ABCD", "   "},
		{"  ", ""},
	}
	for _, tt := range tests {
		_, err := c.JoinGame(ctx(t), tt.id, tt.name)
		assert.ErrorIs(t, err, ErrInvalidJoin)
	}
	assert.Empty(t, ch.Emitted())
}

func TestJoinGame_ServerError(t *testing.T) {
	c, _, store := newClient(t, true)

	_, err := c.JoinGame(ctx(t), "ZZZZ", "Ann")

	var serr protocol.ServerError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "Game not found", serr.Message)

	v, err := c.State(ctx(t))
	require.NoError(t, err)
	assert.False(t, v.HasGame())
	assert.Equal(t, "Game not found", v.Error)
	_, ok := store.Load(ctx(t))
	assert.False(t, ok)
}

func TestCreateGame_NotConnected(t *testing.T) {
	c, _, _ := newClient(t, false)
	_, err := c.CreateGame(ctx(t))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendAction_RejectedLocally(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		c, ch, _ := newClient(t, false)
		assert.ErrorIs(t, c.SendAction(ctx(t), "start_game", nil), ErrNotConnected)
		assert.Empty(t, ch.Emitted())
	})
	t.Run("no game", func(t *testing.T) {
		c, ch, _ := newClient(t, true)
		assert.ErrorIs(t, c.SendAction(ctx(t), "start_game", nil), ErrNoActiveGame)
		assert.Empty(t, ch.Emitted())
	})
}

func TestSendAction(t *testing.T) {
	c, ch, _ := newClient(t, true)
	_, err := c.JoinGame(ctx(t), "ABCD", "Ann")
	require.NoError(t, err)

	require.NoError(t, c.SendAction(ctx(t), "cast_vote", map[string]any{"voter_id": "p1", "target_id": "p2"}))

	emitted := ch.Emitted()
	last := emitted[len(emitted)-1]
	assert.Equal(t, protocol.EvtGameAction, last.Event)
	assert.JSONEq(t,
		`{"gameId":"ABCD","playerId":"p1","action":"cast_vote","payload":{"voter_id":"p1","target_id":"p2"}}`,
		string(last.Payload))
}

func TestSendAction_EmptyPayloadIsObject(t *testing.T) {
	c, ch, _ := newClient(t, true)
	_, err := c.JoinGame(ctx(t), "ABCD", "Ann")
	require.NoError(t, err)

	require.NoError(t, c.SendAction(ctx(t), "start_game", nil))
	require.NoError(t, c.SendAction(ctx(t), "next_round", map[string]any{}))

	emitted := ch.Emitted()[1:]
	require.Len(t, emitted, 2)
	assert.JSONEq(t, `{"gameId":"ABCD","playerId":"p1","action":"start_game","payload":{}}`, string(emitted[0].Payload))
	assert.JSONEq(t, `{"gameId":"ABCD","playerId":"p1","action":"next_round","payload":{}}`, string(emitted[1].Payload))
}

func TestPhase2Actions_CarryPlayerID(t *testing.T) {
	c, ch, _ := newClient(t, true)
	_, err := c.JoinGame(ctx(t), "ABCD", "Ann")
	require.NoError(t, err)

	require.NoError(t, c.MakeAction(ctx(t), "repair", nil))
	require.NoError(t, c.ProcessAction(ctx(t)))
	require.NoError(t, c.ResolveCrisis(ctx(t), protocol.CrisisBunkerWin))
	require.NoError(t, c.FinishTeamTurn(ctx(t)))
	assert.ErrorIs(t, c.ResolveCrisis(ctx(t), "draw"), ErrInvalidCrisis)

	want := []string{
		`{"gameId":"ABCD","playerId":"p1","action":"make_action","payload":{"action_id":"repair","params":{},"player_id":"p1"}}`,
		`{"gameId":"ABCD","playerId":"p1","action":"process_action","payload":{"player_id":"p1"}}`,
		`{"gameId":"ABCD","playerId":"p1","action":"resolve_crisis","payload":{"result":"bunker_win","player_id":"p1"}}`,
		`{"gameId":"ABCD","playerId":"p1","action":"finish_team_turn","payload":{"player_id":"p1"}}`,
	}
	emitted := ch.Emitted()[1:]
	require.Len(t, emitted, len(want))
	for i, w := range want {
		assert.JSONEq(t, w, string(emitted[i].Payload))
	}
}

func TestRequestActionPreview_NotMerged(t *testing.T) {
	c, ch, _ := newClient(t, true)
	_, err := c.JoinGame(ctx(t), "ABCD", "Ann")
	require.NoError(t, err)
	before, err := c.State(ctx(t))
	require.NoError(t, err)

	p, err := c.RequestActionPreview(ctx(t), "repair", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"bunker_hp":{"before":5,"after":4}}`, string(p.Preview))

	emitted := ch.Emitted()
	assert.JSONEq(t, `{"gameId":"ABCD","participants":["p1","p2"],"actionId":"repair"}`, string(emitted[len(emitted)-1].Payload))

	after, err := c.State(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)

	_, err = c.RequestActionPreview(ctx(t), "", []string{"p1"})
	assert.ErrorIs(t, err, ErrInvalidPreviewReq)
}

func TestPushesReachTheCache(t *testing.T) {
	c, ch, _ := newClient(t, true)
	_, err := c.JoinGame(ctx(t), "ABCD", "Ann")
	require.NoError(t, err)

	ch.Deliver(protocol.EvtGameUpdated, `{"game":{"phase":"phase2","phase2":{
		"team_in_bunker":["p1"],"team_outside":["p2"],"current_player":"p1",
		"action_queue":[{"action_type":"attack","participants":["p1"]},{"action_type":"heal","participants":["p2"]},{"action_type":"attack","participants":["p3"]}]
	}}}`)

	d, err := c.Phase(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, game.TagPlayerAction, d.Tag)
	assert.Equal(t, game.TeamBunker, d.MyTeam)
	assert.True(t, d.CanAct)

	groups, err := c.ActionGroups(ctx(t))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "attack", groups[0].Kind)
	assert.Equal(t, []string{"p1", "p3"}, groups[0].Participants)
	assert.Equal(t, []string{"p2"}, groups[1].Participants)
}

func TestRestoreAndFlags(t *testing.T) {
	c, ch, _ := newClient(t, false)
	assert.True(t, c.Loading())
	assert.False(t, c.Initialized())

	res, err := c.Restore(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, restore.ReasonNoSession, res.Reason)
	assert.True(t, c.Loading(), "still offline")

	ch.SetConnected(true)
	assert.False(t, c.Loading())
	assert.True(t, c.Initialized())
}

func TestLeave(t *testing.T) {
	c, _, store := newClient(t, true)
	_, err := c.JoinGame(ctx(t), "ABCD", "Ann")
	require.NoError(t, err)

	c.Leave()

	v, err := c.State(ctx(t))
	require.NoError(t, err)
	assert.False(t, v.HasGame())
	_, ok := store.Load(ctx(t))
	assert.False(t, ok)
}
