package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Valid(t *testing.T) {
	cases := []struct {
		name  string
		event string
		data  string
		check func(t *testing.T, in Inbound)
	}{
		{
			name:  "game_updated",
			event: EvtGameUpdated,
			data:  `{"game":{"id":"G1","phase":"voting"}}`,
			check: func(t *testing.T, in Inbound) {
				m := in.(GameUpdated)
				assert.Equal(t, "G1", m.Game.ID())
			},
		},
		{
			name:  "joined",
			event: EvtJoined,
			data:  `{"game":{"id":"G1"},"player_id":"p7"}`,
			check: func(t *testing.T, in Inbound) {
				assert.Equal(t, "p7", in.(Joined).PlayerID)
			},
		},
		{
			name:  "rejoined",
			event: EvtRejoined,
			data:  `{"game":{"id":"G1"},"player_id":"p7"}`,
			check: func(t *testing.T, in Inbound) {
				assert.Equal(t, EvtRejoined, in.Event())
			},
		},
		{
			name:  "game_created falls back to host_id",
			event: EvtGameCreated,
			data:  `{"game":{"id":"G1","host_id":"h1"}}`,
			check: func(t *testing.T, in Inbound) {
				assert.Equal(t, "h1", in.(GameCreated).PlayerID)
			},
		},
		{
			name:  "action_preview",
			event: EvtPreview,
			data:  `{"preview":{"success_chance":65}}`,
			check: func(t *testing.T, in Inbound) {
				assert.JSONEq(t, `{"success_chance":65}`, string(in.(ActionPreview).Preview))
			},
		},
		{
			name:  "game_error",
			event: EvtGameError,
			data:  `{"message":"not your turn"}`,
			check: func(t *testing.T, in Inbound) {
				e := in.(ServerError)
				assert.Equal(t, EvtGameError, e.Event())
				assert.EqualError(t, e, "not your turn")
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := Decode(tc.event, []byte(tc.data))
			require.NoError(t, err)
			tc.check(t, in)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		event string
		data  string
		want  error
	}{
		{name: "not json", event: EvtGameUpdated, data: `{`, want: ErrInvalidPayload},
		{name: "missing game", event: EvtGameUpdated, data: `{"phase":"lobby"}`, want: ErrInvalidPayload},
		{name: "game not an object", event: EvtGameUpdated, data: `{"game":[1]}`, want: ErrInvalidPayload},
		{name: "joined without player", event: EvtJoined, data: `{"game":{}}`, want: ErrInvalidPayload},
		{name: "rejoined numeric player", event: EvtRejoined, data: `{"game":{},"player_id":3}`, want: ErrInvalidPayload},
		{name: "created without any id", event: EvtGameCreated, data: `{"game":{}}`, want: ErrInvalidPayload},
		{name: "error without message", event: EvtError, data: `{}`, want: ErrInvalidPayload},
		{name: "preview missing", event: EvtPreview, data: `{}`, want: ErrInvalidPayload},
		{name: "unknown", event: "player_kicked", data: `{}`, want: ErrUnknownEvent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := Decode(tc.event, []byte(tc.data))
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, in)
		})
	}
}

func TestEncode(t *testing.T) {
	frame, err := Encode(EvtRejoinGame, RejoinGame{ID: "G1", PlayerID: "p1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"rejoin_game","data":{"id":"G1","player_id":"p1"}}`, string(frame))

	frame, err = Encode(EvtCreateGame, CreateGame{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"create_game","data":{}}`, string(frame))

	var env Envelope
	frame, err = Encode(EvtGameAction, GameAction{GameID: "G1", PlayerID: "p1", Action: "start_game", Payload: map[string]any{}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, EvtGameAction, env.Type)
	assert.JSONEq(t, `{"gameId":"G1","playerId":"p1","action":"start_game","payload":{}}`, string(env.Data))
}
