package transport_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/bunker-client/internal/transport"
	"github.com/DoyleJ11/bunker-client/internal/transport/transporttest"
)

func TestRegistry_OrderAndOff(t *testing.T) {
	var r transport.Registry
	var got []string

	offA := r.On("game_updated", func(json.RawMessage) { got = append(got, "a") })
	r.On("game_updated", func(json.RawMessage) { got = append(got, "b") })

	r.Dispatch("game_updated", nil)
	offA()
	offA()
	r.Dispatch("game_updated", nil)

	assert.Equal(t, []string{"a", "b", "b"}, got)
	assert.Equal(t, 1, r.Count("game_updated"))
}

func TestRegistry_OffDuringDispatch(t *testing.T) {
	var r transport.Registry
	calls := 0
	var offB func()
	r.On("error", func(json.RawMessage) { offB() })
	offB = r.On("error", func(json.RawMessage) { calls++ })

	r.Dispatch("error", nil)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, r.Count("error"))
}

func TestWaiter_FirstReplyWins(t *testing.T) {
	ch := transporttest.New(true)
	var applied []string
	w := transport.Expect(ch, func(r transport.Reply) { applied = append(applied, r.Event) }, "rejoined", "error")

	ch.Deliver("rejoined", `{"player_id":"p1"}`)
	ch.Deliver("rejoined", `{"player_id":"p1"}`)
	ch.Deliver("error", `{"message":"late"}`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rejoined", r.Event)
	assert.Equal(t, []string{"rejoined"}, applied)
	assert.Equal(t, 0, ch.Count("rejoined"))
	assert.Equal(t, 0, ch.Count("error"))
}

func TestWaiter_TimeoutRemovesHandlers(t *testing.T) {
	ch := transporttest.New(true)
	called := false
	w := transport.Expect(ch, func(transport.Reply) { called = true }, "joined")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := w.Wait(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	ch.Deliver("joined", `{}`)
	assert.False(t, called)
	assert.Equal(t, 0, ch.Count("joined"))
}

func TestWaiter_ReplyWhileRegistering(t *testing.T) {
	events := make([]string, 64)
	for i := range events {
		events[i] = fmt.Sprintf("reply_%d", i)
	}

	for round := 0; round < 20; round++ {
		ch := transporttest.New(true)
		stop := make(chan struct{})
		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, ev := range events {
					ch.Deliver(ev, `{}`)
				}
			}
		}()

		var applied int
		w := transport.Expect(ch, func(transport.Reply) { applied++ }, events...)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := w.Wait(ctx)
		cancel()
		close(stop)
		<-stopped

		require.NoError(t, err, "round=%d", round)
		assert.Equal(t, 1, applied, "round=%d", round)
		for _, ev := range events {
			require.Equal(t, 0, ch.Count(ev), "round=%d event=%s", round, ev)
		}
	}
}

func TestRequest_EmitFailureCancels(t *testing.T) {
	ch := transporttest.New(false)

	_, err := transport.Request(context.Background(), ch, "create_game", struct{}{}, nil, "game_created", "error")

	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.Equal(t, 0, ch.Count("game_created"))
}

func TestRequest_RoundTrip(t *testing.T) {
	ch := transporttest.New(true)
	ch.Responder = func(c *transporttest.Channel, event string, _ json.RawMessage) {
		if event == "create_game" {
			c.Deliver("game_created", `{"game":{"id":"G1"},"player_id":"h1"}`)
		}
	}

	r, err := transport.Request(context.Background(), ch, "create_game", struct{}{}, nil, "game_created", "error")

	require.NoError(t, err)
	assert.Equal(t, "game_created", r.Event)
	assert.Equal(t, []string{"create_game"}, ch.EmittedEvents())
}
