package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/bunker-client/internal/protocol"
)

// ClientHeader carries the per-process client id on the upgrade request.
const ClientHeader = "X-Bunker-Client"

type Options struct {
	URL          string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
}

func (o *Options) defaults() {
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 500 * time.Millisecond
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 10 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
}

// WebSocket is the process-wide Channel to the game server. Run keeps it
// connected; "connect" and "disconnect" are dispatched to handlers like any
// server event.
type WebSocket struct {
	Registry

	opts      Options
	log       *zap.Logger
	clientID  string
	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
}

func NewWebSocket(opts Options, log *zap.Logger) *WebSocket {
	if log == nil {
		log = zap.NewNop()
	}
	opts.defaults()
	id := uuid.NewString()
	return &WebSocket{
		opts:     opts,
		log:      log.Named("transport").With(zap.String("client_id", id)),
		clientID: id,
	}
}

func (w *WebSocket) ClientID() string { return w.clientID }

func (w *WebSocket) Connected() bool { return w.connected.Load() }

func (w *WebSocket) Emit(ctx context.Context, event string, payload any) error {
	if IsLifecycle(event) {
		return fmt.Errorf("emit %s: reserved event", event)
	}
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil || !w.connected.Load() {
		return ErrNotConnected
	}

	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, w.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	w.log.Debug("emitted", zap.String("event", event))
	return nil
}

// Run dials the server and redials with exponential backoff until ctx is
// done. It returns ctx.Err().
func (w *WebSocket) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.opts.ReconnectMin
	b.MaxInterval = w.opts.ReconnectMax

	for {
		established, err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			b.Reset()
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			delay = w.opts.ReconnectMax
		}
		w.log.Warn("connection lost, retrying", zap.Error(err), zap.Duration("in", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// session runs one connection from dial to read failure. established
// reports whether the dial succeeded.
func (w *WebSocket) session(ctx context.Context) (established bool, err error) {
	dctx, cancel := context.WithTimeout(ctx, w.opts.DialTimeout)
	conn, _, err := websocket.Dial(dctx, w.opts.URL, &websocket.DialOptions{
		HTTPHeader: http.Header{ClientHeader: []string{w.clientID}},
	})
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", w.opts.URL, err)
	}
	conn.SetReadLimit(w.opts.ReadLimit)

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.connected.Store(true)
	w.log.Info("connected", zap.String("url", w.opts.URL))
	w.Dispatch(protocol.EvtConnect, nil)

	defer func() {
		w.connected.Store(false)
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		w.log.Info("disconnected")
		w.Dispatch(protocol.EvtDisconnect, nil)
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return true, errors.New("closed by server")
			}
			return true, err
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			w.log.Warn("dropping unreadable frame", zap.Error(err))
			continue
		}
		if env.Type == "" || IsLifecycle(env.Type) {
			w.log.Warn("dropping frame with invalid type", zap.String("type", env.Type))
			continue
		}
		w.Dispatch(env.Type, env.Data)
	}
}
