package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/bunker-client/internal/cache"
	"github.com/DoyleJ11/bunker-client/internal/client"
	"github.com/DoyleJ11/bunker-client/internal/game"
	"github.com/DoyleJ11/bunker-client/internal/protocol"
	"github.com/DoyleJ11/bunker-client/internal/restore"
	"github.com/DoyleJ11/bunker-client/internal/session"
)

// Client is the part of client.Client the API drives.
type Client interface {
	State(ctx context.Context) (cache.View, error)
	Phase(ctx context.Context) (game.Derived, error)
	ActionGroups(ctx context.Context) ([]game.ActionGroup, error)
	RestoreStatus() (restore.Status, restore.Result)
	CreateGame(ctx context.Context) (client.Entry, error)
	JoinGame(ctx context.Context, id, name string) (client.Entry, error)
	SendAction(ctx context.Context, action string, payload map[string]any) error
	RequestActionPreview(ctx context.Context, actionID string, participants []string) (protocol.ActionPreview, error)
	Leave()
}

type stateResponse struct {
	Version   int           `json:"version"`
	Game      game.Snapshot `json:"game"`
	PlayerID  string        `json:"player_id,omitempty"`
	Role      session.Role  `json:"role,omitempty"`
	Connected bool          `json:"connected"`
	Error     string        `json:"error,omitempty"`
}

type restoreResponse struct {
	Status restore.Status  `json:"status"`
	Result *restore.Result `json:"result,omitempty"`
}

type joinRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type actionRequest struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

type previewRequest struct {
	ActionID     string   `json:"action_id"`
	Participants []string `json:"participants"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func State(c Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := c.State(r.Context())
		if err != nil {
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, stateResponse{
			Version:   v.Version,
			Game:      v.Game,
			PlayerID:  v.Identity.PlayerID,
			Role:      v.Identity.Role,
			Connected: v.Connected,
			Error:     v.Error,
		})
	}
}

func Phase(c Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := c.Phase(r.Context())
		if err != nil {
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func Queue(c Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := c.ActionGroups(r.Context())
		if err != nil {
			http.Error(w, "state unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, groups)
	}
}

func Restore(c Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, res := c.RestoreStatus()
		out := restoreResponse{Status: status}
		if status == restore.StatusComplete {
			out.Result = &res
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func CreateGame(c Client, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := c.CreateGame(r.Context())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func JoinGame(c Client, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		entry, err := c.JoinGame(r.Context(), req.ID, req.Name)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func SendAction(c Client, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
			http.Error(w, "action is required", http.StatusBadRequest)
			return
		}
		if err := c.SendAction(r.Context(), req.Action, req.Payload); err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func Preview(c Client, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		p, err := c.RequestActionPreview(r.Context(), req.ActionID, req.Participants)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func Leave(c Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.Leave()
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var serr protocol.ServerError
	switch {
	case errors.Is(err, client.ErrNotConnected), errors.Is(err, client.ErrNoActiveGame):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, client.ErrInvalidJoin),
		errors.Is(err, client.ErrInvalidCrisis),
		errors.Is(err, client.ErrInvalidPreviewReq):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &serr):
		http.Error(w, serr.Message, http.StatusUnprocessableEntity)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "server did not answer", http.StatusGatewayTimeout)
	default:
		log.Error("request failed", zap.Error(err))
		http.Error(w, "request failed", http.StatusBadGateway)
	}
}
