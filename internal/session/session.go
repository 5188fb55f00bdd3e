// Package session persists the identity record that lets a client rejoin its
// game after a reload or disconnect.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Key is the storage key of the single session record.
const Key = "bunker_session"

// DefaultTTL is how long a saved record stays usable.
const DefaultTTL = 24 * time.Hour

var ErrNotFound = errors.New("session not found")

type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

func (r Role) Valid() bool { return r == RoleHost || r == RolePlayer }

// Record is replaced or cleared as a whole, never edited.
type Record struct {
	Role     Role   `json:"role"`
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	SavedAt  int64  `json:"savedAt"` // epoch milliseconds
}

func (r Record) SavedTime() time.Time { return time.UnixMilli(r.SavedAt) }

// Storage is a durable byte store addressed by key. Get reports
// ErrNotFound for a missing key.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Options struct {
	TTL time.Duration
	Now func() time.Time
}

// Store is the only reader and writer of the session record. None of its
// methods return errors: failures are logged and a failed load reads as
// "no session".
type Store struct {
	storage Storage
	log     *zap.Logger
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(storage Storage, log *zap.Logger, opts Options) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{storage: storage, log: log.Named("session"), ttl: opts.TTL, now: opts.Now}
}

// Save stamps rec with the current time and writes it.
func (s *Store) Save(ctx context.Context, rec Record) {
	rec.SavedAt = s.now().UnixMilli()
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Error("failed to encode session", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, Key, data); err != nil {
		s.log.Error("failed to save session", zap.Error(err))
		return
	}
	s.log.Debug("session saved",
		zap.String("role", string(rec.Role)),
		zap.String("game_id", rec.GameID),
		zap.String("player_id", rec.PlayerID),
	)
}

// Load returns the saved record unless it is missing, unreadable or older
// than the TTL. Expired and unreadable records are deleted.
func (s *Store) Load(ctx context.Context) (Record, bool) {
	data, err := s.storage.Get(ctx, Key)
	if errors.Is(err, ErrNotFound) {
		return Record{}, false
	}
	if err != nil {
		s.log.Error("failed to read session", zap.Error(err))
		s.Clear(ctx)
		return Record{}, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Error("failed to decode session", zap.Error(err))
		s.Clear(ctx)
		return Record{}, false
	}

	age := s.now().Sub(rec.SavedTime())
	if age > s.ttl {
		s.log.Info("session expired", zap.Duration("age", age), zap.String("game_id", rec.GameID))
		s.Clear(ctx)
		return Record{}, false
	}
	return rec, true
}

// Clear removes the record. Clearing an absent record is a no-op.
func (s *Store) Clear(ctx context.Context) {
	if err := s.storage.Delete(ctx, Key); err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Error("failed to clear session", zap.Error(err))
	}
}

func (s *Store) Close() error { return s.storage.Close() }
