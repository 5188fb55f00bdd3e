package game

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/tidwall/gjson"
)

// Snapshot is the last-known server game state kept as raw top-level keys.
// Values are never edited in place; a merge builds a new map.
type Snapshot map[string]json.RawMessage

func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: null", ErrMalformedSnapshot)
	}
	return s, nil
}

// Merge returns the shallow key-wise union of s and patch. A key present in
// patch replaces the whole value in s, nested objects included: a phase2
// patch without bunker_hp drops bunker_hp. The server always sends complete
// sub-objects, so this must not become a deep merge.
func (s Snapshot) Merge(patch Snapshot) Snapshot {
	out := make(Snapshot, len(s)+len(patch))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = slices.Clone(v)
	}
	return out
}

func (s Snapshot) Has(key string) bool {
	v, ok := s[key]
	return ok && !isNull(v)
}

func (s Snapshot) ID() string     { return s.str(KeyID) }
func (s Snapshot) HostID() string { return s.str(KeyHostID) }
func (s Snapshot) Phase() Phase   { return Phase(s.str(KeyPhase)) }
func (s Snapshot) IsPhase2() bool { return s.Has(KeyPhase2) }

func (s Snapshot) Winner() Team { return s.Flags().Winner }

func (s Snapshot) Eliminated() []string { return s.strings(KeyEliminated) }

func (s Snapshot) IsEliminated(playerID string) bool {
	return slices.Contains(s.Eliminated(), playerID)
}

// AvailableActions lists the top-level action ids the server currently allows.
func (s Snapshot) AvailableActions() []string { return s.strings(KeyAvailableActions) }

func (s Snapshot) Players() []Player {
	var players []Player
	if raw, ok := s[KeyPlayers]; ok && !isNull(raw) {
		_ = json.Unmarshal(raw, &players)
	}
	return players
}

func (s Snapshot) OnlinePlayers() []Player {
	var online []Player
	for _, p := range s.Players() {
		if p.Online {
			online = append(online, p)
		}
	}
	sort.Slice(online, func(i, j int) bool { return online[i].ID < online[j].ID })
	return online
}

// Phase2 decodes the phase2 sub-aggregate. It returns nil, nil when the key
// is absent or null.
func (s Snapshot) Phase2() (*Phase2State, error) {
	raw, ok := s[KeyPhase2]
	if !ok || isNull(raw) {
		return nil, nil
	}
	var p2 Phase2State
	if err := json.Unmarshal(raw, &p2); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPhase2, err)
	}
	return &p2, nil
}

type Teams struct {
	Bunker  []string `json:"bunker"`
	Outside []string `json:"outside"`
}

// Flags are the phase2 fields that pick the phase tag.
type Flags struct {
	Winner            Team
	Crisis            bool
	CanProcessActions bool
	TeamTurnComplete  bool
	CurrentPlayer     string
}

// Flags reads each field on its own by truthiness: null, false, 0 and ""
// are unset, anything else is set. A wrong type in one field leaves the
// others intact.
func (s Snapshot) Flags() Flags {
	p2 := s.phase2()
	if !p2.IsObject() {
		return Flags{}
	}
	var f Flags
	if w := p2.Get("winner"); truthy(w) {
		f.Winner = Team(w.String())
	}
	f.Crisis = truthy(p2.Get("current_crisis"))
	f.CanProcessActions = truthy(p2.Get("can_process_actions"))
	f.TeamTurnComplete = truthy(p2.Get("team_turn_complete"))
	if cp := p2.Get("current_player"); cp.Type == gjson.String {
		f.CurrentPlayer = cp.Str
	}
	return f
}

// Teams reads rosters from phase2 first and falls back to the top-level
// team_in_bunker / team_outside keys when phase2 does not carry them.
func (s Snapshot) Teams() Teams {
	var t Teams
	if p2 := s.phase2(); p2.IsObject() {
		t.Bunker = roster(p2.Get("team_in_bunker"))
		t.Outside = roster(p2.Get("team_outside"))
	}
	if t.Bunker == nil {
		t.Bunker = s.strings(KeyTeamInBunker)
	}
	if t.Outside == nil {
		t.Outside = s.strings(KeyTeamOutside)
	}
	return t
}

// Of returns the team whose roster contains playerID.
func (t Teams) Of(playerID string) Team {
	if playerID == "" {
		return TeamNone
	}
	if slices.Contains(t.Bunker, playerID) {
		return TeamBunker
	}
	if slices.Contains(t.Outside, playerID) {
		return TeamOutside
	}
	return TeamNone
}

// CheckTeams reports players listed in both rosters.
func CheckTeams(t Teams) error {
	var dup []string
	for _, id := range t.Bunker {
		if slices.Contains(t.Outside, id) {
			dup = append(dup, id)
		}
	}
	if len(dup) > 0 {
		return fmt.Errorf("%w: %v", ErrTeamOverlap, dup)
	}
	return nil
}

func (s Snapshot) str(key string) string {
	var v string
	if raw, ok := s[key]; ok {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}

func (s Snapshot) strings(key string) []string {
	var v []string
	if raw, ok := s[key]; ok && !isNull(raw) {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (s Snapshot) phase2() gjson.Result {
	raw, ok := s[KeyPhase2]
	if !ok {
		return gjson.Result{}
	}
	return gjson.ParseBytes(raw)
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True, gjson.JSON:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return false
	}
}

// roster keeps the string entries of an array. A missing or non-array value
// is nil so the caller can fall back; an empty array is not.
func roster(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	ids := []string{}
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			ids = append(ids, v.Str)
		}
		return true
	})
	return ids
}
