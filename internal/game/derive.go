package game

// Tag is the client-side phase2 state. The server never sends it; it is
// resolved from flags in the snapshot.
type Tag string

const (
	TagPlayerAction      Tag = "player_action"
	TagWaitingForTeam    Tag = "waiting_for_team"
	TagProcessingActions Tag = "processing_actions"
	TagCrisisResolution  Tag = "crisis_resolution"
	TagTurnComplete      Tag = "turn_complete"
	TagGameFinished      Tag = "game_finished"
)

type PhaseRule struct {
	Tag   Tag
	Match func(f Flags, playerID string) bool
}

// PhaseOrder is evaluated top to bottom and the first match wins. The flags
// are not mutually exclusive, so reordering changes behaviour.
var PhaseOrder = []PhaseRule{
	{Tag: TagGameFinished, Match: func(f Flags, _ string) bool { return f.Winner != TeamNone }},
	{Tag: TagCrisisResolution, Match: func(f Flags, _ string) bool { return f.Crisis }},
	{Tag: TagProcessingActions, Match: func(f Flags, _ string) bool { return f.CanProcessActions }},
	{Tag: TagTurnComplete, Match: func(f Flags, _ string) bool { return f.TeamTurnComplete }},
	{Tag: TagPlayerAction, Match: isTurnOf},
	{Tag: TagWaitingForTeam, Match: func(Flags, string) bool { return true }},
}

type Derived struct {
	Tag      Tag  `json:"tag"`
	InPhase2 bool `json:"in_phase2"`
	MyTeam   Team `json:"my_team"`
	IsMyTurn bool `json:"is_my_turn"`
	CanAct   bool `json:"can_act"`
}

// Derive projects the snapshot onto a single phase tag plus turn ownership
// for playerID. It has no side effects and is meant to be called on every
// read. The flags are read field by field, so a mistyped resource or round
// never changes the tag. Without a phase2 object every flag is unset and
// MyTeam stays empty.
func Derive(s Snapshot, playerID string) Derived {
	return DerivePhase2(s.Flags(), s.Teams(), playerID, s.phase2().IsObject())
}

func DerivePhase2(f Flags, teams Teams, playerID string, inPhase2 bool) Derived {
	d := Derived{
		Tag:      resolveTag(f, playerID),
		InPhase2: inPhase2,
		IsMyTurn: isTurnOf(f, playerID),
	}
	if inPhase2 {
		d.MyTeam = teams.Of(playerID)
	}
	d.CanAct = d.IsMyTurn && d.Tag == TagPlayerAction
	return d
}

func resolveTag(f Flags, playerID string) Tag {
	for _, rule := range PhaseOrder {
		if rule.Match(f, playerID) {
			return rule.Tag
		}
	}
	return TagWaitingForTeam
}

func isTurnOf(f Flags, playerID string) bool {
	return playerID != "" && f.CurrentPlayer == playerID
}
