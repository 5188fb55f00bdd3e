package game

// Defaults used when the server omits a resource value.
const (
	DefaultBunkerHP = 7
	DefaultMorale   = 10
	DefaultSupplies = 8
)

type Resources struct {
	BunkerHP          int `json:"bunker_hp"`
	Morale            int `json:"morale"`
	Supplies          int `json:"supplies"`
	MoraleCountdown   int `json:"morale_countdown"`
	SuppliesCountdown int `json:"supplies_countdown"`
	Round             int `json:"round"`

	BunkerCritical   bool `json:"bunker_critical"`
	MoraleCritical   bool `json:"morale_critical"`
	SuppliesCritical bool `json:"supplies_critical"`
}

func ResourcesOf(p2 Phase2State) Resources {
	r := Resources{
		BunkerHP:          valueOr(p2.BunkerHP, DefaultBunkerHP),
		Morale:            valueOr(p2.Morale, DefaultMorale),
		Supplies:          valueOr(p2.Supplies, DefaultSupplies),
		MoraleCountdown:   valueOr(p2.MoraleCountdown, 0),
		SuppliesCountdown: valueOr(p2.SuppliesCountdown, 0),
		Round:             p2.Round,
	}
	r.BunkerCritical = r.BunkerHP <= 2
	r.MoraleCritical = r.Morale <= 3 || r.MoraleCountdown > 0
	r.SuppliesCritical = r.Supplies <= 2 || r.SuppliesCountdown > 0
	return r
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
