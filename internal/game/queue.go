package game

// ActionGroup collects every participant queued under one action kind.
// First is the first queued action of that kind.
type ActionGroup struct {
	Kind         string       `json:"action_type"`
	First        QueuedAction `json:"action"`
	Participants []string     `json:"participants"`
}

// GroupActionQueue groups queued actions by kind. Groups are ordered by the
// first occurrence of their kind and participants keep arrival order,
// duplicates included.
func GroupActionQueue(queue []QueuedAction) []ActionGroup {
	groups := []ActionGroup{}
	index := map[string]int{}
	for _, qa := range queue {
		i, ok := index[qa.Kind]
		if !ok {
			i = len(groups)
			index[qa.Kind] = i
			groups = append(groups, ActionGroup{Kind: qa.Kind, First: qa, Participants: []string{}})
		}
		groups[i].Participants = append(groups[i].Participants, qa.Participants...)
	}
	return groups
}

// GroupedQueue is a convenience over Snapshot for the phase2 action queue.
func (s Snapshot) GroupedQueue() []ActionGroup {
	p2, err := s.Phase2()
	if err != nil || p2 == nil {
		return []ActionGroup{}
	}
	return GroupActionQueue(p2.ActionQueue)
}

func Lookup(groups []ActionGroup, kind string) (ActionGroup, bool) {
	for _, g := range groups {
		if g.Kind == kind {
			return g, true
		}
	}
	return ActionGroup{}, false
}
