package triage

import "fmt"

// DefaultClarificationCap is how many clarification rounds a thread gets
// before an ask_human verdict is escalated.
const DefaultClarificationCap = 3

// Route picks the node that follows llm_router and returns the updated
// interaction count. Once count reaches limit, ask_human is forced to
// emergencial without touching the count.
func Route(decision Decision, count, limit int) (Node, int, error) {
	if !decision.Valid() {
		return "", count, &InvalidDecisionError{Value: string(decision)}
	}
	if decision == DecisionAskHuman && count >= limit {
		return NodeEmergency, count, nil
	}

	switch decision {
	case DecisionAskHuman:
		return NodeAskHuman, count + 1, nil
	case DecisionEmergency:
		return NodeEmergency, count, nil
	case DecisionDifferential:
		return NodeDifferential, count, nil
	}
	return "", count, fmt.Errorf("%w: decision %q", ErrRouterInvariant, decision)
}
