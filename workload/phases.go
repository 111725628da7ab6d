package workload

import (
	"fmt"

	"github.com/tschnepf/workload-tracker-sub005/allocation"
)

// =============================================================================
// PHASES - The universe of valid phase keys
// =============================================================================

// Phase is a named deliverable stage. The engine honors the configured
// phase list as its universe of valid phase keys; templates opt into a
// subset of it.
type Phase struct {
	Value allocation.PhaseKey
	Label string
}

// DefaultPhases is the stock design-phase progression.
func DefaultPhases() []Phase {
	return []Phase{
		{Value: "sd", Label: "Schematic Design"},
		{Value: "dd", Label: "Design Development"},
		{Value: "ifp", Label: "Issued for Permit"},
		{Value: "ifc", Label: "Issued for Construction"},
	}
}

// PhaseSet is a lookup over configured phases.
type PhaseSet struct {
	ordered []Phase
	byKey   map[allocation.PhaseKey]Phase
}

func NewPhaseSet(phases []Phase) *PhaseSet {
	ps := &PhaseSet{byKey: make(map[allocation.PhaseKey]Phase, len(phases))}
	for _, p := range phases {
		if _, dup := ps.byKey[p.Value]; dup {
			continue
		}
		ps.ordered = append(ps.ordered, p)
		ps.byKey[p.Value] = p
	}
	return ps
}

func (ps *PhaseSet) Contains(key allocation.PhaseKey) bool {
	_, ok := ps.byKey[key]
	return ok
}

func (ps *PhaseSet) Phases() []Phase { return ps.ordered }

func (ps *PhaseSet) Keys() []allocation.PhaseKey {
	keys := make([]allocation.PhaseKey, len(ps.ordered))
	for i, p := range ps.ordered {
		keys[i] = p.Value
	}
	return keys
}

// Validate checks every key against the universe. Unknown keys are a
// client error, not a silent drop.
func (ps *PhaseSet) Validate(keys []allocation.PhaseKey) error {
	for _, k := range keys {
		if !ps.Contains(k) {
			return &allocation.ValidationError{
				Field:   "phase_keys",
				Message: fmt.Sprintf("unknown phase %q", k),
				Err:     allocation.ErrUnknownPhase,
			}
		}
	}
	return nil
}
