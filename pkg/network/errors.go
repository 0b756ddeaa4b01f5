package network

import (
	"errors"
	"fmt"
)

var (
	// ErrStructuralGap is returned when a reach ends at a node no other reach
	// starts from and the reach is not the outlet.
	ErrStructuralGap = errors.New("structural gap")

	// ErrCycle is returned when a downstream trace revisits a reach or runs
	// past its step budget.
	ErrCycle = errors.New("cycle or disconnected fragment")

	// ErrAmbiguousAnchor is returned when several measured reaches share one
	// join key at the same traced location.
	ErrAmbiguousAnchor = errors.New("ambiguous anchor")

	ErrUnknownReach   = errors.New("unknown reach")
	ErrDuplicateReach = errors.New("duplicate reach id")
	ErrNoOutlet       = errors.New("network has no outlet")
	ErrUnknownField   = errors.New("unknown attribute field")
	ErrNoSegments     = errors.New("network has no segments")

	// ErrNoCoordinates is returned when a reach needs a node id resolved but
	// has no distinct endpoint coordinates to resolve it from.
	ErrNoCoordinates = errors.New("reach has no endpoint coordinates")
)

// StructuralGapError reports a reach whose end matches no other reach's start.
type StructuralGapError struct {
	ReachID int64
	Node    NodeID
}

func (e *StructuralGapError) Error() string {
	return fmt.Sprintf("reach %d ends at node %d with no downstream reach: %v", e.ReachID, e.Node, ErrStructuralGap)
}

func (e *StructuralGapError) Unwrap() error { return ErrStructuralGap }

// CycleError reports a trace from SourceID that came back to ReachID.
type CycleError struct {
	SourceID int64
	ReachID  int64
	Steps    int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("trace from reach %d revisited reach %d after %d steps: %v", e.SourceID, e.ReachID, e.Steps, ErrCycle)
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// AmbiguousAnchorError reports several reaches competing for one key. Chosen
// is the reach that was kept.
type AmbiguousAnchorError struct {
	Key      string
	ReachIDs []int64
	Chosen   int64
}

func (e *AmbiguousAnchorError) Error() string {
	return fmt.Sprintf("key %q shared by reaches %v, using %d: %v", e.Key, e.ReachIDs, e.Chosen, ErrAmbiguousAnchor)
}

func (e *AmbiguousAnchorError) Unwrap() error { return ErrAmbiguousAnchor }
