package sequencer

import (
	"fmt"
	"time"
)

// Fixed costs reserved inside a slot, independent of the slot duration.
const (
	// attestationTime bounds the committee round-trip.
	attestationTime = 6 * time.Second
	// finalizeMargin covers builder padding plus post-assembly validation.
	finalizeMargin = 2 * time.Second
	// reexecSafety keeps the validator re-execution deadline strictly ahead
	// of the proposer's build deadline: a validator must finish re-executing
	// before it can attest.
	reexecSafety = 3 * time.Second
	// initMargin separates the early phase deadlines.
	initMargin = time.Second
)

// Timetable is a pure function from (phase, seconds-into-slot) to remaining
// budget. It is rebuilt whenever the configuration changes.
type Timetable struct {
	ethSlotDuration time.Duration
	l2SlotDuration  time.Duration
	l1InclusionTail time.Duration
	enforce         bool

	// Deadlines for entering each phase, measured as seconds-into-slot.
	maxAllowed map[State]time.Duration

	execEnd   time.Duration
	reexecEnd time.Duration
}

// NewTimetable derives the per-phase budget decomposition. Each phase owns a
// non-overlapping slice of the slot; the remainder past the publishing
// deadline is reserved for L1 inclusion.
func NewTimetable(ethSlotDuration, l2SlotDuration, l1InclusionTail time.Duration, enforce bool) (*Timetable, error) {
	if l2SlotDuration <= 0 {
		return nil, fmt.Errorf("timetable: l2 slot duration must be positive, got %s", l2SlotDuration)
	}
	if l1InclusionTail <= 0 || l1InclusionTail >= l2SlotDuration {
		return nil, fmt.Errorf("timetable: l1 inclusion tail %s must be within the slot %s", l1InclusionTail, l2SlotDuration)
	}

	enterPublishing := l2SlotDuration - l1InclusionTail
	enterCollecting := enterPublishing - attestationTime
	execEnd := enterCollecting - finalizeMargin
	reexecEnd := execEnd - reexecSafety

	enterCreating := l2SlotDuration / 4
	if enterCreating >= execEnd {
		enterCreating = execEnd / 2
	}
	enterInitializing := enterCreating - 2*initMargin
	enterProposerCheck := enterInitializing - initMargin
	enterSynchronizing := enterProposerCheck - initMargin

	if enterSynchronizing <= 0 || reexecEnd <= 0 {
		return nil, fmt.Errorf("timetable: slot duration %s too short for the phase budget", l2SlotDuration)
	}

	return &Timetable{
		ethSlotDuration: ethSlotDuration,
		l2SlotDuration:  l2SlotDuration,
		l1InclusionTail: l1InclusionTail,
		enforce:         enforce,
		maxAllowed: map[State]time.Duration{
			StateSynchronizing:          enterSynchronizing,
			StateProposerCheck:          enterProposerCheck,
			StateInitializingProposal:   enterInitializing,
			StateCreatingBlock:          enterCreating,
			StateCollectingAttestations: enterCollecting,
			StatePublishingBlock:        enterPublishing,
		},
		execEnd:   execEnd,
		reexecEnd: reexecEnd,
	}, nil
}

// Enforced reports whether deadline violations raise TooSlow. When false,
// deadlines are advisory.
func (t *Timetable) Enforced() bool { return t.enforce }

// SlotDuration returns the L2 slot duration the timetable was built for.
func (t *Timetable) SlotDuration() time.Duration { return t.l2SlotDuration }

// MaxAllowedTime returns the deadline for entering the given phase as
// seconds-into-slot. Idle and Stopped carry no deadline.
func (t *Timetable) MaxAllowedTime(s State) time.Duration {
	if d, ok := t.maxAllowed[s]; ok {
		return d
	}
	return t.l2SlotDuration
}

// AssertTimeLeft raises TooSlow when the slot has progressed past the
// deadline for entering the phase and enforcement is on.
func (t *Timetable) AssertTimeLeft(s State, into time.Duration) error {
	allowed := t.MaxAllowedTime(s)
	if into > allowed && t.enforce {
		return &TooSlowError{State: s, Into: into, Allowed: allowed}
	}
	return nil
}

// BlockProposalExecEnd is the last instant, as seconds-into-slot, at which
// the proposer's public processing may still be issuing work.
func (t *Timetable) BlockProposalExecEnd() time.Duration { return t.execEnd }

// ValidatorReexecEnd is the public-processing deadline for a validator
// re-executing a foreign proposal. Strictly earlier than the proposer's.
func (t *Timetable) ValidatorReexecEnd() time.Duration { return t.reexecEnd }
