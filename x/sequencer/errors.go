package sequencer

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotReady signals that the upstream sources disagree on the chain tip or
// that this operator is not the proposer for the next slot. The iteration
// ends quietly in Idle.
var ErrNotReady = errors.New("sequencer: not ready to propose")

// TooSlowError is raised when a phase transition cannot complete within its
// slot budget. The loop treats it as an expected operational condition.
type TooSlowError struct {
	State   State
	Into    time.Duration
	Allowed time.Duration
}

func (e *TooSlowError) Error() string {
	return fmt.Sprintf("sequencer: too slow to enter %s: %s into slot, allowed %s",
		e.State, e.Into, e.Allowed)
}

// BlockInvalidError is raised when pre- or post-assembly validation fails or
// when too few transactions survived processing. World state is unaffected
// because forks are never merged.
type BlockInvalidError struct {
	Reason string
	Cause  error
}

func (e *BlockInvalidError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sequencer: block invalid: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("sequencer: block invalid: %s", e.Reason)
}

func (e *BlockInvalidError) Unwrap() error { return e.Cause }

// InconsistentError is raised when the publisher and the sequencer disagree
// on the next block number. It is fatal to the iteration and surfaces to the
// operator.
type InconsistentError struct {
	Expected uint64
	Actual   uint64
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("sequencer: publisher block number %d does not match expected %d",
		e.Actual, e.Expected)
}
