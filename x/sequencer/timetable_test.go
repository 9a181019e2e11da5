package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTimetable(t *testing.T, enforce bool) *Timetable {
	t.Helper()
	tt, err := NewTimetable(12*time.Second, 36*time.Second, 12*time.Second, enforce)
	require.NoError(t, err)
	return tt
}

func TestTimetablePhaseDeadlinesAreOrdered(t *testing.T) {
	t.Parallel()

	tt := newTestTimetable(t, true)

	phases := []State{
		StateSynchronizing,
		StateProposerCheck,
		StateInitializingProposal,
		StateCreatingBlock,
		StateCollectingAttestations,
		StatePublishingBlock,
	}
	for i := 1; i < len(phases); i++ {
		assert.Less(t, tt.MaxAllowedTime(phases[i-1]), tt.MaxAllowedTime(phases[i]),
			"%s must precede %s", phases[i-1], phases[i])
	}
}

func TestTimetableReservesL1InclusionTail(t *testing.T) {
	t.Parallel()

	tt := newTestTimetable(t, true)
	assert.Equal(t, 24*time.Second, tt.MaxAllowedTime(StatePublishingBlock),
		"publishing must leave the configured tail for L1 inclusion")
}

func TestTimetableExecDeadlines(t *testing.T) {
	t.Parallel()

	tt := newTestTimetable(t, true)

	assert.Less(t, tt.ValidatorReexecEnd(), tt.BlockProposalExecEnd(),
		"a validator must finish re-executing before the proposer's build deadline")
	assert.Less(t, tt.BlockProposalExecEnd(), tt.MaxAllowedTime(StateCollectingAttestations),
		"processing must end before attestation collection begins")
}

func TestTimetableAssertTimeLeft(t *testing.T) {
	t.Parallel()

	tt := newTestTimetable(t, true)

	require.NoError(t, tt.AssertTimeLeft(StateCreatingBlock, time.Second))

	err := tt.AssertTimeLeft(StateCreatingBlock, 20*time.Second)
	var tooSlow *TooSlowError
	require.ErrorAs(t, err, &tooSlow)
	assert.Equal(t, 20*time.Second, tooSlow.Into)
	assert.Equal(t, tt.MaxAllowedTime(StateCreatingBlock), tooSlow.Allowed)
}

func TestTimetableUnenforcedIsAdvisory(t *testing.T) {
	t.Parallel()

	tt := newTestTimetable(t, false)
	require.NoError(t, tt.AssertTimeLeft(StateCreatingBlock, time.Hour))
}

func TestTimetableIdleHasNoDeadline(t *testing.T) {
	t.Parallel()

	tt := newTestTimetable(t, true)
	assert.Equal(t, tt.SlotDuration(), tt.MaxAllowedTime(StateIdle))
	require.NoError(t, tt.AssertTimeLeft(StateIdle, 35*time.Second))
}

func TestTimetableRejectsImpossibleBudgets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		l2   time.Duration
		tail time.Duration
	}{
		{"zero slot", 0, time.Second},
		{"tail exceeds slot", 36 * time.Second, 40 * time.Second},
		{"tail equals slot", 36 * time.Second, 36 * time.Second},
		{"slot too short for phases", 10 * time.Second, 9 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewTimetable(12*time.Second, tt.l2, tt.tail, true)
			require.Error(t, err)
		})
	}
}
