package sequencer

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/sequencer/x/slotclock"
)

func newTestStateMachine(t *testing.T, into time.Duration) (*stateMachine, *Timetable) {
	t.Helper()

	genesis := time.Unix(0, 0)
	duration := 36 * time.Second

	var mu sync.Mutex
	current := genesis.Add(time.Duration(testSlot)*duration + into)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	clock := slotclock.NewWithNow(genesis, duration, now)
	tt, err := NewTimetable(12*time.Second, duration, 12*time.Second, true)
	require.NoError(t, err)
	return newStateMachine(zerolog.Nop(), clock, nil), tt
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state    State
		expected string
	}{
		{StateStopped, "stopped"},
		{StateIdle, "idle"},
		{StateSynchronizing, "synchronizing"},
		{StateProposerCheck, "proposer_check"},
		{StateInitializingProposal, "initializing_proposal"},
		{StateCreatingBlock, "creating_block"},
		{StateCollectingAttestations, "collecting_attestations"},
		{StatePublishingBlock, "publishing_block"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.state.String())
	}
}

func TestStateMachineStoppedIsSticky(t *testing.T) {
	t.Parallel()

	m, tt := newTestStateMachine(t, time.Second)
	require.Equal(t, StateStopped, m.Current())

	// Without force, nothing leaves Stopped and no error is raised.
	require.NoError(t, m.Set(StateSynchronizing, testSlot, tt, false))
	require.Equal(t, StateStopped, m.Current())

	require.NoError(t, m.Set(StateIdle, 0, nil, true))
	require.Equal(t, StateIdle, m.Current())
}

func TestStateMachineSlotZeroBypassesTimetable(t *testing.T) {
	t.Parallel()

	// Deep into the slot, but slot 0 means no time constraint.
	m, tt := newTestStateMachine(t, 30*time.Second)
	require.NoError(t, m.Set(StateIdle, 0, tt, true))
	require.NoError(t, m.Set(StateIdle, 0, tt, false))
	require.Equal(t, StateIdle, m.Current())
}

func TestStateMachineRaisesTooSlow(t *testing.T) {
	t.Parallel()

	m, tt := newTestStateMachine(t, 30*time.Second)
	require.NoError(t, m.Set(StateIdle, 0, nil, true))

	err := m.Set(StateCreatingBlock, testSlot, tt, false)
	var tooSlow *TooSlowError
	require.ErrorAs(t, err, &tooSlow)
	require.Equal(t, StateCreatingBlock, tooSlow.State)
	require.Equal(t, StateIdle, m.Current(), "rejected transition leaves state unchanged")
}

func TestStateMachineAdvisoryWhenUnenforced(t *testing.T) {
	t.Parallel()

	m, _ := newTestStateMachine(t, 30*time.Second)
	relaxed, err := NewTimetable(12*time.Second, 36*time.Second, 12*time.Second, false)
	require.NoError(t, err)

	require.NoError(t, m.Set(StateIdle, 0, nil, true))
	require.NoError(t, m.Set(StateCreatingBlock, testSlot, relaxed, false))
	require.Equal(t, StateCreatingBlock, m.Current())
}

func TestStateMachineObserverSeesTransitions(t *testing.T) {
	t.Parallel()

	genesis := time.Unix(0, 0)
	clock := slotclock.NewWithNow(genesis, 36*time.Second, func() time.Time { return genesis })

	var observed []State
	m := newStateMachine(zerolog.Nop(), clock, func(s State) { observed = append(observed, s) })

	require.NoError(t, m.Set(StateIdle, 0, nil, true))
	require.NoError(t, m.Set(StateSynchronizing, 0, nil, false))
	require.Equal(t, []State{StateIdle, StateSynchronizing}, observed)
}
