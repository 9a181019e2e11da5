package sequencer

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/compose-network/sequencer/x/slotclock"
)

// State is the sequencer phase within a slot.
type State int

const (
	StateStopped State = iota
	StateIdle
	StateSynchronizing
	StateProposerCheck
	StateInitializingProposal
	StateCreatingBlock
	StateCollectingAttestations
	StatePublishingBlock
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateIdle:
		return "idle"
	case StateSynchronizing:
		return "synchronizing"
	case StateProposerCheck:
		return "proposer_check"
	case StateInitializingProposal:
		return "initializing_proposal"
	case StateCreatingBlock:
		return "creating_block"
	case StateCollectingAttestations:
		return "collecting_attestations"
	case StatePublishingBlock:
		return "publishing_block"
	default:
		return "unknown"
	}
}

// stateMachine guards phase transitions. Per-slot flow:
//
//	Idle → Synchronizing → ProposerCheck → InitializingProposal →
//	CreatingBlock → CollectingAttestations → PublishingBlock → Idle
//
// with every phase falling back to Idle on failure. Stopped is sticky:
// only a forced transition (start/restart/stop) leaves or enters it.
// Set is the only writer of the state field.
type stateMachine struct {
	log   zerolog.Logger
	clock slotclock.Clock

	// onChange observes committed transitions (metrics gauge).
	onChange func(State)

	mu    sync.RWMutex
	state State
}

func newStateMachine(log zerolog.Logger, clock slotclock.Clock, onChange func(State)) *stateMachine {
	if onChange == nil {
		onChange = func(State) {}
	}
	return &stateMachine{
		log:      log.With().Str("component", "state-machine").Logger(),
		clock:    clock,
		onChange: onChange,
		state:    StateStopped,
	}
}

func (m *stateMachine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Set commits a transition to next for the given slot. Slot 0 means no time
// constraint (used for Idle and Stopped resets). Without force, transitions
// out of Stopped are rejected with a warning, and the timetable may refuse
// the transition with TooSlow.
func (m *stateMachine) Set(next State, slot uint64, tt *Timetable, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateStopped && !force {
		m.log.Warn().
			Str("next", next.String()).
			Uint64("slot", slot).
			Msg("Ignoring transition: sequencer is stopped")
		return nil
	}

	if slot != 0 && tt != nil {
		into := m.clock.SecondsInto(slot)
		if err := tt.AssertTimeLeft(next, into); err != nil {
			return err
		}
	}

	prev := m.state
	m.state = next
	m.log.Debug().
		Str("from", prev.String()).
		Str("to", next.String()).
		Uint64("slot", slot).
		Msg("State transition")
	m.onChange(next)
	return nil
}
