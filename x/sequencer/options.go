package sequencer

import (
	"time"

	"github.com/compose-network/sequencer/x/slotclock"
)

// Option configures the sequencer
type Option func(*deps)

// deps collects the injected collaborators.
type deps struct {
	Publisher    Publisher
	Validator    ValidatorClient
	TxPool       TxPool
	WorldState   WorldState
	BlockSource  L2BlockSource
	MsgSource    L1ToL2MessageSource
	Processors   ProcessorFactory
	Builders     BuilderFactory
	TxValidators TxValidatorFactory

	Clock     slotclock.Clock
	Now       func() time.Time
	ForkGrace time.Duration
}

// WithPublisher sets the L1 publisher
func WithPublisher(p Publisher) Option {
	return func(d *deps) {
		d.Publisher = p
	}
}

// WithValidatorClient sets the validator client
func WithValidatorClient(v ValidatorClient) Option {
	return func(d *deps) {
		d.Validator = v
	}
}

// WithTxPool sets the peer-network transaction pool
func WithTxPool(p TxPool) Option {
	return func(d *deps) {
		d.TxPool = p
	}
}

// WithWorldState sets the world-state synchronizer
func WithWorldState(w WorldState) Option {
	return func(d *deps) {
		d.WorldState = w
	}
}

// WithBlockSource sets the canonical L2 block source
func WithBlockSource(b L2BlockSource) Option {
	return func(d *deps) {
		d.BlockSource = b
	}
}

// WithMessageSource sets the L1-to-L2 message source
func WithMessageSource(m L1ToL2MessageSource) Option {
	return func(d *deps) {
		d.MsgSource = m
	}
}

// WithProcessorFactory sets the public processor factory
func WithProcessorFactory(f ProcessorFactory) Option {
	return func(d *deps) {
		d.Processors = f
	}
}

// WithBuilderFactory sets the block builder factory
func WithBuilderFactory(f BuilderFactory) Option {
	return func(d *deps) {
		d.Builders = f
	}
}

// WithTxValidatorFactory sets the per-slot transaction validator factory
func WithTxValidatorFactory(f TxValidatorFactory) Option {
	return func(d *deps) {
		d.TxValidators = f
	}
}

// WithClock overrides the slot clock. Defaults to one built from the
// configured genesis time and slot duration.
func WithClock(c slotclock.Clock) Option {
	return func(d *deps) {
		d.Clock = c
	}
}

// WithNow overrides the time source. Useful for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(d *deps) {
		d.Now = now
	}
}

// WithForkReleaseGrace overrides the delay before scheduled fork closures
// run. Defaults to 5 seconds; tests shorten it.
func WithForkReleaseGrace(grace time.Duration) Option {
	return func(d *deps) {
		d.ForkGrace = grace
	}
}
