package sequencer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/sequencer/x/protocol"
	"github.com/compose-network/sequencer/x/slotclock"
)

// recentBuildCacheSize bounds the validator-side re-execution cache. A
// proposal is only ever re-broadcast within its own slot, so a handful of
// entries is plenty.
const recentBuildCacheSize = 16

// Sequencer orchestrates per-slot block production: sync gate, eligibility,
// assembly under the timetable, attestation collection, and L1 enqueueing.
// It holds no persistent state of its own between slots.
type Sequencer struct {
	log     zerolog.Logger
	metrics *Metrics
	clock   slotclock.Clock
	now     func() time.Time
	state   *stateMachine

	publisher    Publisher
	validator    ValidatorClient
	txPool       TxPool
	worldState   WorldState
	blockSource  L2BlockSource
	msgSource    L1ToL2MessageSource
	processors   ProcessorFactory
	builders     BuilderFactory
	txValidators TxValidatorFactory

	// initialL2BlockNum is the first block this rollup instance produced;
	// fixed at construction.
	initialL2BlockNum uint64

	cfgMu     sync.RWMutex
	cfg       Config
	timetable *Timetable

	flushing atomic.Bool

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	loopWg  sync.WaitGroup

	// cleanupWg tracks deferred fork releases; Stop drains it.
	cleanupWg sync.WaitGroup
	forkGrace time.Duration

	recentBuilds *lru.Cache[common.Hash, *BuildResult]
}

// New creates a sequencer with the given configuration and collaborators.
// The state machine begins in Stopped; Start arms the loop.
func New(log zerolog.Logger, reg prometheus.Registerer, cfg Config, opts ...Option) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sequencer config: %w", err)
	}
	tt, err := cfg.Timetable()
	if err != nil {
		return nil, err
	}

	var d deps
	for _, opt := range opts {
		opt(&d)
	}

	switch {
	case d.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	case d.Validator == nil:
		return nil, fmt.Errorf("validator client is required")
	case d.TxPool == nil:
		return nil, fmt.Errorf("tx pool is required")
	case d.WorldState == nil:
		return nil, fmt.Errorf("world state is required")
	case d.BlockSource == nil:
		return nil, fmt.Errorf("block source is required")
	case d.MsgSource == nil:
		return nil, fmt.Errorf("message source is required")
	case d.Processors == nil:
		return nil, fmt.Errorf("processor factory is required")
	case d.Builders == nil:
		return nil, fmt.Errorf("builder factory is required")
	}

	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ForkGrace == 0 {
		d.ForkGrace = 5 * time.Second
	}
	if d.Clock == nil {
		d.Clock = slotclock.NewWithNow(cfg.GenesisTime, cfg.L2SlotDuration, d.Now)
	}

	m := NewMetrics(reg)
	cache, err := lru.New[common.Hash, *BuildResult](recentBuildCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Sequencer{
		log:               log.With().Str("component", "sequencer").Logger(),
		metrics:           m,
		clock:             d.Clock,
		now:               d.Now,
		publisher:         d.Publisher,
		validator:         d.Validator,
		txPool:            d.TxPool,
		worldState:        d.WorldState,
		blockSource:       d.BlockSource,
		msgSource:         d.MsgSource,
		processors:        d.Processors,
		builders:          d.Builders,
		txValidators:      d.TxValidators,
		initialL2BlockNum: cfg.InitialL2BlockNum,
		cfg:               cfg,
		timetable:         tt,
		forkGrace:         d.ForkGrace,
		recentBuilds:      cache,
	}
	s.state = newStateMachine(s.log, s.clock, func(st State) {
		m.StateGauge.Set(float64(st))
	})

	s.validator.RegisterBlockBuilder(s.BuildBlockFromProposal)
	s.publisher.RegisterSlashPayloadGetter(s.slashPayload)
	if len(cfg.GovernanceProposerPayload) > 0 {
		s.publisher.SetGovernancePayload(cfg.GovernanceProposerPayload)
	}

	return s, nil
}

// Start arms the main loop. Idempotent: calling Start on a running
// sequencer is a no-op.
func (s *Sequencer) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return nil
	}

	s.log.Info().Msg("Starting sequencer")
	if err := s.state.Set(StateIdle, 0, nil, true); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.loopWg.Add(1)
	go s.run(runCtx)
	return nil
}

// Restart stops the loop, restarts the publisher, and arms the loop again.
func (s *Sequencer) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	s.publisher.Restart()
	return s.Start(ctx)
}

// Stop halts the loop, drains pending fork releases, interrupts the
// publisher, stops the validator client, and parks the machine in Stopped.
func (s *Sequencer) Stop(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return nil
	}

	s.log.Info().Msg("Stopping sequencer")
	s.cancel()
	s.loopWg.Wait()
	s.cleanupWg.Wait()

	s.publisher.Interrupt()
	if err := s.validator.Stop(ctx); err != nil {
		s.log.Error().Err(err).Msg("Validator client stop failed")
	}

	s.running = false
	return s.state.Set(StateStopped, 0, nil, true)
}

// Flush forces block production on the next iteration regardless of the
// minimum-transactions gate. One-shot: clears itself once a block is
// enqueued.
func (s *Sequencer) Flush() {
	s.flushing.Store(true)
	s.log.Info().Msg("Flush requested")
}

// Status is a point-in-time snapshot for the admin API.
type Status struct {
	State    string `json:"state"`
	Slot     uint64 `json:"slot"`
	Flushing bool   `json:"flushing"`
	Running  bool   `json:"running"`
	Config   Config `json:"config"`
}

// Status returns the current sequencer snapshot.
func (s *Sequencer) Status() Status {
	cfg, _ := s.snapshot()

	s.runMu.Lock()
	running := s.running
	s.runMu.Unlock()

	return Status{
		State:    s.state.Current().String(),
		Slot:     s.clock.Current(),
		Flushing: s.flushing.Load(),
		Running:  running,
		Config:   cfg,
	}
}

// UpdateConfig swaps in a new configuration and rebuilds the timetable. The
// running iteration keeps its snapshot; the next one sees the new values.
func (s *Sequencer) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("sequencer config: %w", err)
	}
	tt, err := cfg.Timetable()
	if err != nil {
		return err
	}

	s.cfgMu.Lock()
	s.cfg = cfg
	s.timetable = tt
	s.cfgMu.Unlock()

	if len(cfg.GovernanceProposerPayload) > 0 {
		s.publisher.SetGovernancePayload(cfg.GovernanceProposerPayload)
	}
	s.log.Info().Msg("Configuration updated")
	return nil
}

// snapshot returns the config and timetable for one iteration.
func (s *Sequencer) snapshot() (Config, *Timetable) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg, s.timetable
}

// slashPayload is registered on the publisher; the core carries no slashing
// intelligence of its own, so the payload is always empty.
func (s *Sequencer) slashPayload(ctx context.Context, slot uint64) ([]byte, error) {
	return nil, nil
}

// run is the periodic driver. Iterations never overlap: the previous one
// must return before the next tick fires.
func (s *Sequencer) run(ctx context.Context) {
	defer s.loopWg.Done()

	cfg, _ := s.snapshot()
	ticker := time.NewTicker(cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.iteration(ctx)
			// Cadence is hot-reloadable.
			if next, _ := s.snapshot(); next.PollingInterval != cfg.PollingInterval {
				cfg = next
				ticker.Reset(cfg.PollingInterval)
			}
		}
	}
}

// iteration runs one slot attempt and classifies its outcome. On every exit
// path, including panic, the state returns to Idle.
func (s *Sequencer) iteration(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Panic in sequencer iteration")
		}
		_ = s.state.Set(StateIdle, 0, nil, false)
	}()

	err := s.work(ctx)
	if err == nil {
		return
	}

	var tooSlow *TooSlowError
	var blockInvalid *BlockInvalidError
	var inconsistent *InconsistentError
	switch {
	case errors.Is(err, ErrNotReady):
		s.metrics.NotReadyTotal.Inc()
		s.log.Debug().Msg("Not ready to propose this slot")
	case errors.As(err, &tooSlow):
		s.metrics.TooSlowTotal.WithLabelValues(tooSlow.State.String()).Inc()
		s.log.Warn().
			Str("phase", tooSlow.State.String()).
			Dur("into_slot", tooSlow.Into).
			Dur("allowed", tooSlow.Allowed).
			Msg("Too slow, abandoning slot")
	case errors.As(err, &blockInvalid):
		s.metrics.FailedBlocks.Inc()
		s.log.Error().Err(err).Msg("Block candidate abandoned")
	case errors.As(err, &inconsistent):
		s.log.Error().
			Uint64("expected", inconsistent.Expected).
			Uint64("actual", inconsistent.Actual).
			Msg("Publisher and sequencer disagree on block number")
	case errors.Is(err, context.Canceled):
		// Shutting down.
	default:
		s.log.Error().Err(err).Msg("Sequencer iteration failed")
	}
}

// work is one pass through the per-slot flow: synchronize, check
// eligibility, enqueue votes, assemble, and flush publisher requests.
func (s *Sequencer) work(ctx context.Context) error {
	cfg, tt := s.snapshot()
	currentSlot := s.clock.Current()

	if err := s.state.Set(StateSynchronizing, currentSlot, tt, false); err != nil {
		return err
	}
	tip, err := s.chainTip(ctx)
	if err != nil {
		return err
	}

	if err := s.state.Set(StateProposerCheck, currentSlot, tt, false); err != nil {
		return err
	}
	claim, err := s.slotForProposal(ctx, tip.ArchiveRoot, tip.BlockNumber+1)
	if err != nil {
		return err
	}

	if err := s.state.Set(StateInitializingProposal, claim.Slot, tt, false); err != nil {
		return err
	}

	slotStart := s.clock.StartTime(claim.Slot)
	s.enqueueVotes(ctx, claim.Slot, slotStart)

	pending, err := s.txPool.PendingTxCount(ctx)
	if err != nil {
		return fmt.Errorf("pending tx count: %w", err)
	}

	flushing := s.flushing.Load()
	var blockErr error
	if pending >= cfg.MinTxsPerBlock || flushing {
		blockErr = s.createBlock(ctx, cfg, tt, claim, tip, flushing)
	} else {
		s.log.Debug().
			Uint64("pending", pending).
			Uint64("min", cfg.MinTxsPerBlock).
			Uint64("slot", claim.Slot).
			Msg("Not enough pending txs to build a block")
	}

	// Votes (and the block, when assembly succeeded) go out in one batch.
	res, sendErr := s.publisher.SendRequests(ctx)
	switch {
	case sendErr != nil:
		s.log.Error().Err(sendErr).Uint64("slot", claim.Slot).Msg("Publisher send failed")
		if blockErr == nil {
			blockErr = fmt.Errorf("send requests: %w", sendErr)
		}
	case res != nil && slices.Contains(res.ValidActions, "propose"):
		s.metrics.FilledSlots.Inc()
		s.log.Info().Uint64("slot", claim.Slot).Uint64("block", claim.BlockNumber).Msg("Slot filled")
	}

	return blockErr
}

// enqueueVotes enqueues the governance and slashing votes for this slot.
// Their success is independent of block assembly: failures are logged and
// counted, never raised.
func (s *Sequencer) enqueueVotes(ctx context.Context, slot uint64, slotStart time.Time) {
	for _, vote := range []protocol.VoteType{protocol.VoteGovernance, protocol.VoteSlashing} {
		if err := s.publisher.EnqueueCastVote(ctx, slot, slotStart, vote); err != nil {
			s.metrics.VoteErrorsTotal.WithLabelValues(vote.String()).Inc()
			s.log.Warn().
				Err(err).
				Str("vote", vote.String()).
				Uint64("slot", slot).
				Msg("Vote enqueue failed")
		}
	}
}
