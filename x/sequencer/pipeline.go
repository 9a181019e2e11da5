package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/sequencer/x/protocol"
)

// worldStateSyncPoll is the spin-wait cadence of the re-sync guard.
const worldStateSyncPoll = 100 * time.Millisecond

// createBlock drives the assembly pipeline for one slot: header, pre-flight
// validation, forks, processing under deadline, build, re-validation,
// attestations, and enqueueing. It raises on every failure so no publication
// can happen on a partially built block.
func (s *Sequencer) createBlock(ctx context.Context, cfg Config, tt *Timetable, claim *ProposerClaim, tip *protocol.ChainTip, flushing bool) error {
	slot := claim.Slot
	blockNumber := claim.BlockNumber
	slotStart := s.clock.StartTime(slot)

	if err := s.state.Set(StateCreatingBlock, slot, tt, false); err != nil {
		return err
	}

	globals := s.buildGlobalVariables(cfg, claim, slotStart)
	header := protocol.ProposedBlockHeader{
		GlobalVariables: globals,
		LastArchiveRoot: tip.ArchiveRoot,
	}

	if err := s.publisher.ValidateBlockForSubmission(ctx, header); err != nil {
		return &BlockInvalidError{Reason: "pre-flight validation", Cause: err}
	}

	buildStart := s.now()

	procFork, orchFork, err := s.openForks(ctx, blockNumber-1)
	if err != nil {
		return err
	}
	defer s.scheduleForkRelease(procFork, orchFork)

	if err := s.awaitWorldStateSync(ctx, tt, slot, blockNumber-1, slotStart.Add(tt.ValidatorReexecEnd())); err != nil {
		return err
	}

	budget := cfg.Budget()
	limits := protocol.ProcessLimits{
		MaxTransactions: budget.MaxTxs,
		MaxBlockSize:    budget.MaxBlockSizeBytes,
		MaxDAGas:        budget.MaxDAGas,
		MaxL2Gas:        budget.MaxL2Gas,
	}
	if tt.Enforced() {
		limits.Deadline = slotStart.Add(tt.BlockProposalExecEnd())
	}

	pendingTxs, err := s.txPool.PendingTxs(ctx, budget.MaxTxs)
	if err != nil {
		return fmt.Errorf("fetch pending txs: %w", err)
	}

	processed, failed, err := s.runProcessor(ctx, cfg, procFork, globals, pendingTxs, limits, true)
	if err != nil {
		return err
	}

	if len(failed) > 0 {
		hashes := make([]common.Hash, len(failed))
		for i, f := range failed {
			hashes[i] = f.Tx.Hash()
		}
		if err := s.txPool.DeleteTxs(ctx, hashes); err != nil {
			s.log.Warn().Err(err).Int("count", len(hashes)).Msg("Failed to evict txs from pool")
		} else {
			s.metrics.EvictedTxsTotal.Add(float64(len(hashes)))
		}
	}

	if uint64(len(processed)) < cfg.MinTxsPerBlock && !flushing {
		return &BlockInvalidError{
			Reason: fmt.Sprintf("only %d txs processed, need %d", len(processed), cfg.MinTxsPerBlock),
		}
	}

	block, err := s.buildFromProcessed(ctx, orchFork, procFork, globals, processed)
	if err != nil {
		return err
	}

	s.metrics.BlockBuildDuration.Observe(s.now().Sub(buildStart).Seconds())
	s.metrics.TxsPerBlock.Observe(float64(len(processed)))

	// L1 may have advanced while we processed; the forks are discardable, so
	// re-check before committing to publication.
	if err := s.publisher.ValidateBlockForSubmission(ctx, block.ProposeHeader()); err != nil {
		return &BlockInvalidError{Reason: "post-assembly validation", Cause: err}
	}

	attestations, err := s.collectAttestations(ctx, cfg, tt, slot, slotStart, block)
	if err != nil {
		return err
	}

	if err := s.state.Set(StatePublishingBlock, slot, tt, false); err != nil {
		return err
	}

	opts := ProposeOptions{TxTimeoutAt: slotStart.Add(tt.SlotDuration())}
	ok, err := s.publisher.EnqueueProposeL2Block(ctx, block, attestations, block.TxHashes, opts)
	if err != nil {
		return fmt.Errorf("enqueue block %d: %w", blockNumber, err)
	}
	if !ok {
		return &BlockInvalidError{Reason: "publisher rejected block enqueue"}
	}

	// One-shot flush satisfied.
	s.flushing.CompareAndSwap(true, false)

	s.log.Info().
		Uint64("slot", slot).
		Uint64("block", blockNumber).
		Int("txs", len(processed)).
		Int("attestations", len(attestations)).
		Msg("Block enqueued for publication")
	return nil
}

// buildGlobalVariables pins the execution environment for the slot. The
// coinbase falls back to the publisher's sender address when unset.
func (s *Sequencer) buildGlobalVariables(cfg Config, claim *ProposerClaim, slotStart time.Time) protocol.GlobalVariables {
	coinbase := cfg.Coinbase
	if coinbase == (common.Address{}) {
		coinbase = s.publisher.GetSenderAddress()
	}
	return protocol.GlobalVariables{
		ChainID:         cfg.ChainID,
		ProtocolVersion: cfg.ProtocolVersion,
		BlockNumber:     claim.BlockNumber,
		SlotNumber:      claim.Slot,
		Timestamp:       uint64(slotStart.Unix()),
		Coinbase:        coinbase,
		FeeRecipient:    cfg.FeeRecipient,
	}
}

// openForks opens the two independent world-state forks at the parent block:
// one mutated by public execution, one by the block builder's tree
// insertions. They are reconciled only by the consistency of their final
// roots.
func (s *Sequencer) openForks(ctx context.Context, parent uint64) (Fork, Fork, error) {
	procFork, err := s.worldState.Fork(ctx, parent)
	if err != nil {
		return nil, nil, fmt.Errorf("fork world state at %d: %w", parent, err)
	}
	s.metrics.ForksOutstanding.Inc()

	orchFork, err := s.worldState.Fork(ctx, parent)
	if err != nil {
		s.scheduleForkRelease(procFork)
		return nil, nil, fmt.Errorf("fork world state at %d: %w", parent, err)
	}
	s.metrics.ForksOutstanding.Inc()
	return procFork, orchFork, nil
}

// scheduleForkRelease closes the forks after a grace period, letting any
// deadline-cancelled processor work unwind first. Stop drains these via the
// cleanup wait group. Close errors are logged and swallowed: the node may
// already be shutting down.
func (s *Sequencer) scheduleForkRelease(forks ...Fork) {
	s.cleanupWg.Add(1)
	go func() {
		defer s.cleanupWg.Done()

		timer := time.NewTimer(s.forkGrace)
		defer timer.Stop()
		<-timer.C

		for _, f := range forks {
			if f == nil {
				continue
			}
			if err := f.Close(); err != nil {
				s.log.Warn().Err(err).Msg("Fork close failed")
			}
			s.metrics.ForksOutstanding.Dec()
		}
	}()
}

// awaitWorldStateSync nudges the synchronizer toward the target block and
// spin-waits until it confirms. Matters when re-executing a foreign
// proposal; when proposing, the sync gate already guarantees it.
func (s *Sequencer) awaitWorldStateSync(ctx context.Context, tt *Timetable, slot, target uint64, deadline time.Time) error {
	if _, err := s.worldState.SyncImmediate(ctx, target, false); err != nil {
		return fmt.Errorf("request world state sync to %d: %w", target, err)
	}

	for {
		st, err := s.worldState.Status(ctx)
		if err != nil {
			return fmt.Errorf("world state status: %w", err)
		}
		if st.LatestBlockNumber >= target {
			return nil
		}
		if !s.now().Before(deadline) {
			return &TooSlowError{
				State:   StateCreatingBlock,
				Into:    s.clock.SecondsInto(slot),
				Allowed: tt.ValidatorReexecEnd(),
			}
		}

		timer := time.NewTimer(worldStateSyncPoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runProcessor executes the public portion of the given transactions on the
// processor fork.
func (s *Sequencer) runProcessor(ctx context.Context, cfg Config, fork Fork, globals protocol.GlobalVariables, txs []protocol.Tx, limits protocol.ProcessLimits, isProposer bool) ([]protocol.ProcessedTx, []protocol.FailedTx, error) {
	processor := s.processors.Create(fork, globals, isProposer)

	var validator TxValidator
	if s.txValidators != nil {
		validator = s.txValidators(fork, globals, cfg.AllowListSet())
	}

	processed, failed, used, err := processor.Process(ctx, txs, limits, validator)
	if err != nil {
		return nil, nil, fmt.Errorf("public processing: %w", err)
	}

	s.log.Debug().
		Uint64("block", globals.BlockNumber).
		Int("processed", len(processed)).
		Int("failed", len(failed)).
		Uint64("da_gas", used.DAGas).
		Uint64("l2_gas", used.L2Gas).
		Msg("Public processing complete")
	return processed, failed, nil
}

// buildFromProcessed feeds the processed transactions to the block builder
// on the orchestrator fork and finalizes the block.
func (s *Sequencer) buildFromProcessed(ctx context.Context, orchFork, procFork Fork, globals protocol.GlobalVariables, processed []protocol.ProcessedTx) (*protocol.Block, error) {
	msgs, err := s.msgSource.L1ToL2Messages(ctx, globals.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("l1 to l2 messages for %d: %w", globals.BlockNumber, err)
	}
	prevHeader, err := procFork.InitialHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fork initial header: %w", err)
	}

	builder := s.builders.Create(orchFork)
	if err := builder.StartNewBlock(ctx, globals, msgs, prevHeader); err != nil {
		return nil, fmt.Errorf("start block %d: %w", globals.BlockNumber, err)
	}
	if err := builder.AddTxs(ctx, processed); err != nil {
		return nil, fmt.Errorf("add txs to block %d: %w", globals.BlockNumber, err)
	}
	block, err := builder.SetBlockCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("complete block %d: %w", globals.BlockNumber, err)
	}
	return block, nil
}

// collectAttestations gathers a supermajority of committee signatures over
// the proposal. An empty committee skips collection entirely (solo-proposer
// deployments). The result is ordered by committee index, as the L1
// contract requires.
func (s *Sequencer) collectAttestations(ctx context.Context, cfg Config, tt *Timetable, slot uint64, slotStart time.Time, block *protocol.Block) ([]protocol.Attestation, error) {
	if err := s.state.Set(StateCollectingAttestations, slot, tt, false); err != nil {
		return nil, err
	}

	committee, err := s.publisher.GetCurrentEpochCommittee(ctx)
	if err != nil {
		return nil, fmt.Errorf("epoch committee: %w", err)
	}
	if len(committee) == 0 {
		s.log.Debug().Uint64("slot", slot).Msg("Empty committee, skipping attestations")
		return nil, nil
	}

	required := protocol.RequiredAttestations(len(committee))

	var txs []protocol.Tx
	if cfg.PublishTxsWithProposals {
		txs = block.Txs
	}
	proposal, err := s.validator.CreateBlockProposal(ctx, block.Number(), block.Header, block.ArchiveRoot, txs,
		ProposalOptions{PublishTxs: cfg.PublishTxsWithProposals})
	if err != nil {
		return nil, fmt.Errorf("create block proposal: %w", err)
	}
	if proposal == nil {
		return nil, &BlockInvalidError{Reason: "validator client returned no proposal"}
	}

	if err := s.validator.BroadcastBlockProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("broadcast proposal: %w", err)
	}

	deadline := slotStart.Add(tt.MaxAllowedTime(StatePublishingBlock))
	if !tt.Enforced() {
		deadline = slotStart.Add(tt.SlotDuration())
	}

	waitStart := s.now()
	attestations, err := s.validator.CollectAttestations(ctx, proposal, required, deadline)
	s.metrics.AttestationWait.Observe(s.now().Sub(waitStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("collect attestations: %w", err)
	}

	ordered := orderByCommittee(committee, attestations)
	if len(ordered) < required {
		return nil, &BlockInvalidError{
			Reason: fmt.Sprintf("collected %d attestations from committee, need %d", len(ordered), required),
		}
	}

	s.log.Debug().
		Uint64("slot", slot).
		Int("committee", len(committee)).
		Int("attestations", len(ordered)).
		Msg("Attestations collected")
	return ordered, nil
}

// orderByCommittee reorders attestations to match committee index order and
// drops signatures from unknown signers. Duplicate signers keep the first
// signature seen.
func orderByCommittee(committee []common.Address, attestations []protocol.Attestation) []protocol.Attestation {
	bySigner := make(map[common.Address]protocol.Attestation, len(attestations))
	for _, a := range attestations {
		if _, ok := bySigner[a.Signer]; !ok {
			bySigner[a.Signer] = a
		}
	}

	ordered := make([]protocol.Attestation, 0, len(bySigner))
	for _, member := range committee {
		if a, ok := bySigner[member]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered
}
