package sequencer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/sequencer/x/protocol"
)

// BuildBlockFromProposal re-executes a foreign block proposal so this node
// can attest to it. Registered on the validator client at construction.
// Validator mode: no budget caps, no pool eviction, no minimum-transaction
// gate. Re-executions of the same payload within an epoch are served from a
// small cache.
func (s *Sequencer) BuildBlockFromProposal(ctx context.Context, blockNumber uint64, header protocol.ProposedBlockHeader, txs []protocol.Tx, opts BuildOptions) (*BuildResult, error) {
	cfg, tt := s.snapshot()

	key := buildCacheKey(header, txs)
	if cached, ok := s.recentBuilds.Get(key); ok {
		s.log.Debug().
			Uint64("block", blockNumber).
			Msg("Serving re-execution from cache")
		return cached, nil
	}

	slot := header.SlotNumber
	slotStart := s.clock.StartTime(slot)

	procFork, orchFork, err := s.openForks(ctx, blockNumber-1)
	if err != nil {
		return nil, err
	}
	defer s.scheduleForkRelease(procFork, orchFork)

	reexecDeadline := slotStart.Add(tt.ValidatorReexecEnd())
	if err := s.awaitWorldStateSync(ctx, tt, slot, blockNumber-1, reexecDeadline); err != nil {
		return nil, err
	}

	limits := protocol.ProcessLimits{}
	switch {
	case !opts.Deadline.IsZero():
		limits.Deadline = opts.Deadline
	case tt.Enforced():
		limits.Deadline = reexecDeadline
	}

	processed, failed, err := s.runProcessor(ctx, cfg, procFork, header.GlobalVariables, txs, limits, false)
	if err != nil {
		return nil, err
	}
	if len(processed)+len(failed) != len(txs) {
		return nil, fmt.Errorf("re-execution dropped txs: %d in, %d processed, %d failed",
			len(txs), len(processed), len(failed))
	}

	block, err := s.buildFromProcessed(ctx, orchFork, procFork, header.GlobalVariables, processed)
	if err != nil {
		return nil, err
	}

	result := &BuildResult{Block: block, Failed: failed}
	s.recentBuilds.Add(key, result)

	s.log.Info().
		Uint64("slot", slot).
		Uint64("block", blockNumber).
		Int("txs", len(processed)).
		Msg("Rebuilt block from foreign proposal")
	return result, nil
}

// buildCacheKey commits to the proposal contents so identical re-broadcasts
// hit the cache.
func buildCacheKey(header protocol.ProposedBlockHeader, txs []protocol.Tx) common.Hash {
	buf := make([]byte, 0, common.HashLength*(1+len(txs)))
	h := header.Hash()
	buf = append(buf, h.Bytes()...)
	for _, tx := range txs {
		txh := tx.Hash()
		buf = append(buf, txh.Bytes()...)
	}
	return common.BytesToHash(crypto.Keccak256(buf))
}
