package sequencer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/sequencer/x/protocol"
)

// sourceTip is one upstream source's view of the chain head.
type sourceTip struct {
	source string
	ref    protocol.BlockRef
	err    error
}

// chainTip queries the four upstream sources concurrently and checks that
// they agree on the chain head. All four hashes must match, except at
// genesis where the canonical source reports no hash and all four numbers
// must be zero. On disagreement it returns ErrNotReady and the iteration
// ends in Idle.
func (s *Sequencer) chainTip(ctx context.Context) (*protocol.ChainTip, error) {
	results := make(chan sourceTip, 4)

	go func() {
		st, err := s.worldState.Status(ctx)
		if err != nil {
			results <- sourceTip{source: "world-state", err: err}
			return
		}
		results <- sourceTip{source: "world-state", ref: protocol.BlockRef{
			Number: st.LatestBlockNumber,
			Hash:   st.LatestBlockHash,
		}}
	}()
	go func() {
		tips, err := s.blockSource.L2Tips(ctx)
		if err != nil {
			results <- sourceTip{source: "block-source", err: err}
			return
		}
		results <- sourceTip{source: "block-source", ref: tips.Latest}
	}()
	go func() {
		st, err := s.txPool.Status(ctx)
		if err != nil {
			results <- sourceTip{source: "p2p", err: err}
			return
		}
		results <- sourceTip{source: "p2p", ref: st.SyncedToL2Block}
	}()
	go func() {
		tips, err := s.msgSource.L2Tips(ctx)
		if err != nil {
			results <- sourceTip{source: "l1-to-l2-messages", err: err}
			return
		}
		results <- sourceTip{source: "l1-to-l2-messages", ref: tips.Latest}
	}()

	tips := make(map[string]protocol.BlockRef, 4)
	for i := 0; i < 4; i++ {
		r := <-results
		if r.err != nil {
			return nil, fmt.Errorf("chain tip query %s: %w", r.source, r.err)
		}
		tips[r.source] = r.ref
	}

	canonical := tips["block-source"]
	if canonical.Hash == (common.Hash{}) {
		// Genesis: no canonical hash yet, every source must be at zero.
		for source, ref := range tips {
			if ref.Number != 0 {
				s.log.Debug().
					Str("source", source).
					Uint64("number", ref.Number).
					Msg("Source ahead of genesis while canonical tip is empty")
				return nil, ErrNotReady
			}
		}
	} else {
		for source, ref := range tips {
			if ref.Hash != canonical.Hash {
				s.log.Debug().
					Str("source", source).
					Uint64("number", ref.Number).
					Str("hash", ref.Hash.Hex()).
					Str("canonical", canonical.Hash.Hex()).
					Msg("Chain tip mismatch across sources")
				return nil, ErrNotReady
			}
		}
	}

	if canonical.Number >= s.initialL2BlockNum && canonical.Hash != (common.Hash{}) {
		block, err := s.blockSource.GetBlock(ctx, canonical.Number)
		if err != nil {
			return nil, fmt.Errorf("fetch tip block %d: %w", canonical.Number, err)
		}
		if block == nil {
			return nil, ErrNotReady
		}
		return &protocol.ChainTip{BlockNumber: canonical.Number, ArchiveRoot: block.ArchiveRoot}, nil
	}

	committed, err := s.worldState.Committed(ctx)
	if err != nil {
		return nil, fmt.Errorf("committed world state: %w", err)
	}
	root, err := committed.ArchiveRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("genesis archive root: %w", err)
	}
	return &protocol.ChainTip{BlockNumber: canonical.Number, ArchiveRoot: root}, nil
}

// slotForProposal asks the publisher whether this operator proposes at the
// next Ethereum block. A nil claim means not our turn (or the chain
// advanced). A block-number disagreement between publisher and sequencer is
// a hard inconsistency.
func (s *Sequencer) slotForProposal(ctx context.Context, tipArchive common.Hash, expectedBlockNumber uint64) (*ProposerClaim, error) {
	claim, err := s.publisher.CanProposeAtNextEthBlock(ctx, tipArchive)
	if err != nil {
		return nil, fmt.Errorf("proposer eligibility: %w", err)
	}
	if claim == nil {
		return nil, ErrNotReady
	}
	if claim.BlockNumber != expectedBlockNumber {
		return nil, &InconsistentError{Expected: expectedBlockNumber, Actual: claim.BlockNumber}
	}
	return claim, nil
}
