package devnet

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/compose-network/sequencer/x/protocol"
	"github.com/compose-network/sequencer/x/sequencer"
	"github.com/compose-network/sequencer/x/slotclock"
)

// Publisher is a solo-mode publisher: the local operator proposes every
// slot, votes are accepted and dropped, and SendRequests commits the pending
// block straight onto the in-memory chain.
type Publisher struct {
	log   zerolog.Logger
	chain *Chain
	clock slotclock.Clock

	mu          sync.Mutex
	pending     *protocol.Block
	votes       int
	govPayload  []byte
	slashGetter sequencer.SlashPayloadGetter
	sender      common.Address
	onCommit    func(*protocol.Block)
}

// OnCommit registers a hook invoked after a block lands on the chain. The
// backend uses it to drain mined transactions from the pool.
func (p *Publisher) OnCommit(fn func(*protocol.Block)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCommit = fn
}

func NewPublisher(log zerolog.Logger, chain *Chain, clock slotclock.Clock, sender common.Address) *Publisher {
	return &Publisher{
		log:    log.With().Str("component", "devnet-publisher").Logger(),
		chain:  chain,
		clock:  clock,
		sender: sender,
	}
}

func (p *Publisher) CanProposeAtNextEthBlock(ctx context.Context, tipArchive common.Hash) (*sequencer.ProposerClaim, error) {
	if tipArchive != p.chain.TipArchiveRoot() {
		// The caller's view is stale; let it resynchronize.
		return nil, nil
	}
	return &sequencer.ProposerClaim{
		Slot:        p.clock.Current(),
		BlockNumber: p.chain.Head().Number + 1,
	}, nil
}

func (p *Publisher) ValidateBlockForSubmission(ctx context.Context, header protocol.ProposedBlockHeader) error {
	return nil
}

func (p *Publisher) EnqueueProposeL2Block(ctx context.Context, block *protocol.Block, attestations []protocol.Attestation, txHashes []common.Hash, opts sequencer.ProposeOptions) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = block
	return true, nil
}

func (p *Publisher) EnqueueCastVote(ctx context.Context, slot uint64, timestamp time.Time, vote protocol.VoteType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votes++
	return nil
}

func (p *Publisher) SendRequests(ctx context.Context) (*sequencer.PublishResult, error) {
	p.mu.Lock()
	block := p.pending
	p.pending = nil
	p.votes = 0
	p.mu.Unlock()

	if block == nil {
		return &sequencer.PublishResult{}, nil
	}

	p.chain.Append(block)
	p.log.Info().
		Uint64("block", block.Number()).
		Int("txs", len(block.TxHashes)).
		Msg("Devnet block committed")

	p.mu.Lock()
	onCommit := p.onCommit
	p.mu.Unlock()
	if onCommit != nil {
		onCommit(block)
	}
	return &sequencer.PublishResult{ValidActions: []string{"propose"}}, nil
}

func (p *Publisher) GetCurrentEpochCommittee(ctx context.Context) ([]common.Address, error) {
	// Solo-proposer mode: no committee, no attestations.
	return nil, nil
}

func (p *Publisher) GetSenderAddress() common.Address    { return p.sender }
func (p *Publisher) GetForwarderAddress() common.Address { return p.sender }

func (p *Publisher) SetGovernancePayload(payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.govPayload = payload
}

func (p *Publisher) RegisterSlashPayloadGetter(get sequencer.SlashPayloadGetter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slashGetter = get
}

func (p *Publisher) Interrupt() {}
func (p *Publisher) Restart()   {}
