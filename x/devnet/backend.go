package devnet

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/compose-network/sequencer/x/protocol"
	"github.com/compose-network/sequencer/x/sequencer"
	"github.com/compose-network/sequencer/x/slotclock"
)

// Backend bundles the in-memory collaborators for one devnet node.
type Backend struct {
	Chain      *Chain
	Publisher  *Publisher
	Validator  *ValidatorClient
	Pool       *TxPool
	WorldState *WorldState
	Blocks     *BlockSource
	Messages   *MessageSource
	Processors *ProcessorFactory
	Builders   *BuilderFactory
}

// NewBackend wires a complete devnet backend around one shared chain.
func NewBackend(log zerolog.Logger, clock slotclock.Clock, sender common.Address) *Backend {
	chain := NewChain()
	b := &Backend{
		Chain:      chain,
		Publisher:  NewPublisher(log, chain, clock, sender),
		Validator:  &ValidatorClient{address: sender},
		Pool:       NewTxPool(chain),
		WorldState: &WorldState{chain: chain},
		Blocks:     &BlockSource{chain: chain},
		Messages:   &MessageSource{chain: chain},
		Processors: &ProcessorFactory{},
		Builders:   &BuilderFactory{},
	}
	b.Publisher.OnCommit(func(block *protocol.Block) {
		b.Pool.Mined(block.TxHashes)
	})
	return b
}

// Options returns the sequencer options wiring this backend.
func (b *Backend) Options() []sequencer.Option {
	return []sequencer.Option{
		sequencer.WithPublisher(b.Publisher),
		sequencer.WithValidatorClient(b.Validator),
		sequencer.WithTxPool(b.Pool),
		sequencer.WithWorldState(b.WorldState),
		sequencer.WithBlockSource(b.Blocks),
		sequencer.WithMessageSource(b.Messages),
		sequencer.WithProcessorFactory(b.Processors),
		sequencer.WithBuilderFactory(b.Builders),
		sequencer.WithTxValidatorFactory(NewTxValidator),
	}
}

// ValidatorClient is a no-op gossip layer for a solo node.
type ValidatorClient struct {
	mu      sync.Mutex
	address common.Address
	builder sequencer.BlockBuilderCallback
}

func (v *ValidatorClient) ValidatorAddress() common.Address { return v.address }

func (v *ValidatorClient) RegisterBlockBuilder(build sequencer.BlockBuilderCallback) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.builder = build
}

func (v *ValidatorClient) CreateBlockProposal(ctx context.Context, blockNumber uint64, header protocol.ProposedBlockHeader, archiveRoot common.Hash, txs []protocol.Tx, opts sequencer.ProposalOptions) (*protocol.BlockProposal, error) {
	block := &protocol.Block{Header: header, ArchiveRoot: archiveRoot, Txs: txs}
	for _, tx := range txs {
		block.TxHashes = append(block.TxHashes, tx.Hash())
	}
	return protocol.NewBlockProposal(block, opts.PublishTxs), nil
}

func (v *ValidatorClient) BroadcastBlockProposal(ctx context.Context, proposal *protocol.BlockProposal) error {
	return nil
}

func (v *ValidatorClient) CollectAttestations(ctx context.Context, proposal *protocol.BlockProposal, required int, deadline time.Time) ([]protocol.Attestation, error) {
	return nil, nil
}

func (v *ValidatorClient) Stop(ctx context.Context) error { return nil }

// TxPool is a FIFO in-memory pool; Inject feeds it from the admin API.
type TxPool struct {
	chain *Chain

	mu      sync.Mutex
	pending []protocol.Tx
}

func NewTxPool(chain *Chain) *TxPool {
	return &TxPool{chain: chain}
}

// Inject adds a raw payload to the pool and returns its hash.
func (p *TxPool) Inject(payload []byte) common.Hash {
	tx := protocol.Tx{
		TxHash:    common.BytesToHash(crypto.Keccak256(payload)),
		SizeBytes: uint64(len(payload)),
		Payload:   append([]byte(nil), payload...),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, tx)
	return tx.TxHash
}

func (p *TxPool) PendingTxCount(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(len(p.pending)), nil
}

func (p *TxPool) PendingTxs(ctx context.Context, max uint64) ([]protocol.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	txs := p.pending
	if uint64(len(txs)) > max {
		txs = txs[:max]
	}
	return append([]protocol.Tx(nil), txs...), nil
}

func (p *TxPool) DeleteTxs(ctx context.Context, hashes []common.Hash) error {
	drop := make(map[common.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		drop[h] = struct{}{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.pending[:0]
	for _, tx := range p.pending {
		if _, ok := drop[tx.Hash()]; !ok {
			kept = append(kept, tx)
		}
	}
	p.pending = kept
	return nil
}

func (p *TxPool) Status(ctx context.Context) (*sequencer.PoolStatus, error) {
	return &sequencer.PoolStatus{SyncedToL2Block: p.chain.Head()}, nil
}

// Mined removes committed transactions once a block lands.
func (p *TxPool) Mined(hashes []common.Hash) {
	_ = p.DeleteTxs(context.Background(), hashes)
}

// WorldState tracks the chain head directly; forks are cheap snapshots.
type WorldState struct {
	chain *Chain
}

func (w *WorldState) Status(ctx context.Context) (*sequencer.WorldStateStatus, error) {
	head := w.chain.Head()
	return &sequencer.WorldStateStatus{
		LatestBlockNumber: head.Number,
		LatestBlockHash:   head.Hash,
	}, nil
}

func (w *WorldState) SyncImmediate(ctx context.Context, block uint64, wait bool) (uint64, error) {
	return w.chain.Head().Number, nil
}

func (w *WorldState) Fork(ctx context.Context, block uint64) (sequencer.Fork, error) {
	// InitialHeader carries the archive root at the fork point so the
	// builder can chain the next block from it.
	header := protocol.ProposedBlockHeader{LastArchiveRoot: w.chain.GenesisRoot()}
	if b := w.chain.Block(block); b != nil {
		header = b.Header
		header.LastArchiveRoot = b.ArchiveRoot
	}
	return &memFork{header: header}, nil
}

func (w *WorldState) Committed(ctx context.Context) (sequencer.CommittedView, error) {
	return &committedView{root: w.chain.GenesisRoot()}, nil
}

type memFork struct {
	header protocol.ProposedBlockHeader
}

func (f *memFork) InitialHeader(ctx context.Context) (protocol.ProposedBlockHeader, error) {
	return f.header, nil
}

func (f *memFork) Close() error { return nil }

type committedView struct {
	root common.Hash
}

func (v *committedView) ArchiveRoot(ctx context.Context) (common.Hash, error) {
	return v.root, nil
}

// BlockSource serves the in-memory chain.
type BlockSource struct {
	chain *Chain
}

func (b *BlockSource) GetBlock(ctx context.Context, number uint64) (*protocol.Block, error) {
	return b.chain.Block(number), nil
}

func (b *BlockSource) L2Tips(ctx context.Context) (*sequencer.L2Tips, error) {
	return &sequencer.L2Tips{Latest: b.chain.Head()}, nil
}

// MessageSource carries no cross-domain messages on a devnet.
type MessageSource struct {
	chain *Chain
}

func (m *MessageSource) L1ToL2Messages(ctx context.Context, blockNumber uint64) ([]common.Hash, error) {
	return nil, nil
}

func (m *MessageSource) L2Tips(ctx context.Context) (*sequencer.L2Tips, error) {
	return &sequencer.L2Tips{Latest: m.chain.Head()}, nil
}
