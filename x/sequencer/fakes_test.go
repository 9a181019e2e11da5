package sequencer

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/sequencer/x/protocol"
)

// Hand-written fakes for the collaborator interfaces. The publisher,
// validator client, pool, world state, and processor fakes record their
// calls so tests can assert ordering and arguments.

type enqueuedBlock struct {
	block        *protocol.Block
	attestations []protocol.Attestation
	txHashes     []common.Hash
	opts         ProposeOptions
}

type voteCall struct {
	slot      uint64
	timestamp time.Time
	vote      protocol.VoteType
}

type fakePublisher struct {
	mu sync.Mutex

	claim    *ProposerClaim
	claimErr error

	// validateErrs is consumed one per ValidateBlockForSubmission call; nil
	// entries mean success. Calls past the end succeed.
	validateErrs  []error
	validateCalls int

	committee    []common.Address
	committeeErr error

	enqueueOK  bool
	enqueueErr error
	enqueued   []enqueuedBlock

	votes   []voteCall
	voteErr error

	sendResult *PublishResult
	sendErr    error
	sendCalls  int

	sender      common.Address
	forwarder   common.Address
	govPayload  []byte
	slashGetter SlashPayloadGetter
	interrupted bool
	restarted   bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		enqueueOK:  true,
		sendResult: &PublishResult{ValidActions: []string{"propose"}},
		sender:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	}
}

func (p *fakePublisher) CanProposeAtNextEthBlock(ctx context.Context, tipArchive common.Hash) (*ProposerClaim, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claim, p.claimErr
}

func (p *fakePublisher) ValidateBlockForSubmission(ctx context.Context, header protocol.ProposedBlockHeader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := p.validateCalls
	p.validateCalls++
	if call < len(p.validateErrs) {
		return p.validateErrs[call]
	}
	return nil
}

func (p *fakePublisher) EnqueueProposeL2Block(ctx context.Context, block *protocol.Block, attestations []protocol.Attestation, txHashes []common.Hash, opts ProposeOptions) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enqueueErr != nil {
		return false, p.enqueueErr
	}
	if !p.enqueueOK {
		return false, nil
	}
	p.enqueued = append(p.enqueued, enqueuedBlock{
		block:        block,
		attestations: attestations,
		txHashes:     txHashes,
		opts:         opts,
	})
	return true, nil
}

func (p *fakePublisher) EnqueueCastVote(ctx context.Context, slot uint64, timestamp time.Time, vote protocol.VoteType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.voteErr != nil {
		return p.voteErr
	}
	p.votes = append(p.votes, voteCall{slot: slot, timestamp: timestamp, vote: vote})
	return nil
}

func (p *fakePublisher) SendRequests(ctx context.Context) (*PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendCalls++
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	if len(p.enqueued) == 0 {
		return &PublishResult{}, nil
	}
	return p.sendResult, nil
}

func (p *fakePublisher) GetCurrentEpochCommittee(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committee, p.committeeErr
}

func (p *fakePublisher) GetSenderAddress() common.Address    { return p.sender }
func (p *fakePublisher) GetForwarderAddress() common.Address { return p.forwarder }

func (p *fakePublisher) SetGovernancePayload(payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.govPayload = payload
}

func (p *fakePublisher) RegisterSlashPayloadGetter(get SlashPayloadGetter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slashGetter = get
}

func (p *fakePublisher) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupted = true
}

func (p *fakePublisher) Restart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restarted = true
}

func (p *fakePublisher) enqueuedBlocks() []enqueuedBlock {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]enqueuedBlock(nil), p.enqueued...)
}

func (p *fakePublisher) voteCalls() []voteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]voteCall(nil), p.votes...)
}

type fakeValidatorClient struct {
	mu sync.Mutex

	builder    BlockBuilderCallback
	address    common.Address
	broadcasts []*protocol.BlockProposal

	// attestations returned by CollectAttestations; collectErr wins.
	attestations []protocol.Attestation
	collectErr   error
	collected    []struct {
		required int
		deadline time.Time
	}

	proposalErr error
	stopped     bool
}

func (v *fakeValidatorClient) ValidatorAddress() common.Address { return v.address }

func (v *fakeValidatorClient) RegisterBlockBuilder(build BlockBuilderCallback) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.builder = build
}

func (v *fakeValidatorClient) CreateBlockProposal(ctx context.Context, blockNumber uint64, header protocol.ProposedBlockHeader, archiveRoot common.Hash, txs []protocol.Tx, opts ProposalOptions) (*protocol.BlockProposal, error) {
	if v.proposalErr != nil {
		return nil, v.proposalErr
	}
	block := &protocol.Block{Header: header, ArchiveRoot: archiveRoot, Txs: txs}
	for _, tx := range txs {
		block.TxHashes = append(block.TxHashes, tx.Hash())
	}
	return protocol.NewBlockProposal(block, opts.PublishTxs), nil
}

func (v *fakeValidatorClient) BroadcastBlockProposal(ctx context.Context, proposal *protocol.BlockProposal) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.broadcasts = append(v.broadcasts, proposal)
	return nil
}

func (v *fakeValidatorClient) CollectAttestations(ctx context.Context, proposal *protocol.BlockProposal, required int, deadline time.Time) ([]protocol.Attestation, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.collected = append(v.collected, struct {
		required int
		deadline time.Time
	}{required, deadline})
	if v.collectErr != nil {
		return nil, v.collectErr
	}
	return append([]protocol.Attestation(nil), v.attestations...), nil
}

func (v *fakeValidatorClient) Stop(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped = true
	return nil
}

type fakeTxPool struct {
	mu sync.Mutex

	pending   []protocol.Tx
	countErr  error
	deleted   [][]common.Hash
	deleteErr error
	status    *PoolStatus
	statusErr error
}

func (p *fakeTxPool) PendingTxCount(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return uint64(len(p.pending)), p.countErr
}

func (p *fakeTxPool) PendingTxs(ctx context.Context, max uint64) ([]protocol.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	txs := p.pending
	if uint64(len(txs)) > max {
		txs = txs[:max]
	}
	return append([]protocol.Tx(nil), txs...), nil
}

func (p *fakeTxPool) DeleteTxs(ctx context.Context, hashes []common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deleted = append(p.deleted, append([]common.Hash(nil), hashes...))
	return nil
}

func (p *fakeTxPool) Status(ctx context.Context) (*PoolStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.statusErr
}

type fakeFork struct {
	mu     sync.Mutex
	closed bool
	header protocol.ProposedBlockHeader
}

func (f *fakeFork) InitialHeader(ctx context.Context) (protocol.ProposedBlockHeader, error) {
	return f.header, nil
}

func (f *fakeFork) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFork) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeCommittedView struct {
	root common.Hash
}

func (v *fakeCommittedView) ArchiveRoot(ctx context.Context) (common.Hash, error) {
	return v.root, nil
}

type fakeWorldState struct {
	mu sync.Mutex

	status    *WorldStateStatus
	statusErr error
	forks     []*fakeFork
	forkErr   error
	committed common.Hash
	syncCalls int
}

func (w *fakeWorldState) Status(ctx context.Context) (*WorldStateStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.statusErr
}

func (w *fakeWorldState) SyncImmediate(ctx context.Context, block uint64, wait bool) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncCalls++
	return w.status.LatestBlockNumber, nil
}

func (w *fakeWorldState) Fork(ctx context.Context, block uint64) (Fork, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.forkErr != nil {
		return nil, w.forkErr
	}
	f := &fakeFork{}
	w.forks = append(w.forks, f)
	return f, nil
}

func (w *fakeWorldState) Committed(ctx context.Context) (CommittedView, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &fakeCommittedView{root: w.committed}, nil
}

func (w *fakeWorldState) openForks() []*fakeFork {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*fakeFork(nil), w.forks...)
}

type fakeBlockSource struct {
	tips    *L2Tips
	tipsErr error
	blocks  map[uint64]*protocol.Block
}

func (b *fakeBlockSource) GetBlock(ctx context.Context, number uint64) (*protocol.Block, error) {
	return b.blocks[number], nil
}

func (b *fakeBlockSource) L2Tips(ctx context.Context) (*L2Tips, error) {
	return b.tips, b.tipsErr
}

type fakeMsgSource struct {
	tips *L2Tips
	msgs []common.Hash
}

func (m *fakeMsgSource) L1ToL2Messages(ctx context.Context, blockNumber uint64) ([]common.Hash, error) {
	return m.msgs, nil
}

func (m *fakeMsgSource) L2Tips(ctx context.Context) (*L2Tips, error) {
	return m.tips, nil
}

// fakeProcessor succeeds every transaction unless failHashes marks it.
type fakeProcessor struct {
	factory    *fakeProcessorFactory
	isProposer bool
}

type fakeProcessorFactory struct {
	mu sync.Mutex

	failHashes mapset.Set[common.Hash]
	processErr error
	created    []bool // isProposer per Create call
	limits     []protocol.ProcessLimits
}

func newFakeProcessorFactory() *fakeProcessorFactory {
	return &fakeProcessorFactory{failHashes: mapset.NewSet[common.Hash]()}
}

func (f *fakeProcessorFactory) Create(fork Fork, globals protocol.GlobalVariables, isProposer bool) PublicProcessor {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, isProposer)
	return &fakeProcessor{factory: f, isProposer: isProposer}
}

func (p *fakeProcessor) Process(ctx context.Context, txs []protocol.Tx, limits protocol.ProcessLimits, validator TxValidator) ([]protocol.ProcessedTx, []protocol.FailedTx, protocol.UsedResources, error) {
	f := p.factory
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limits)
	if f.processErr != nil {
		return nil, nil, protocol.UsedResources{}, f.processErr
	}

	var processed []protocol.ProcessedTx
	var failed []protocol.FailedTx
	var used protocol.UsedResources
	for _, tx := range txs {
		if f.failHashes.Contains(tx.Hash()) {
			failed = append(failed, protocol.FailedTx{Tx: tx})
			continue
		}
		processed = append(processed, protocol.ProcessedTx{Tx: tx, L2GasUsed: 1000, ManaUsed: 100})
		used.L2Gas += 1000
		used.Mana += 100
		used.SizeBytes += tx.SizeBytes
	}
	return processed, failed, used, nil
}

type fakeBuilder struct {
	factory *fakeBuilderFactory
	globals protocol.GlobalVariables
	prev    protocol.ProposedBlockHeader
	txs     []protocol.ProcessedTx
}

type fakeBuilderFactory struct {
	mu          sync.Mutex
	archiveRoot common.Hash
	created     int
	completeErr error
}

func (f *fakeBuilderFactory) Create(fork Fork) BlockBuilder {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &fakeBuilder{factory: f}
}

func (b *fakeBuilder) StartNewBlock(ctx context.Context, globals protocol.GlobalVariables, l1ToL2Messages []common.Hash, prevHeader protocol.ProposedBlockHeader) error {
	b.globals = globals
	b.prev = prevHeader
	return nil
}

func (b *fakeBuilder) AddTxs(ctx context.Context, txs []protocol.ProcessedTx) error {
	b.txs = append(b.txs, txs...)
	return nil
}

func (b *fakeBuilder) SetBlockCompleted(ctx context.Context) (*protocol.Block, error) {
	if b.factory.completeErr != nil {
		return nil, b.factory.completeErr
	}

	var mana uint64
	block := &protocol.Block{
		Header: protocol.ProposedBlockHeader{
			GlobalVariables: b.globals,
			LastArchiveRoot: b.prev.LastArchiveRoot,
		},
		ArchiveRoot: b.factory.archiveRoot,
	}
	for _, tx := range b.txs {
		block.TxHashes = append(block.TxHashes, tx.Tx.Hash())
		block.Txs = append(block.Txs, tx.Tx)
		mana += tx.ManaUsed
	}
	block.Header.TotalManaUsed = mana
	block.Header.ContentCommitment = b.factory.archiveRoot
	return block, nil
}
