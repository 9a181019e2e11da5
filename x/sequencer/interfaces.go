package sequencer

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/sequencer/x/protocol"
)

// The sequencer core consumes these interfaces; it implements none of them.
// All collaborators are assumed internally thread-safe.

// ProposerClaim is the publisher's answer when this operator may propose at
// the next Ethereum block.
type ProposerClaim struct {
	Slot        uint64
	BlockNumber uint64
}

// ProposeOptions carries per-enqueue publication parameters.
type ProposeOptions struct {
	// TxTimeoutAt abandons the L1 transaction if not mined by this time.
	TxTimeoutAt time.Time
}

// PublishResult reports which enqueued actions the publisher landed on L1.
type PublishResult struct {
	ValidActions []string
}

// SlashPayloadGetter supplies the slashing vote payload for a slot.
type SlashPayloadGetter func(ctx context.Context, slot uint64) ([]byte, error)

// Publisher batches L1 requests: block proposals and governance/slashing
// votes are enqueued independently and flushed together by SendRequests.
type Publisher interface {
	CanProposeAtNextEthBlock(ctx context.Context, tipArchive common.Hash) (*ProposerClaim, error)
	ValidateBlockForSubmission(ctx context.Context, header protocol.ProposedBlockHeader) error
	EnqueueProposeL2Block(ctx context.Context, block *protocol.Block, attestations []protocol.Attestation, txHashes []common.Hash, opts ProposeOptions) (bool, error)
	EnqueueCastVote(ctx context.Context, slot uint64, timestamp time.Time, vote protocol.VoteType) error
	SendRequests(ctx context.Context) (*PublishResult, error)
	GetCurrentEpochCommittee(ctx context.Context) ([]common.Address, error)
	GetSenderAddress() common.Address
	GetForwarderAddress() common.Address
	SetGovernancePayload(payload []byte)
	RegisterSlashPayloadGetter(get SlashPayloadGetter)
	Interrupt()
	Restart()
}

// ProposalOptions controls proposal construction.
type ProposalOptions struct {
	// PublishTxs includes full transaction bodies in the broadcast proposal.
	PublishTxs bool
}

// BuildOptions parameterizes a validator-triggered re-execution.
type BuildOptions struct {
	// Deadline bounds public processing; zero means unbounded.
	Deadline time.Time
}

// BuildResult is what a re-execution hands back for attestation.
type BuildResult struct {
	Block  *protocol.Block
	Failed []protocol.FailedTx
}

// BlockBuilderCallback rebuilds a block from a foreign proposal. The
// sequencer registers its implementation on the validator client at
// construction.
type BlockBuilderCallback func(ctx context.Context, blockNumber uint64, header protocol.ProposedBlockHeader, txs []protocol.Tx, opts BuildOptions) (*BuildResult, error)

// ValidatorClient handles proposal gossip and attestation collection.
type ValidatorClient interface {
	ValidatorAddress() common.Address
	RegisterBlockBuilder(build BlockBuilderCallback)
	CreateBlockProposal(ctx context.Context, blockNumber uint64, header protocol.ProposedBlockHeader, archiveRoot common.Hash, txs []protocol.Tx, opts ProposalOptions) (*protocol.BlockProposal, error)
	BroadcastBlockProposal(ctx context.Context, proposal *protocol.BlockProposal) error
	CollectAttestations(ctx context.Context, proposal *protocol.BlockProposal, required int, deadline time.Time) ([]protocol.Attestation, error)
	Stop(ctx context.Context) error
}

// PoolStatus reports the peer network's view of the chain tip.
type PoolStatus struct {
	SyncedToL2Block protocol.BlockRef
}

// TxPool is the peer-network transaction pool.
type TxPool interface {
	PendingTxCount(ctx context.Context) (uint64, error)
	// PendingTxs returns up to max pending transactions in pool order.
	PendingTxs(ctx context.Context, max uint64) ([]protocol.Tx, error)
	DeleteTxs(ctx context.Context, hashes []common.Hash) error
	Status(ctx context.Context) (*PoolStatus, error)
}

// WorldStateStatus summarizes the synchronizer's progress.
type WorldStateStatus struct {
	LatestBlockNumber uint64
	LatestBlockHash   common.Hash
}

// Fork is a copy-on-write view over world state. Never merged back.
type Fork interface {
	InitialHeader(ctx context.Context) (protocol.ProposedBlockHeader, error)
	Close() error
}

// CommittedView is a read-only view over the committed world state.
type CommittedView interface {
	ArchiveRoot(ctx context.Context) (common.Hash, error)
}

// WorldState is the world-state synchronizer and fork factory.
type WorldState interface {
	Status(ctx context.Context) (*WorldStateStatus, error)
	// SyncImmediate drives the synchronizer to the given block; with wait it
	// blocks until caught up. Returns the latest synced block number.
	SyncImmediate(ctx context.Context, block uint64, wait bool) (uint64, error)
	Fork(ctx context.Context, block uint64) (Fork, error)
	Committed(ctx context.Context) (CommittedView, error)
}

// L2Tips is a source's view of the canonical chain tips.
type L2Tips struct {
	Latest protocol.BlockRef
}

// L2BlockSource serves canonical L2 blocks. GetBlock returns nil when the
// block is not yet available.
type L2BlockSource interface {
	GetBlock(ctx context.Context, number uint64) (*protocol.Block, error)
	L2Tips(ctx context.Context) (*L2Tips, error)
}

// L1ToL2MessageSource serves cross-domain messages to include in a block.
type L1ToL2MessageSource interface {
	L1ToL2Messages(ctx context.Context, blockNumber uint64) ([]common.Hash, error)
	L2Tips(ctx context.Context) (*L2Tips, error)
}

// TxValidator vets a pool transaction against the forked state before
// public execution.
type TxValidator interface {
	Validate(ctx context.Context, tx protocol.Tx) error
}

// TxValidatorFactory builds a per-slot transaction validator from the fork,
// the slot globals, and the public-setup allow-list.
type TxValidatorFactory func(fork Fork, globals protocol.GlobalVariables, allowList mapset.Set[string]) TxValidator

// PublicProcessor replays the public portion of each transaction against a
// fork under the given limits.
type PublicProcessor interface {
	Process(ctx context.Context, txs []protocol.Tx, limits protocol.ProcessLimits, validator TxValidator) (processed []protocol.ProcessedTx, failed []protocol.FailedTx, used protocol.UsedResources, err error)
}

// ProcessorFactory builds a per-slot public processor bound to a fork.
// Validator mode (isProposer false) omits the budget caps.
type ProcessorFactory interface {
	Create(fork Fork, globals protocol.GlobalVariables, isProposer bool) PublicProcessor
}

// BlockBuilder inserts processed transactions into the orchestrator fork's
// trees and pads the block to its fixed shape.
type BlockBuilder interface {
	StartNewBlock(ctx context.Context, globals protocol.GlobalVariables, l1ToL2Messages []common.Hash, prevHeader protocol.ProposedBlockHeader) error
	AddTxs(ctx context.Context, txs []protocol.ProcessedTx) error
	SetBlockCompleted(ctx context.Context) (*protocol.Block, error)
}

// BuilderFactory builds a per-slot block builder bound to a fork.
type BuilderFactory interface {
	Create(fork Fork) BlockBuilder
}
