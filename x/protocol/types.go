package protocol

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// ChainTip identifies the head of the L2 chain as seen by one data source.
// Archive-root equality across all sources is the synchronization predicate.
type ChainTip struct {
	BlockNumber uint64      `json:"block_number"`
	ArchiveRoot common.Hash `json:"archive_root"`
}

// BlockRef is a (number, hash) pair reported by a synchronizing source.
type BlockRef struct {
	Number uint64
	Hash   common.Hash
}

// GlobalVariables pins the execution environment for one slot. Immutable once
// built.
type GlobalVariables struct {
	ChainID         uint64         `json:"chain_id"`
	ProtocolVersion uint64         `json:"protocol_version"`
	BlockNumber     uint64         `json:"block_number"`
	SlotNumber      uint64         `json:"slot_number"`
	Timestamp       uint64         `json:"timestamp"`
	Coinbase        common.Address `json:"coinbase"`
	FeeRecipient    common.Address `json:"fee_recipient"`
}

// ProposedBlockHeader is the header as submitted for L1 validation before the
// block body exists. ContentCommitment and TotalManaUsed are placeholders
// until the builder finalizes the block.
type ProposedBlockHeader struct {
	GlobalVariables
	LastArchiveRoot   common.Hash `json:"last_archive_root"`
	ContentCommitment common.Hash `json:"content_commitment"`
	TotalManaUsed     uint64      `json:"total_mana_used"`
}

// Hash returns the keccak commitment to the header. Field order is fixed;
// changing it is a consensus break.
func (h ProposedBlockHeader) Hash() common.Hash {
	buf := make([]byte, 0, 8*6+common.AddressLength*2+common.HashLength*2+8)
	for _, v := range []uint64{
		h.ChainID, h.ProtocolVersion, h.BlockNumber, h.SlotNumber, h.Timestamp,
	} {
		buf = binary.BigEndian.AppendUint64(buf, v)
	}
	buf = append(buf, h.Coinbase.Bytes()...)
	buf = append(buf, h.FeeRecipient.Bytes()...)
	buf = append(buf, h.LastArchiveRoot.Bytes()...)
	buf = append(buf, h.ContentCommitment.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, h.TotalManaUsed)
	return common.BytesToHash(crypto.Keccak256(buf))
}

// Tx is an opaque pool transaction. Payload carries the encoded transaction;
// the core never decodes it.
type Tx struct {
	TxHash    common.Hash `json:"hash"`
	SizeBytes uint64      `json:"size_bytes"`
	Payload   []byte      `json:"payload"`
}

func (t Tx) Hash() common.Hash { return t.TxHash }

// ProcessedTx is a transaction that survived public processing together with
// the resources it consumed.
type ProcessedTx struct {
	Tx        Tx
	DAGasUsed uint64
	L2GasUsed uint64
	ManaUsed  uint64
}

// FailedTx records a transaction rejected during public processing.
type FailedTx struct {
	Tx     Tx
	Reason error
}

// UsedResources aggregates what a processing run consumed.
type UsedResources struct {
	DAGas     uint64
	L2Gas     uint64
	Mana      uint64
	SizeBytes uint64
}

// ProcessLimits bounds one public-processing run. A zero Deadline or a zero
// numeric field means unbounded; validator re-execution omits the caps.
type ProcessLimits struct {
	Deadline        time.Time
	MaxTransactions uint64
	MaxBlockSize    uint64
	MaxDAGas        uint64
	MaxL2Gas        uint64
}

// BlockBudget is the per-slot assembly budget derived from configuration.
type BlockBudget struct {
	MaxTxs                 uint64        `json:"max_txs"`
	MinTxs                 uint64        `json:"min_txs"`
	MaxBlockSizeBytes      uint64        `json:"max_block_size_bytes"`
	MaxDAGas               uint64        `json:"max_da_gas"`
	MaxL2Gas               uint64        `json:"max_l2_gas"`
	MaxL1InclusionIntoSlot time.Duration `json:"max_l1_inclusion_into_slot"`
}

// Block is a finalized L2 block candidate with its archive commitment.
type Block struct {
	Header      ProposedBlockHeader `json:"header"`
	ArchiveRoot common.Hash         `json:"archive_root"`
	TxHashes    []common.Hash       `json:"tx_hashes"`
	Txs         []Tx                `json:"-"`
}

// Number returns the block number from the header.
func (b *Block) Number() uint64 { return b.Header.BlockNumber }

// ProposeHeader returns the header as it must be re-validated against L1
// after assembly, with the commitment and mana fields filled in.
func (b *Block) ProposeHeader() ProposedBlockHeader { return b.Header }

// Attestation is a committee member's signature over a block proposal.
type Attestation struct {
	Signer    common.Address `json:"signer"`
	Signature []byte         `json:"signature"`
}

// BlockProposal is what gets broadcast to the committee for attestation.
// Txs is populated only when proposals ship with full bodies.
type BlockProposal struct {
	ID          uuid.UUID           `json:"id"`
	BlockNumber uint64              `json:"block_number"`
	SlotNumber  uint64              `json:"slot_number"`
	Header      ProposedBlockHeader `json:"header"`
	ArchiveRoot common.Hash         `json:"archive_root"`
	TxHashes    []common.Hash       `json:"tx_hashes"`
	Txs         []Tx                `json:"txs,omitempty"`
}

// PayloadHash commits to the proposal contents (not the ID), so two
// broadcasts of the same payload hash identically.
func (p *BlockProposal) PayloadHash() common.Hash {
	buf := make([]byte, 0, 8+common.HashLength*(2+len(p.TxHashes)))
	buf = binary.BigEndian.AppendUint64(buf, p.BlockNumber)
	h := p.Header.Hash()
	buf = append(buf, h.Bytes()...)
	buf = append(buf, p.ArchiveRoot.Bytes()...)
	for _, txh := range p.TxHashes {
		buf = append(buf, txh.Bytes()...)
	}
	return common.BytesToHash(crypto.Keccak256(buf))
}

// NewBlockProposal assembles a proposal from a built block.
func NewBlockProposal(b *Block, withTxs bool) *BlockProposal {
	p := &BlockProposal{
		ID:          uuid.New(),
		BlockNumber: b.Header.BlockNumber,
		SlotNumber:  b.Header.SlotNumber,
		Header:      b.Header,
		ArchiveRoot: b.ArchiveRoot,
		TxHashes:    append([]common.Hash(nil), b.TxHashes...),
	}
	if withTxs {
		p.Txs = append([]Tx(nil), b.Txs...)
	}
	return p
}

// RequiredAttestations returns the supermajority threshold for a committee:
// floor(2n/3)+1. Zero for an empty committee (solo-proposer mode).
func RequiredAttestations(committeeSize int) int {
	if committeeSize == 0 {
		return 0
	}
	return (2*committeeSize)/3 + 1
}

// VoteType distinguishes the per-slot votes bundled with a proposal.
type VoteType int

const (
	VoteGovernance VoteType = iota + 1
	VoteSlashing
)

func (v VoteType) String() string {
	switch v {
	case VoteGovernance:
		return "governance"
	case VoteSlashing:
		return "slashing"
	default:
		return "unknown"
	}
}
