package protocol

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHeader() ProposedBlockHeader {
	return ProposedBlockHeader{
		GlobalVariables: GlobalVariables{
			ChainID:         1337,
			ProtocolVersion: 2,
			BlockNumber:     101,
			SlotNumber:      512,
			Timestamp:       1_700_000_000,
			Coinbase:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
			FeeRecipient:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
		},
		LastArchiveRoot: common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000001"),
	}
}

func TestProposedBlockHeaderHashDeterministic(t *testing.T) {
	t.Parallel()

	h := sampleHeader()
	require.Equal(t, h.Hash(), h.Hash())
	require.NotEqual(t, common.Hash{}, h.Hash())
}

func TestProposedBlockHeaderHashSensitivity(t *testing.T) {
	t.Parallel()

	base := sampleHeader()
	baseHash := base.Hash()

	tests := []struct {
		name   string
		mutate func(*ProposedBlockHeader)
	}{
		{"chain id", func(h *ProposedBlockHeader) { h.ChainID++ }},
		{"protocol version", func(h *ProposedBlockHeader) { h.ProtocolVersion++ }},
		{"block number", func(h *ProposedBlockHeader) { h.BlockNumber++ }},
		{"slot number", func(h *ProposedBlockHeader) { h.SlotNumber++ }},
		{"timestamp", func(h *ProposedBlockHeader) { h.Timestamp++ }},
		{"coinbase", func(h *ProposedBlockHeader) {
			h.Coinbase = common.HexToAddress("0x3333333333333333333333333333333333333333")
		}},
		{"fee recipient", func(h *ProposedBlockHeader) {
			h.FeeRecipient = common.HexToAddress("0x4444444444444444444444444444444444444444")
		}},
		{"last archive root", func(h *ProposedBlockHeader) { h.LastArchiveRoot[0] ^= 0xff }},
		{"content commitment", func(h *ProposedBlockHeader) { h.ContentCommitment[0] ^= 0xff }},
		{"mana used", func(h *ProposedBlockHeader) { h.TotalManaUsed++ }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := sampleHeader()
			tt.mutate(&h)
			assert.NotEqual(t, baseHash, h.Hash())
		})
	}
}

func TestRequiredAttestations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		committee int
		required  int
	}{
		{0, 0},
		{1, 1},
		{3, 3},
		{4, 3},
		{7, 5},
		{10, 7},
		{100, 67},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.required, RequiredAttestations(tt.committee), "committee=%d", tt.committee)
	}
}

func TestNewBlockProposal(t *testing.T) {
	t.Parallel()

	block := &Block{
		Header:      sampleHeader(),
		ArchiveRoot: common.HexToHash("0xdef"),
		TxHashes:    []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")},
		Txs: []Tx{
			{TxHash: common.HexToHash("0x01"), SizeBytes: 10},
			{TxHash: common.HexToHash("0x02"), SizeBytes: 20},
		},
	}

	withBodies := NewBlockProposal(block, true)
	require.Len(t, withBodies.Txs, 2)
	require.Equal(t, block.TxHashes, withBodies.TxHashes)
	require.Equal(t, uint64(101), withBodies.BlockNumber)

	hashesOnly := NewBlockProposal(block, false)
	require.Empty(t, hashesOnly.Txs)
	require.Equal(t, block.TxHashes, hashesOnly.TxHashes)

	// The ID is per-broadcast but the payload commitment is content-addressed.
	require.NotEqual(t, withBodies.ID, hashesOnly.ID)
	require.Equal(t, withBodies.PayloadHash(), hashesOnly.PayloadHash())
}

func TestVoteTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "governance", VoteGovernance.String())
	assert.Equal(t, "slashing", VoteSlashing.String())
	assert.Equal(t, "unknown", VoteType(9).String())
}
