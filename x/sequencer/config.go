package sequencer

import (
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/compose-network/sequencer/x/protocol"
)

// Config holds the sequencer core configuration. Fields are hot-reloadable
// through UpdateConfig; each loop iteration works against an atomic
// snapshot, and reassignment rebuilds the timetable. GenesisTime,
// InitialL2BlockNum, and the slot duration used by the slot clock are read
// once at construction; updates to them do not reach the clock or the sync
// gate.
type Config struct {
	// Rollup constants
	ChainID           uint64    `mapstructure:"chain_id"             yaml:"chain_id"`
	ProtocolVersion   uint64    `mapstructure:"protocol_version"     yaml:"protocol_version"`
	GenesisTime       time.Time `mapstructure:"genesis_time"         yaml:"genesis_time"`
	InitialL2BlockNum uint64    `mapstructure:"initial_l2_block_num" yaml:"initial_l2_block_num"`

	// Slot timing
	EthereumSlotDuration     time.Duration `mapstructure:"ethereum_slot_duration"       yaml:"ethereum_slot_duration"`
	L2SlotDuration           time.Duration `mapstructure:"l2_slot_duration"             yaml:"l2_slot_duration"`
	MaxL1TxInclusionIntoSlot time.Duration `mapstructure:"max_l1_tx_inclusion_into_slot" yaml:"max_l1_tx_inclusion_into_slot"`
	EnforceTimetable         bool          `mapstructure:"enforce_timetable"            yaml:"enforce_timetable"`

	// Loop cadence
	PollingInterval time.Duration `mapstructure:"polling_interval" yaml:"polling_interval"`

	// Block budgets
	MinTxsPerBlock    uint64 `mapstructure:"min_txs_per_block"    yaml:"min_txs_per_block"`
	MaxTxsPerBlock    uint64 `mapstructure:"max_txs_per_block"    yaml:"max_txs_per_block"`
	MaxDABlockGas     uint64 `mapstructure:"max_da_block_gas"     yaml:"max_da_block_gas"`
	MaxL2BlockGas     uint64 `mapstructure:"max_l2_block_gas"     yaml:"max_l2_block_gas"`
	MaxBlockSizeBytes uint64 `mapstructure:"max_block_size_bytes" yaml:"max_block_size_bytes"`

	// Rewards
	Coinbase     common.Address `mapstructure:"coinbase"      yaml:"coinbase"`
	FeeRecipient common.Address `mapstructure:"fee_recipient" yaml:"fee_recipient"`

	// Public-setup functions permitted during processing
	TxPublicSetupAllowList []string `mapstructure:"tx_public_setup_allow_list" yaml:"tx_public_setup_allow_list"`

	// Publication
	PublishTxsWithProposals   bool          `mapstructure:"publish_txs_with_proposals"  yaml:"publish_txs_with_proposals"`
	GovernanceProposerPayload hexutil.Bytes `mapstructure:"governance_proposer_payload" yaml:"governance_proposer_payload"`
}

// DefaultConfig returns sensible defaults for a testnet deployment.
func DefaultConfig() Config {
	return Config{
		ChainID:                  1,
		ProtocolVersion:          1,
		EthereumSlotDuration:     12 * time.Second,
		L2SlotDuration:           36 * time.Second,
		MaxL1TxInclusionIntoSlot: 12 * time.Second,
		EnforceTimetable:         true,
		PollingInterval:          500 * time.Millisecond,
		MinTxsPerBlock:           1,
		MaxTxsPerBlock:           32,
		MaxDABlockGas:            10_000_000,
		MaxL2BlockGas:            10_000_000,
		MaxBlockSizeBytes:        1 << 20,
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %s", c.PollingInterval)
	}
	if c.L2SlotDuration <= 0 {
		return fmt.Errorf("l2_slot_duration must be positive, got %s", c.L2SlotDuration)
	}
	if c.MaxTxsPerBlock == 0 {
		return fmt.Errorf("max_txs_per_block must be positive")
	}
	if c.MinTxsPerBlock > c.MaxTxsPerBlock {
		return fmt.Errorf("min_txs_per_block %d exceeds max_txs_per_block %d",
			c.MinTxsPerBlock, c.MaxTxsPerBlock)
	}
	if c.MaxL1TxInclusionIntoSlot <= 0 || c.MaxL1TxInclusionIntoSlot >= c.L2SlotDuration {
		return fmt.Errorf("max_l1_tx_inclusion_into_slot %s must be within the slot %s",
			c.MaxL1TxInclusionIntoSlot, c.L2SlotDuration)
	}
	return nil
}

// Timetable builds the phase budget decomposition for this configuration.
func (c *Config) Timetable() (*Timetable, error) {
	return NewTimetable(c.EthereumSlotDuration, c.L2SlotDuration, c.MaxL1TxInclusionIntoSlot, c.EnforceTimetable)
}

// Budget derives the per-slot assembly budget.
func (c *Config) Budget() protocol.BlockBudget {
	return protocol.BlockBudget{
		MaxTxs:                 c.MaxTxsPerBlock,
		MinTxs:                 c.MinTxsPerBlock,
		MaxBlockSizeBytes:      c.MaxBlockSizeBytes,
		MaxDAGas:               c.MaxDABlockGas,
		MaxL2Gas:               c.MaxL2BlockGas,
		MaxL1InclusionIntoSlot: c.MaxL1TxInclusionIntoSlot,
	}
}

// AllowListSet materializes the public-setup allow-list for membership checks.
func (c *Config) AllowListSet() mapset.Set[string] {
	set := mapset.NewSet[string]()
	for _, fn := range c.TxPublicSetupAllowList {
		set.Add(fn)
	}
	return set
}
