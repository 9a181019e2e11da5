package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	apisrv "github.com/compose-network/sequencer/server/api"
	"github.com/compose-network/sequencer/x/sequencer"
)

// Config holds the complete application configuration
type Config struct {
	Sequencer SequencerConfig `mapstructure:"sequencer" yaml:"sequencer"`
	API       apisrv.Config   `mapstructure:"api"       yaml:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
	Log       LogConfig       `mapstructure:"log"       yaml:"log"`
}

// SequencerConfig mirrors sequencer.Config with file-friendly field types;
// Core converts it.
type SequencerConfig struct {
	ChainID           uint64 `mapstructure:"chain_id"             yaml:"chain_id"             env:"SEQ_CHAIN_ID"`
	ProtocolVersion   uint64 `mapstructure:"protocol_version"     yaml:"protocol_version"     env:"SEQ_PROTOCOL_VERSION"`
	GenesisUnixTime   int64  `mapstructure:"genesis_unix_time"    yaml:"genesis_unix_time"    env:"SEQ_GENESIS_UNIX_TIME"`
	InitialL2BlockNum uint64 `mapstructure:"initial_l2_block_num" yaml:"initial_l2_block_num" env:"SEQ_INITIAL_L2_BLOCK_NUM"`

	EthereumSlotDuration     time.Duration `mapstructure:"ethereum_slot_duration"        yaml:"ethereum_slot_duration"        env:"SEQ_ETHEREUM_SLOT_DURATION"`
	L2SlotDuration           time.Duration `mapstructure:"l2_slot_duration"              yaml:"l2_slot_duration"              env:"SEQ_L2_SLOT_DURATION"`
	MaxL1TxInclusionIntoSlot time.Duration `mapstructure:"max_l1_tx_inclusion_into_slot" yaml:"max_l1_tx_inclusion_into_slot" env:"SEQ_MAX_L1_TX_INCLUSION_INTO_SLOT"`
	EnforceTimetable         bool          `mapstructure:"enforce_timetable"             yaml:"enforce_timetable"             env:"SEQ_ENFORCE_TIMETABLE"`

	PollingInterval time.Duration `mapstructure:"polling_interval" yaml:"polling_interval" env:"SEQ_POLLING_INTERVAL"`

	MinTxsPerBlock    uint64 `mapstructure:"min_txs_per_block"    yaml:"min_txs_per_block"    env:"SEQ_MIN_TXS_PER_BLOCK"`
	MaxTxsPerBlock    uint64 `mapstructure:"max_txs_per_block"    yaml:"max_txs_per_block"    env:"SEQ_MAX_TXS_PER_BLOCK"`
	MaxDABlockGas     uint64 `mapstructure:"max_da_block_gas"     yaml:"max_da_block_gas"     env:"SEQ_MAX_DA_BLOCK_GAS"`
	MaxL2BlockGas     uint64 `mapstructure:"max_l2_block_gas"     yaml:"max_l2_block_gas"     env:"SEQ_MAX_L2_BLOCK_GAS"`
	MaxBlockSizeBytes uint64 `mapstructure:"max_block_size_bytes" yaml:"max_block_size_bytes" env:"SEQ_MAX_BLOCK_SIZE_BYTES"`

	Coinbase     string `mapstructure:"coinbase"      yaml:"coinbase"      env:"SEQ_COINBASE"`
	FeeRecipient string `mapstructure:"fee_recipient" yaml:"fee_recipient" env:"SEQ_FEE_RECIPIENT"`

	TxPublicSetupAllowList []string `mapstructure:"tx_public_setup_allow_list" yaml:"tx_public_setup_allow_list"`

	PublishTxsWithProposals   bool   `mapstructure:"publish_txs_with_proposals"  yaml:"publish_txs_with_proposals"  env:"SEQ_PUBLISH_TXS_WITH_PROPOSALS"`
	GovernanceProposerPayload string `mapstructure:"governance_proposer_payload" yaml:"governance_proposer_payload" env:"SEQ_GOVERNANCE_PROPOSER_PAYLOAD"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	core := sequencer.DefaultConfig()

	v.SetDefault("sequencer.chain_id", core.ChainID)
	v.SetDefault("sequencer.protocol_version", core.ProtocolVersion)
	v.SetDefault("sequencer.genesis_unix_time", 0)
	v.SetDefault("sequencer.initial_l2_block_num", 0)
	v.SetDefault("sequencer.ethereum_slot_duration", core.EthereumSlotDuration)
	v.SetDefault("sequencer.l2_slot_duration", core.L2SlotDuration)
	v.SetDefault("sequencer.max_l1_tx_inclusion_into_slot", core.MaxL1TxInclusionIntoSlot)
	v.SetDefault("sequencer.enforce_timetable", core.EnforceTimetable)
	v.SetDefault("sequencer.polling_interval", core.PollingInterval)
	v.SetDefault("sequencer.min_txs_per_block", core.MinTxsPerBlock)
	v.SetDefault("sequencer.max_txs_per_block", core.MaxTxsPerBlock)
	v.SetDefault("sequencer.max_da_block_gas", core.MaxDABlockGas)
	v.SetDefault("sequencer.max_l2_block_gas", core.MaxL2BlockGas)
	v.SetDefault("sequencer.max_block_size_bytes", core.MaxBlockSizeBytes)
	v.SetDefault("sequencer.coinbase", "")
	v.SetDefault("sequencer.fee_recipient", "")
	v.SetDefault("sequencer.tx_public_setup_allow_list", []string{})
	v.SetDefault("sequencer.publish_txs_with_proposals", false)
	v.SetDefault("sequencer.governance_proposer_payload", "")

	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)
	v.SetDefault("api.cors_enabled", false)
	v.SetDefault("api.quiet_paths", []string{"/health", "/metrics"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Sequencer.Coinbase != "" && !common.IsHexAddress(c.Sequencer.Coinbase) {
		return fmt.Errorf("sequencer.coinbase is not a hex address: %s", c.Sequencer.Coinbase)
	}
	if c.Sequencer.FeeRecipient != "" && !common.IsHexAddress(c.Sequencer.FeeRecipient) {
		return fmt.Errorf("sequencer.fee_recipient is not a hex address: %s", c.Sequencer.FeeRecipient)
	}

	core, err := c.Sequencer.Core()
	if err != nil {
		return err
	}
	return core.Validate()
}

// Core converts the file-friendly sequencer section into the core config.
func (s *SequencerConfig) Core() (sequencer.Config, error) {
	core := sequencer.Config{
		ChainID:                  s.ChainID,
		ProtocolVersion:          s.ProtocolVersion,
		InitialL2BlockNum:        s.InitialL2BlockNum,
		EthereumSlotDuration:     s.EthereumSlotDuration,
		L2SlotDuration:           s.L2SlotDuration,
		MaxL1TxInclusionIntoSlot: s.MaxL1TxInclusionIntoSlot,
		EnforceTimetable:         s.EnforceTimetable,
		PollingInterval:          s.PollingInterval,
		MinTxsPerBlock:           s.MinTxsPerBlock,
		MaxTxsPerBlock:           s.MaxTxsPerBlock,
		MaxDABlockGas:            s.MaxDABlockGas,
		MaxL2BlockGas:            s.MaxL2BlockGas,
		MaxBlockSizeBytes:        s.MaxBlockSizeBytes,
		TxPublicSetupAllowList:   s.TxPublicSetupAllowList,
		PublishTxsWithProposals:  s.PublishTxsWithProposals,
	}

	if s.GenesisUnixTime > 0 {
		core.GenesisTime = time.Unix(s.GenesisUnixTime, 0)
	} else {
		core.GenesisTime = time.Now()
	}
	if s.Coinbase != "" {
		core.Coinbase = common.HexToAddress(s.Coinbase)
	}
	if s.FeeRecipient != "" {
		core.FeeRecipient = common.HexToAddress(s.FeeRecipient)
	}
	if s.GovernanceProposerPayload != "" {
		payload := strings.TrimPrefix(s.GovernanceProposerPayload, "0x")
		decoded := common.FromHex("0x" + payload)
		if len(decoded) == 0 {
			return core, fmt.Errorf("governance_proposer_payload is not valid hex")
		}
		core.GovernanceProposerPayload = decoded
	}

	return core, nil
}

// Default returns default configuration
func Default() *Config {
	core := sequencer.DefaultConfig()
	return &Config{
		Sequencer: SequencerConfig{
			ChainID:                  core.ChainID,
			ProtocolVersion:          core.ProtocolVersion,
			EthereumSlotDuration:     core.EthereumSlotDuration,
			L2SlotDuration:           core.L2SlotDuration,
			MaxL1TxInclusionIntoSlot: core.MaxL1TxInclusionIntoSlot,
			EnforceTimetable:         core.EnforceTimetable,
			PollingInterval:          core.PollingInterval,
			MinTxsPerBlock:           core.MinTxsPerBlock,
			MaxTxsPerBlock:           core.MaxTxsPerBlock,
			MaxDABlockGas:            core.MaxDABlockGas,
			MaxL2BlockGas:            core.MaxL2BlockGas,
			MaxBlockSizeBytes:        core.MaxBlockSizeBytes,
		},
		API: apisrv.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
