package devnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/sequencer/x/protocol"
	"github.com/compose-network/sequencer/x/sequencer"
)

// nominal per-tx execution costs on a devnet.
const (
	txDAGas = 2_000
	txL2Gas = 21_000
	txMana  = 1_000
)

// ProcessorFactory builds processors that accept every transaction the
// validator passes and charge nominal gas, honoring the deadline (against
// the wall clock) and count/size/gas caps.
type ProcessorFactory struct{}

func (f *ProcessorFactory) Create(fork sequencer.Fork, globals protocol.GlobalVariables, isProposer bool) sequencer.PublicProcessor {
	return &processor{}
}

type processor struct{}

func (p *processor) Process(ctx context.Context, txs []protocol.Tx, limits protocol.ProcessLimits, validator sequencer.TxValidator) ([]protocol.ProcessedTx, []protocol.FailedTx, protocol.UsedResources, error) {
	var processed []protocol.ProcessedTx
	var failed []protocol.FailedTx
	var used protocol.UsedResources

	for _, tx := range txs {
		if !limits.Deadline.IsZero() && !time.Now().Before(limits.Deadline) {
			break
		}
		if limits.MaxTransactions > 0 && uint64(len(processed)) >= limits.MaxTransactions {
			break
		}
		if limits.MaxBlockSize > 0 && used.SizeBytes+tx.SizeBytes > limits.MaxBlockSize {
			break
		}
		if limits.MaxDAGas > 0 && used.DAGas+txDAGas > limits.MaxDAGas {
			break
		}
		if limits.MaxL2Gas > 0 && used.L2Gas+txL2Gas > limits.MaxL2Gas {
			break
		}

		if validator != nil {
			if err := validator.Validate(ctx, tx); err != nil {
				failed = append(failed, protocol.FailedTx{Tx: tx, Reason: err})
				continue
			}
		}

		processed = append(processed, protocol.ProcessedTx{
			Tx:        tx,
			DAGasUsed: txDAGas,
			L2GasUsed: txL2Gas,
			ManaUsed:  txMana,
		})
		used.DAGas += txDAGas
		used.L2Gas += txL2Gas
		used.Mana += txMana
		used.SizeBytes += tx.SizeBytes
	}

	return processed, failed, used, nil
}

// NewTxValidator is the devnet transaction-validator factory: it rejects
// empty payloads and oversized transactions. The allow-list is irrelevant
// here because devnet transactions carry no public-setup calls.
func NewTxValidator(fork sequencer.Fork, globals protocol.GlobalVariables, allowList mapset.Set[string]) sequencer.TxValidator {
	return &txValidator{}
}

type txValidator struct{}

const maxDevnetTxBytes = 128 * 1024

func (v *txValidator) Validate(ctx context.Context, tx protocol.Tx) error {
	if len(tx.Payload) == 0 {
		return fmt.Errorf("tx %s has no payload", tx.Hash())
	}
	if tx.SizeBytes > maxDevnetTxBytes {
		return fmt.Errorf("tx %s exceeds %d bytes", tx.Hash(), maxDevnetTxBytes)
	}
	return nil
}

// BuilderFactory builds block builders whose archive root chains over the
// previous root, the header, and the included tx hashes.
type BuilderFactory struct{}

func (f *BuilderFactory) Create(fork sequencer.Fork) sequencer.BlockBuilder {
	return &builder{}
}

type builder struct {
	globals protocol.GlobalVariables
	prev    protocol.ProposedBlockHeader
	txs     []protocol.ProcessedTx
}

func (b *builder) StartNewBlock(ctx context.Context, globals protocol.GlobalVariables, l1ToL2Messages []common.Hash, prevHeader protocol.ProposedBlockHeader) error {
	b.globals = globals
	b.prev = prevHeader
	b.txs = nil
	return nil
}

func (b *builder) AddTxs(ctx context.Context, txs []protocol.ProcessedTx) error {
	b.txs = append(b.txs, txs...)
	return nil
}

func (b *builder) SetBlockCompleted(ctx context.Context) (*protocol.Block, error) {
	block := &protocol.Block{
		Header: protocol.ProposedBlockHeader{
			GlobalVariables: b.globals,
			LastArchiveRoot: b.prev.LastArchiveRoot,
		},
	}

	var mana uint64
	content := make([]byte, 0, common.HashLength*len(b.txs))
	for _, tx := range b.txs {
		h := tx.Tx.Hash()
		block.TxHashes = append(block.TxHashes, h)
		block.Txs = append(block.Txs, tx.Tx)
		content = append(content, h.Bytes()...)
		mana += tx.ManaUsed
	}
	block.Header.ContentCommitment = common.BytesToHash(crypto.Keccak256(content))
	block.Header.TotalManaUsed = mana

	buf := make([]byte, 0, common.HashLength*2+8)
	buf = append(buf, block.Header.LastArchiveRoot.Bytes()...)
	h := block.Header.Hash()
	buf = append(buf, h.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, block.Header.BlockNumber)
	block.ArchiveRoot = common.BytesToHash(crypto.Keccak256(buf))
	return block, nil
}
