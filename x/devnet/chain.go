// Package devnet provides in-process collaborators for running the
// sequencer without a real node: a solo publisher, an empty attestation
// committee, and a memory-backed world state. Local development only.
package devnet

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/sequencer/x/protocol"
)

// Chain is the shared in-memory L2 chain all devnet collaborators observe.
type Chain struct {
	mu          sync.RWMutex
	genesisRoot common.Hash
	head        uint64
	headHash    common.Hash
	blocks      map[uint64]*protocol.Block
}

// NewChain creates an empty chain at genesis.
func NewChain() *Chain {
	return &Chain{
		genesisRoot: common.BytesToHash(crypto.Keccak256([]byte("devnet-genesis"))),
		blocks:      make(map[uint64]*protocol.Block),
	}
}

// GenesisRoot returns the archive root of the empty chain.
func (c *Chain) GenesisRoot() common.Hash {
	return c.genesisRoot
}

// Head returns the latest block number and hash. At genesis the hash is
// zero, matching a canonical source that has no tip yet.
func (c *Chain) Head() protocol.BlockRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return protocol.BlockRef{Number: c.head, Hash: c.headHash}
}

// TipArchiveRoot returns the archive root at the head.
func (c *Chain) TipArchiveRoot() common.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if block, ok := c.blocks[c.head]; ok {
		return block.ArchiveRoot
	}
	return c.genesisRoot
}

// Block returns the block at the given height, or nil.
func (c *Chain) Block(number uint64) *protocol.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[number]
}

// Append commits a built block as the new head.
func (c *Chain) Append(block *protocol.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = block.Number()
	c.headHash = block.Header.Hash()
	c.blocks[c.head] = block
}
