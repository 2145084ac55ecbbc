package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
)

// remoteCacheSize bounds the number of remote blocks and receipts kept in
// memory. Entries at or below the fork point never change, so plain LRU
// eviction is safe.
const remoteCacheSize = 512

// RemoteClient is the JSON-RPC surface the forked blockchain needs from a
// remote node. ethclient.Client implements it; tests provide stubs.
type RemoteClient interface {
	state.RemoteReader

	ChainID() (*big.Int, error)
	BlockNumber() (uint64, error)
	BlockByNumber(number uint64) (*types.Block, error)
	BlockByHash(hash common.Hash) (*types.Block, error)
	BlockHashByTransaction(txHash common.Hash) (common.Hash, error)
	TransactionReceipt(txHash common.Hash) (*types.Receipt, error)
	Logs(fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]*types.Log, error)
	StateRootAt(blockNumber uint64) (common.Hash, error)
}

// RemoteBlockchain serves reads at or below the fork point through the
// cached RPC client, memoizing converted blocks and receipts.
type RemoteBlockchain struct {
	client RemoteClient

	blocksByNumber *lru.Cache[uint64, *types.Block]
	blocksByHash   *lru.Cache[common.Hash, *types.Block]
	receipts       *lru.Cache[common.Hash, *types.Receipt]
}

// NewRemoteBlockchain wraps the client with in-memory caches.
func NewRemoteBlockchain(client RemoteClient) *RemoteBlockchain {
	blocksByNumber, _ := lru.New[uint64, *types.Block](remoteCacheSize)
	blocksByHash, _ := lru.New[common.Hash, *types.Block](remoteCacheSize)
	receipts, _ := lru.New[common.Hash, *types.Receipt](remoteCacheSize)
	return &RemoteBlockchain{
		client:         client,
		blocksByNumber: blocksByNumber,
		blocksByHash:   blocksByHash,
		receipts:       receipts,
	}
}

// Client exposes the underlying RPC client.
func (r *RemoteBlockchain) Client() RemoteClient { return r.client }

// BlockByNumber fetches (and memoizes) a remote block.
func (r *RemoteBlockchain) BlockByNumber(number uint64) (*types.Block, error) {
	if block, ok := r.blocksByNumber.Get(number); ok {
		return block, nil
	}
	block, err := r.client.BlockByNumber(number)
	if err != nil {
		return nil, err
	}
	if block != nil {
		r.blocksByNumber.Add(number, block)
		r.blocksByHash.Add(block.Hash(), block)
	}
	return block, nil
}

// BlockByHash fetches (and memoizes) a remote block by hash.
func (r *RemoteBlockchain) BlockByHash(hash common.Hash) (*types.Block, error) {
	if block, ok := r.blocksByHash.Get(hash); ok {
		return block, nil
	}
	block, err := r.client.BlockByHash(hash)
	if err != nil {
		return nil, err
	}
	if block != nil {
		r.blocksByHash.Add(hash, block)
		r.blocksByNumber.Add(block.NumberU64(), block)
	}
	return block, nil
}

// BlockByTransactionHash resolves the block containing the transaction.
func (r *RemoteBlockchain) BlockByTransactionHash(txHash common.Hash) (*types.Block, error) {
	blockHash, err := r.client.BlockHashByTransaction(txHash)
	if err != nil {
		return nil, err
	}
	if blockHash == (common.Hash{}) {
		return nil, nil
	}
	return r.BlockByHash(blockHash)
}

// ReceiptByTransactionHash fetches (and memoizes) a remote receipt.
func (r *RemoteBlockchain) ReceiptByTransactionHash(txHash common.Hash) (*types.Receipt, error) {
	if receipt, ok := r.receipts.Get(txHash); ok {
		return receipt, nil
	}
	receipt, err := r.client.TransactionReceipt(txHash)
	if err != nil {
		return nil, err
	}
	if receipt != nil {
		r.receipts.Add(txHash, receipt)
	}
	return receipt, nil
}

// Logs queries remote logs in the given block range.
func (r *RemoteBlockchain) Logs(filter LogFilter) ([]*types.Log, error) {
	return r.client.Logs(filter.FromBlock, filter.ToBlock, filter.Addresses, filter.Topics)
}
