package core

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/params"
)

func newTestChain(t *testing.T) *LocalBlockchain {
	t.Helper()
	alloc := state.NewStateDiff()
	alloc.SetAccount(common.HexToAddress("0x01"), state.NewAccount(uint256.NewInt(1_000_000)))
	chain, err := NewLocalBlockchain(&GenesisConfig{
		ChainID:   big.NewInt(1337),
		Hardfork:  params.London,
		GasLimit:  30_000_000,
		Timestamp: 1_000_000,
		Alloc:     alloc,
	})
	require.NoError(t, err)
	return chain
}

// nextBlock builds a block with the given transactions and receipts extending
// the chain head.
func nextBlock(t *testing.T, chain Blockchain, receipts []*types.Receipt, txs []*types.Transaction) *types.Block {
	t.Helper()
	parent, err := chain.LastBlock()
	require.NoError(t, err)
	header := &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Number:     new(big.Int).Add(parent.Number(), common.Big1),
		GasLimit:   parent.GasLimit(),
		Time:       parent.Time() + 12,
		Difficulty: new(big.Int),
		BaseFee:    big.NewInt(params.InitialBaseFee),
		Root:       parent.Root(),
	}
	return types.NewBlock(header, &types.Body{Transactions: txs}, receipts)
}

func TestGenesisBlock(t *testing.T) {
	chain := newTestChain(t)
	require.Equal(t, uint64(0), chain.LastBlockNumber())

	genesis, err := chain.LastBlock()
	require.NoError(t, err)
	require.Equal(t, uint64(0), genesis.NumberU64())

	st, err := chain.StateAtBlockNumber(0, nil)
	require.NoError(t, err)
	balance, err := st.GetBalance(common.HexToAddress("0x01"))
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), balance.Uint64())

	root, err := st.StateRoot()
	require.NoError(t, err)
	require.Equal(t, genesis.Root(), root)
}

func TestInsertBlockInvariants(t *testing.T) {
	chain := newTestChain(t)
	block := nextBlock(t, chain, nil, nil)
	require.NoError(t, chain.InsertBlock(block, nil, nil))

	// A block by hash resolves to the same number.
	byHash, err := chain.BlockByHash(block.Hash())
	require.NoError(t, err)
	require.Equal(t, block.NumberU64(), byHash.NumberU64())

	// Skipping a number is rejected.
	skipped := types.NewBlock(&types.Header{
		ParentHash: block.Hash(),
		Number:     big.NewInt(5),
		GasLimit:   block.GasLimit(),
		Time:       block.Time() + 12,
		Difficulty: new(big.Int),
	}, nil, nil)
	require.ErrorIs(t, chain.InsertBlock(skipped, nil, nil), ErrInsertInvalidNumber)

	// A wrong parent hash is rejected.
	orphan := types.NewBlock(&types.Header{
		ParentHash: common.HexToHash("0xdead"),
		Number:     big.NewInt(2),
		GasLimit:   block.GasLimit(),
		Time:       block.Time() + 12,
		Difficulty: new(big.Int),
	}, nil, nil)
	require.ErrorIs(t, chain.InsertBlock(orphan, nil, nil), ErrInsertMissingParent)
}

func TestRevertToBlock(t *testing.T) {
	chain := newTestChain(t)
	b1 := nextBlock(t, chain, nil, nil)
	require.NoError(t, chain.InsertBlock(b1, nil, nil))
	b2 := nextBlock(t, chain, nil, nil)
	require.NoError(t, chain.InsertBlock(b2, nil, nil))

	require.NoError(t, chain.RevertToBlock(1))
	require.Equal(t, uint64(1), chain.LastBlockNumber())
	_, err := chain.BlockByHash(b2.Hash())
	require.ErrorIs(t, err, ErrUnknownBlockHash)
	_, err = chain.BlockByNumber(2)
	require.ErrorIs(t, err, ErrUnknownBlockNumber)

	// Reverting above the head is rejected.
	require.ErrorIs(t, chain.RevertToBlock(10), ErrUnknownBlockNumber)
}

func TestReserveBlocks(t *testing.T) {
	chain := newTestChain(t)
	require.NoError(t, chain.ReserveBlocks(100, 10))
	require.Equal(t, uint64(100), chain.LastBlockNumber())

	genesis, err := chain.BlockByNumber(0)
	require.NoError(t, err)

	// Reserved headers materialize lazily and stay chained.
	b50, err := chain.BlockByNumber(50)
	require.NoError(t, err)
	require.Equal(t, uint64(50), b50.NumberU64())
	require.Equal(t, genesis.Time()+50*10, b50.Time())
	require.Equal(t, genesis.Root(), b50.Root())

	b49, err := chain.BlockByNumber(49)
	require.NoError(t, err)
	require.Equal(t, b49.Hash(), b50.ParentHash())

	// Empty blocks decay the base fee.
	require.Less(t, b50.BaseFee().Uint64(), genesis.BaseFee().Uint64())

	// Inserting after a reservation extends the chain.
	tail := nextBlock(t, chain, nil, nil)
	require.Equal(t, uint64(101), tail.NumberU64())
	require.NoError(t, chain.InsertBlock(tail, nil, nil))
}

func TestLogsFiltering(t *testing.T) {
	chain := newTestChain(t)
	addr := common.HexToAddress("0xaa")
	topic := common.HexToHash("0x01")

	receipt := types.NewReceipt(types.LegacyTxType, params.London, nil, false, 21000)
	receipt.Logs = []*types.Log{
		{Address: addr, Topics: []common.Hash{topic}, BlockNumber: 1},
		{Address: common.HexToAddress("0xbb"), Topics: []common.Hash{topic}, BlockNumber: 1},
	}
	receipt.Bloom = types.CreateBloom(receipt.Logs)
	block := nextBlock(t, chain, []*types.Receipt{receipt}, nil)
	require.NoError(t, chain.InsertBlock(block, []*types.Receipt{receipt}, nil))

	all, err := chain.Logs(LogFilter{FromBlock: 0, ToBlock: 1})
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := chain.Logs(LogFilter{FromBlock: 0, ToBlock: 1, Addresses: []common.Address{addr}})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, addr, filtered[0].Address)

	none, err := chain.Logs(LogFilter{FromBlock: 0, ToBlock: 1, Topics: [][]common.Hash{{common.HexToHash("0x02")}}})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestStateReplayWithDiffs(t *testing.T) {
	chain := newTestChain(t)
	addr := common.HexToAddress("0x02")

	diff := state.NewStateDiff()
	diff.SetAccount(addr, state.NewAccount(uint256.NewInt(777)))
	block := nextBlock(t, chain, nil, nil)
	require.NoError(t, chain.InsertBlock(block, nil, diff))

	// The balance is visible at block 1 but not at genesis.
	st0, err := chain.StateAtBlockNumber(0, nil)
	require.NoError(t, err)
	balance, err := st0.GetBalance(addr)
	require.NoError(t, err)
	require.True(t, balance.IsZero())

	st1, err := chain.StateAtBlockNumber(1, nil)
	require.NoError(t, err)
	balance, err = st1.GetBalance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(777), balance.Uint64())

	// Irregular overrides apply on top of executed diffs.
	overrides := state.NewIrregularState()
	overrideDiff := state.NewStateDiff()
	overrideDiff.SetAccount(addr, state.NewAccount(uint256.NewInt(1)))
	overrides.SetStateOverride(1, &state.StateOverride{Diff: overrideDiff})
	st1b, err := chain.StateAtBlockNumber(1, overrides)
	require.NoError(t, err)
	balance, err = st1b.GetBalance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(1), balance.Uint64())
}

func TestReceiptAndTransactionIndex(t *testing.T) {
	chain := newTestChain(t)
	to := common.HexToAddress("0x03")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(1),
		V:        big.NewInt(27),
		R:        big.NewInt(1),
		S:        big.NewInt(1),
	})
	receipt := types.NewReceipt(types.LegacyTxType, params.London, nil, false, 21000)
	receipt.TxHash = tx.Hash()

	block := nextBlock(t, chain, []*types.Receipt{receipt}, []*types.Transaction{tx})
	require.NoError(t, chain.InsertBlock(block, []*types.Receipt{receipt}, nil))

	found, err := chain.BlockByTransactionHash(tx.Hash())
	require.NoError(t, err)
	require.Equal(t, block.Hash(), found.Hash())

	stored, err := chain.ReceiptByTransactionHash(tx.Hash())
	require.NoError(t, err)
	require.Equal(t, tx.Hash(), stored.TxHash)
}
