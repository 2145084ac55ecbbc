package miner

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/ethforge/devchain/core/txpool"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/core/vm"
	"github.com/ethforge/devchain/params"
)

func testMineConfig() MineConfig {
	return MineConfig{Ordering: txpool.OrderFifo, MinGasPrice: new(big.Int)}
}

func testOverrides() *HeaderOverrides {
	randao := common.HexToHash("0x01")
	return &HeaderOverrides{MixDigest: &randao}
}

func postMergeVMConfig() vm.Config {
	return vm.Config{ChainID: testChainID, Hardfork: params.Shanghai}
}

func TestMineBlockDrainsMempool(t *testing.T) {
	key1, key2 := newTestKey(t), newTestKey(t)
	chain := newBuilderChain(t, key1, key2)
	st := chainState(t, chain)
	pool := txpool.New(100_000, types.LatestSigner(testChainID, params.Shanghai))

	tx1 := signedTransfer(t, key1, 0, nil)
	tx2 := signedTransfer(t, key2, 0, nil)
	require.NoError(t, pool.AddTransaction(st, tx1))
	require.NoError(t, pool.AddTransaction(st, tx2))

	result, err := MineBlock(chain, st.Copy(), pool, transferVM{}, postMergeVMConfig(),
		BlockInputs{Withdrawals: types.Withdrawals{}}, testOverrides(), testMineConfig(), nil)
	require.NoError(t, err)
	require.Len(t, result.Build.Block.Transactions(), 2)

	require.NoError(t, chain.InsertBlock(result.Build.Block, result.Build.Receipts, result.Build.Diff))
	require.NoError(t, pool.Update(result.Build.State))
	require.False(t, pool.HasPendingTransactions())
}

func TestMineBlockRequiresPrevrandao(t *testing.T) {
	key := newTestKey(t)
	chain := newBuilderChain(t, key)
	st := chainState(t, chain)
	pool := txpool.New(100_000, types.LatestSigner(testChainID, params.Shanghai))

	_, err := MineBlock(chain, st, pool, transferVM{}, postMergeVMConfig(),
		BlockInputs{Withdrawals: types.Withdrawals{}}, nil, testMineConfig(), nil)
	require.ErrorIs(t, err, ErrMissingPrevrandao)
}

func TestMineBlockSkipsUnderpricedSenders(t *testing.T) {
	cheap, rich := newTestKey(t), newTestKey(t)
	chain := newBuilderChain(t, cheap, rich)
	st := chainState(t, chain)
	pool := txpool.New(100_000, types.LatestSigner(testChainID, params.Shanghai))

	to := common.Address{0x01}
	lowFee := types.MustSignNewTx(cheap, types.LatestSigner(testChainID, params.Shanghai), &types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       params.TxGas,
		To:        &to,
	})
	normal := signedTransfer(t, rich, 0, nil)
	require.NoError(t, pool.AddTransaction(st, lowFee))
	require.NoError(t, pool.AddTransaction(st, normal))

	mineCfg := MineConfig{Ordering: txpool.OrderPriority, MinGasPrice: big.NewInt(1_000_000)}
	result, err := MineBlock(chain, st.Copy(), pool, transferVM{}, postMergeVMConfig(),
		BlockInputs{Withdrawals: types.Withdrawals{}}, testOverrides(), mineCfg, nil)
	require.NoError(t, err)

	// The underpriced sender is skipped without aborting the block.
	require.Len(t, result.Build.Block.Transactions(), 1)
	require.Equal(t, normal.Hash(), result.Build.Block.Transactions()[0].Hash())
}

func TestMineBlockWithSingleTransaction(t *testing.T) {
	key := newTestKey(t)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	chain := newBuilderChain(t, key)
	st := chainState(t, chain)

	t.Run("NonceTooLow", func(t *testing.T) {
		require.NoError(t, st.SetNonce(sender, 2))
		tx := signedTransfer(t, key, 1, nil)
		_, err := MineBlockWithSingleTransaction(chain, st.Copy(), tx, sender, transferVM{}, postMergeVMConfig(),
			BlockInputs{Withdrawals: types.Withdrawals{}}, testOverrides(), testMineConfig(), nil)
		var nonceErr *NonceTooLowError
		require.ErrorAs(t, err, &nonceErr)
		require.Equal(t, uint64(2), nonceErr.Expected)
		require.NoError(t, st.SetNonce(sender, 0))
	})

	t.Run("NonceTooHigh", func(t *testing.T) {
		tx := signedTransfer(t, key, 7, nil)
		_, err := MineBlockWithSingleTransaction(chain, st.Copy(), tx, sender, transferVM{}, postMergeVMConfig(),
			BlockInputs{Withdrawals: types.Withdrawals{}}, testOverrides(), testMineConfig(), nil)
		var nonceErr *NonceTooHighError
		require.ErrorAs(t, err, &nonceErr)
	})

	t.Run("MaxFeePerGasTooLow", func(t *testing.T) {
		to := common.Address{0x01}
		tx := types.MustSignNewTx(key, types.LatestSigner(testChainID, params.Shanghai), &types.DynamicFeeTx{
			ChainID:   testChainID,
			Nonce:     0,
			GasTipCap: big.NewInt(1),
			GasFeeCap: big.NewInt(2),
			Gas:       params.TxGas,
			To:        &to,
		})
		_, err := MineBlockWithSingleTransaction(chain, st.Copy(), tx, sender, transferVM{}, postMergeVMConfig(),
			BlockInputs{Withdrawals: types.Withdrawals{}}, testOverrides(), testMineConfig(), nil)
		var feeErr *MaxFeePerGasTooLowError
		require.ErrorAs(t, err, &feeErr)
	})

	t.Run("PriorityFeeTooLow", func(t *testing.T) {
		to := common.Address{0x01}
		tx := types.MustSignNewTx(key, types.LatestSigner(testChainID, params.Shanghai), &types.DynamicFeeTx{
			ChainID:   testChainID,
			Nonce:     0,
			GasTipCap: big.NewInt(1),
			GasFeeCap: big.NewInt(10_000_000_000),
			Gas:       params.TxGas,
			To:        &to,
		})
		mineCfg := MineConfig{Ordering: txpool.OrderFifo, MinGasPrice: big.NewInt(1_000_000)}
		_, err := MineBlockWithSingleTransaction(chain, st.Copy(), tx, sender, transferVM{}, postMergeVMConfig(),
			BlockInputs{Withdrawals: types.Withdrawals{}}, testOverrides(), mineCfg, nil)
		var tipErr *PriorityFeeTooLowError
		require.ErrorAs(t, err, &tipErr)
	})

	t.Run("Success", func(t *testing.T) {
		tx := signedTransfer(t, key, 0, nil)
		result, err := MineBlockWithSingleTransaction(chain, st.Copy(), tx, sender, transferVM{}, postMergeVMConfig(),
			BlockInputs{Withdrawals: types.Withdrawals{}}, testOverrides(), testMineConfig(), nil)
		require.NoError(t, err)
		require.Len(t, result.Build.Block.Transactions(), 1)
		require.Equal(t, tx.Hash(), result.Build.Block.Transactions()[0].Hash())
	})
}
