package miner

import (
	"bytes"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethforge/devchain/core"
	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/core/vm"
	"github.com/ethforge/devchain/params"
)

var testChainID = big.NewInt(1337)

// revertMarker in a transaction's input makes the stub interpreter fail the
// execution with revert data.
var revertMarker = []byte{0xfe}

// logMarker makes the stub emit one log from the receiver address.
var logMarker = []byte{0xfd}

// transferVM is a minimal interpreter stub: it validates the nonce and fees,
// charges gas and value, and transfers balances. It is deliberately ignorant
// of real EVM semantics.
type transferVM struct{}

func (transferVM) DryRun(st state.StateDB, cfg vm.Config, tx *types.Transaction, sender common.Address, env vm.BlockEnv, _ map[common.Address]vm.Precompile) (*vm.ExecutionResult, *state.StateDiff, error) {
	nonce, err := st.GetNonce(sender)
	if err != nil {
		return nil, nil, err
	}
	if tx.Nonce() < nonce {
		return nil, nil, vm.ErrNonceTooLow
	}
	if tx.Nonce() > nonce {
		return nil, nil, vm.ErrNonceTooHigh
	}
	if env.BaseFee != nil && tx.GasFeeCap().Cmp(env.BaseFee) < 0 {
		return nil, nil, vm.ErrGasPriceLessThanBaseFee
	}
	balance, err := st.GetBalance(sender)
	if err != nil {
		return nil, nil, err
	}
	gasUsed := params.TxGas
	price := tx.EffectiveGasPrice(env.BaseFee)
	cost := new(big.Int).Mul(price, new(big.Int).SetUint64(gasUsed))
	cost.Add(cost, tx.Value())
	if balance.ToBig().Cmp(cost) < 0 {
		return nil, nil, vm.ErrInsufficientFunds
	}

	diff := state.NewStateDiff()
	success := !bytes.HasPrefix(tx.Data(), revertMarker)

	senderAccount, err := st.GetAccount(sender)
	if err != nil {
		return nil, nil, err
	}
	if senderAccount == nil {
		senderAccount = state.NewAccount(new(uint256.Int))
	}
	senderAccount.Nonce = tx.Nonce() + 1
	charged := new(big.Int).Mul(price, new(big.Int).SetUint64(gasUsed))
	if success {
		charged.Add(charged, tx.Value())
	}
	chargedInt, _ := uint256.FromBig(charged)
	senderAccount.Balance = new(uint256.Int).Sub(senderAccount.Balance, chargedInt)
	diff.SetAccount(sender, senderAccount)

	result := &vm.ExecutionResult{GasUsed: gasUsed, Success: success}
	if !success {
		result.ReturnData = []byte{0x08, 0xc3, 0x79, 0xa0}
		return result, diff, nil
	}
	if to := tx.To(); to != nil {
		receiver, err := st.GetAccount(*to)
		if err != nil {
			return nil, nil, err
		}
		if receiver == nil {
			receiver = state.NewAccount(new(uint256.Int))
		}
		value, _ := uint256.FromBig(tx.Value())
		receiver.Balance = new(uint256.Int).Add(receiver.Balance, value)
		diff.SetAccount(*to, receiver)
		if bytes.HasPrefix(tx.Data(), logMarker) {
			result.Logs = []*types.Log{{
				Address: *to,
				Topics:  []common.Hash{crypto.Keccak256Hash([]byte("Ping()"))},
			}}
		}
	}
	return result, diff, nil
}

func testVMConfig() vm.Config {
	return vm.Config{ChainID: testChainID, Hardfork: params.Shanghai}
}

func newBuilderChain(t *testing.T, keys ...*ecdsa.PrivateKey) core.Blockchain {
	t.Helper()
	alloc := state.NewStateDiff()
	for _, key := range keys {
		balance := uint256.MustFromBig(new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18)))
		alloc.SetAccount(crypto.PubkeyToAddress(key.PublicKey), state.NewAccount(balance))
	}
	chain, err := core.NewLocalBlockchain(&core.GenesisConfig{
		ChainID:   testChainID,
		Hardfork:  params.Shanghai,
		GasLimit:  100_000,
		Timestamp: 1_000_000,
		Alloc:     alloc,
	})
	require.NoError(t, err)
	return chain
}

func chainState(t *testing.T, chain core.Blockchain) state.StateDB {
	t.Helper()
	st, err := chain.StateAtBlockNumber(chain.LastBlockNumber(), nil)
	require.NoError(t, err)
	return st
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func signedTransfer(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, data []byte) *types.Transaction {
	t.Helper()
	to := common.HexToAddress("0x095e7baea6a6c7c4c2dfeb977efac326af552d87")
	return types.MustSignNewTx(key, types.LatestSigner(testChainID, params.Shanghai), &types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(10_000_000_000),
		Gas:       params.TxGas,
		To:        &to,
		Value:     big.NewInt(100),
		Data:      data,
	})
}

func TestBuilderCreationValidation(t *testing.T) {
	key := newTestKey(t)
	chain := newBuilderChain(t, key)
	st := chainState(t, chain)

	t.Run("UnsupportedHardfork", func(t *testing.T) {
		cfg := vm.Config{ChainID: testChainID, Hardfork: params.SpuriousDragon}
		_, err := NewBlockBuilder(chain, st, transferVM{}, cfg, BlockInputs{}, nil, nil)
		var hfErr *UnsupportedHardforkError
		require.ErrorAs(t, err, &hfErr)
		require.Equal(t, params.SpuriousDragon, hfErr.Hardfork)
	})

	t.Run("MissingWithdrawals", func(t *testing.T) {
		_, err := NewBlockBuilder(chain, st, transferVM{}, testVMConfig(), BlockInputs{}, nil, nil)
		require.ErrorIs(t, err, ErrMissingWithdrawals)
	})

	t.Run("Valid", func(t *testing.T) {
		builder, err := NewBlockBuilder(chain, st, transferVM{}, testVMConfig(), BlockInputs{Withdrawals: types.Withdrawals{}}, nil, nil)
		require.NoError(t, err)
		require.Equal(t, uint64(1), builder.Header().Number.Uint64())
	})
}

func TestBuilderExceedsBlockGasLimit(t *testing.T) {
	key := newTestKey(t)
	chain := newBuilderChain(t, key)
	gasLimit := uint64(30_000)
	builder, err := NewBlockBuilder(chain, chainState(t, chain), transferVM{}, testVMConfig(),
		BlockInputs{Withdrawals: types.Withdrawals{}}, &HeaderOverrides{GasLimit: &gasLimit}, nil)
	require.NoError(t, err)

	to := common.Address{0x01}
	tooBig := types.MustSignNewTx(key, types.LatestSigner(testChainID, params.Shanghai), &types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10_000_000_000),
		Gas:       50_000,
		To:        &to,
	})
	var gasErr *BlockGasLimitError
	require.ErrorAs(t, builder.AddTransaction(tooBig), &gasErr)
	require.Equal(t, uint64(30_000), gasErr.Remaining)

	// The builder state is unchanged by the rejection.
	require.Empty(t, builder.txs)
	require.Empty(t, builder.receipts)
	require.Zero(t, builder.Header().GasUsed)
}

func TestBuilderFinalizeInvariants(t *testing.T) {
	key1, key2 := newTestKey(t), newTestKey(t)
	chain := newBuilderChain(t, key1, key2)
	builder, err := NewBlockBuilder(chain, chainState(t, chain), transferVM{}, testVMConfig(),
		BlockInputs{Withdrawals: types.Withdrawals{}}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, builder.AddTransaction(signedTransfer(t, key1, 0, logMarker)))
	require.NoError(t, builder.AddTransaction(signedTransfer(t, key2, 0, nil)))
	require.NoError(t, builder.AddTransaction(signedTransfer(t, key1, 1, revertMarker)))

	result, err := builder.Finalize(nil)
	require.NoError(t, err)
	block := result.Block

	// Gas accounting: the header totals the receipts.
	var gasSum uint64
	for _, receipt := range result.Receipts {
		gasSum += receipt.GasUsed
	}
	require.Equal(t, block.GasUsed(), gasSum)
	require.Equal(t, result.Receipts[len(result.Receipts)-1].CumulativeGasUsed, block.GasUsed())

	// The block bloom is the union of the receipt blooms.
	require.Equal(t, types.MergeBloom(result.Receipts), block.Bloom())

	// Roots are derived from the contents.
	require.Equal(t, types.DeriveSha(types.Receipts(result.Receipts)), block.ReceiptHash())
	require.Equal(t, types.DeriveSha(block.Transactions()), block.TxHash())
	stateRoot, err := result.State.StateRoot()
	require.NoError(t, err)
	require.Equal(t, stateRoot, block.Root())

	// The reverted transaction is included with a failed receipt.
	require.Len(t, block.Transactions(), 3)
	require.True(t, result.Receipts[2].Failed())
	require.False(t, result.Receipts[0].Failed())

	// Receipts carry the sealed block hash.
	for _, receipt := range result.Receipts {
		require.Equal(t, block.Hash(), receipt.BlockHash)
	}

	// The block is insertable.
	require.NoError(t, chain.InsertBlock(block, result.Receipts, result.Diff))
}

func TestBuilderRewards(t *testing.T) {
	key := newTestKey(t)
	chain := newBuilderChain(t, key)
	builder, err := NewBlockBuilder(chain, chainState(t, chain), transferVM{}, testVMConfig(),
		BlockInputs{Withdrawals: types.Withdrawals{}}, nil, nil)
	require.NoError(t, err)

	beneficiary := common.HexToAddress("0xc0ffee")
	result, err := builder.Finalize([]Reward{
		{Beneficiary: beneficiary, Amount: big.NewInt(5)},
		{Beneficiary: common.HexToAddress("0xdead"), Amount: big.NewInt(0)}, // skipped
	})
	require.NoError(t, err)

	balance, err := result.State.GetBalance(beneficiary)
	require.NoError(t, err)
	require.Equal(t, uint64(5), balance.Uint64())
	require.Contains(t, result.Diff.Accounts, beneficiary)
	require.NotContains(t, result.Diff.Accounts, common.HexToAddress("0xdead"))
}

func TestBuilderBlockRlpSizeGuard(t *testing.T) {
	key := newTestKey(t)
	chain := newBuilderChain(t, key)
	gasLimit := uint64(100_000_000)
	builder, err := NewBlockBuilder(chain, chainState(t, chain), transferVM{}, testVMConfig(),
		BlockInputs{Withdrawals: types.Withdrawals{}}, &HeaderOverrides{GasLimit: &gasLimit}, nil)
	require.NoError(t, err)

	// Three transactions carrying 3 MiB payloads exceed the 8 MiB cap.
	payload := make([]byte, 3*1024*1024)
	for nonce := uint64(0); nonce < 3; nonce++ {
		tx := signedTransfer(t, key, nonce, payload)
		require.NoError(t, builder.AddTransaction(tx))
	}
	_, err = builder.Finalize(nil)
	var sizeErr *BlockRlpSizeError
	require.ErrorAs(t, err, &sizeErr)
	require.Equal(t, uint64(8*1024*1024), sizeErr.MaxSize)
	require.Greater(t, sizeErr.ActualSize, sizeErr.MaxSize)
}
