package provider

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/txpool"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/core/vm"
	"github.com/ethforge/devchain/params"
)

var testChainID = big.NewInt(31337)

// transferVM mirrors the miner test stub: nonce/fee/balance validation plus
// plain value transfers.
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
	success := !bytes.HasPrefix(tx.Data(), []byte{0xfe})

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

	result := &vm.ExecutionResult{GasUsed: gasUsed, Success: success, ReturnData: []byte{0x01}}
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
	}
	return result, diff, nil
}

func newTestProvider(t *testing.T, key *ecdsa.PrivateKey) *Provider {
	t.Helper()
	balance := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18))
	provider, err := NewProvider(&Config{
		ChainID:       testChainID,
		Hardfork:      params.Shanghai,
		BlockGasLimit: 30_000_000,
		Accounts:      []*ecdsa.PrivateKey{key},
		GenesisAccounts: []GenesisAccount{
			{Address: crypto.PubkeyToAddress(key.PublicKey), Balance: balance},
		},
		AutoMine:    true,
		Ordering:    txpool.OrderPriority,
		Interpreter: transferVM{},
	})
	require.NoError(t, err)
	t.Cleanup(provider.Close)
	return provider
}

// call invokes a method with Go values as positional parameters.
func call(t *testing.T, p *Provider, method string, args ...any) (any, error) {
	t.Helper()
	params := make([]json.RawMessage, len(args))
	for i, arg := range args {
		encoded, err := json.Marshal(arg)
		require.NoError(t, err)
		params[i] = encoded
	}
	return p.HandleRequest(method, params)
}

func mustCall(t *testing.T, p *Provider, method string, args ...any) any {
	t.Helper()
	result, err := call(t, p, method, args...)
	require.NoError(t, err)
	return result
}

func newProviderKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func TestSendTransactionAutomine(t *testing.T) {
	key := newProviderKey(t)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	provider := newTestProvider(t, key)
	receiver := common.HexToAddress("0x00000000000000000000000000000000cafebabe")

	result := mustCall(t, provider, "eth_sendTransaction", map[string]any{
		"from":  sender.Hex(),
		"to":    receiver.Hex(),
		"value": "0x64",
	})
	txHash := result.(common.Hash)

	// Automine produced block 1 containing the transaction.
	require.Equal(t, hexutil.Uint64(1), mustCall(t, provider, "eth_blockNumber"))

	receipt := mustCall(t, provider, "eth_getTransactionReceipt", txHash).(*RPCReceipt)
	require.NotNil(t, receipt)
	require.Equal(t, txHash, receipt.TransactionHash)
	require.Equal(t, hexutil.Uint64(1), *receipt.Status)
	require.Equal(t, sender, receipt.From)

	balance := mustCall(t, provider, "eth_getBalance", receiver.Hex(), "latest").(*hexutil.Big)
	require.Equal(t, int64(100), balance.ToInt().Int64())

	nonce := mustCall(t, provider, "eth_getTransactionCount", sender.Hex(), "latest").(hexutil.Uint64)
	require.Equal(t, hexutil.Uint64(1), nonce)

	// The mined transaction resolves over RPC with inclusion data.
	tx := mustCall(t, provider, "eth_getTransactionByHash", txHash).(*RPCTransaction)
	require.NotNil(t, tx.BlockNumber)
	require.Equal(t, sender, tx.From)
}

func TestSendTransactionRevertSurfacesError(t *testing.T) {
	key := newProviderKey(t)
	provider := newTestProvider(t, key)
	receiver := common.HexToAddress("0x01")

	_, err := call(t, provider, "eth_sendTransaction", map[string]any{
		"from": crypto.PubkeyToAddress(key.PublicKey).Hex(),
		"to":   receiver.Hex(),
		"data": "0xfe",
	})
	require.Error(t, err)
	var rpcErr *RpcError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeInvalidInput, rpcErr.Code)

	// The block was still mined with a failed receipt.
	require.Equal(t, hexutil.Uint64(1), mustCall(t, provider, "eth_blockNumber"))
}

func TestRequestValidation(t *testing.T) {
	key := newProviderKey(t)
	sender := crypto.PubkeyToAddress(key.PublicKey).Hex()
	provider := newTestProvider(t, key) // Shanghai: no blobs, no authorizations

	tests := []struct {
		name    string
		request map[string]any
		message string
	}{
		{
			name: "gasPrice with maxFeePerGas",
			request: map[string]any{
				"from": sender, "to": sender,
				"gasPrice": "0x1", "maxFeePerGas": "0x1",
			},
			message: "Cannot send both gasPrice and maxFeePerGas",
		},
		{
			name: "blobs before Cancun",
			request: map[string]any{
				"from": sender, "to": sender,
				"blobVersionedHashes": []string{"0x0100000000000000000000000000000000000000000000000000000000000000"},
			},
			message: "Cancun",
		},
		{
			name: "authorizations before Prague",
			request: map[string]any{
				"from": sender, "to": sender,
				"authorizationList": []any{},
			},
			message: "Prague",
		},
		{
			name: "priority above max fee",
			request: map[string]any{
				"from": sender, "to": sender,
				"maxFeePerGas": "0x1", "maxPriorityFeePerGas": "0x2",
			},
			message: "bigger than maxFeePerGas",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := call(t, provider, "eth_sendTransaction", test.request)
			require.Error(t, err)
			require.Contains(t, err.Error(), test.message)
		})
	}
}

func TestSnapshotAndRevert(t *testing.T) {
	key := newProviderKey(t)
	provider := newTestProvider(t, key)
	receiver := common.HexToAddress("0x02")

	snapshotID := mustCall(t, provider, "evm_snapshot").(hexutil.Uint64)

	mustCall(t, provider, "eth_sendTransaction", map[string]any{
		"from":  crypto.PubkeyToAddress(key.PublicKey).Hex(),
		"to":    receiver.Hex(),
		"value": "0x64",
	})
	require.Equal(t, hexutil.Uint64(1), mustCall(t, provider, "eth_blockNumber"))

	reverted := mustCall(t, provider, "evm_revert", snapshotID).(bool)
	require.True(t, reverted)
	require.Equal(t, hexutil.Uint64(0), mustCall(t, provider, "eth_blockNumber"))
	balance := mustCall(t, provider, "eth_getBalance", receiver.Hex(), "latest").(*hexutil.Big)
	require.Zero(t, balance.ToInt().Sign())

	// A second revert to the same id fails: the snapshot is consumed.
	reverted = mustCall(t, provider, "evm_revert", snapshotID).(bool)
	require.False(t, reverted)
}

func TestHardhatSetBalanceAndNonce(t *testing.T) {
	key := newProviderKey(t)
	provider := newTestProvider(t, key)
	target := common.HexToAddress("0x03")

	mustCall(t, provider, "hardhat_setBalance", target.Hex(), "0x1234")
	balance := mustCall(t, provider, "eth_getBalance", target.Hex(), "latest").(*hexutil.Big)
	require.Equal(t, int64(0x1234), balance.ToInt().Int64())

	mustCall(t, provider, "hardhat_setNonce", target.Hex(), "0x7")
	nonce := mustCall(t, provider, "eth_getTransactionCount", target.Hex(), "latest").(hexutil.Uint64)
	require.Equal(t, hexutil.Uint64(7), nonce)

	// Lowering the nonce is rejected.
	_, err := call(t, provider, "hardhat_setNonce", target.Hex(), "0x1")
	require.Error(t, err)
}

func TestImpersonatedSend(t *testing.T) {
	key := newProviderKey(t)
	provider := newTestProvider(t, key)
	whale := common.HexToAddress("0x00000000000000000000000000000000deadbeef")

	mustCall(t, provider, "hardhat_setBalance", whale.Hex(), "0xde0b6b3a7640000") // 1 ether

	// Unknown account: rejected before impersonation.
	_, err := call(t, provider, "eth_sendTransaction", map[string]any{
		"from": whale.Hex(), "to": whale.Hex(), "value": "0x1",
	})
	require.Error(t, err)

	mustCall(t, provider, "hardhat_impersonateAccount", whale.Hex())
	hash := mustCall(t, provider, "eth_sendTransaction", map[string]any{
		"from": whale.Hex(), "to": whale.Hex(), "value": "0x1",
	}).(common.Hash)
	receipt := mustCall(t, provider, "eth_getTransactionReceipt", hash).(*RPCReceipt)
	require.Equal(t, whale, receipt.From)

	mustCall(t, provider, "hardhat_stopImpersonatingAccount", whale.Hex())
	_, err = call(t, provider, "eth_sendTransaction", map[string]any{
		"from": whale.Hex(), "to": whale.Hex(), "value": "0x1",
	})
	require.Error(t, err)
}

func TestEstimateGasAndCall(t *testing.T) {
	key := newProviderKey(t)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	provider := newTestProvider(t, key)
	receiver := common.HexToAddress("0x04")

	gas := mustCall(t, provider, "eth_estimateGas", map[string]any{
		"from": sender.Hex(), "to": receiver.Hex(), "value": "0x1",
	}).(hexutil.Uint64)
	require.Equal(t, hexutil.Uint64(params.TxGas), gas)

	output := mustCall(t, provider, "eth_call", map[string]any{
		"from": sender.Hex(), "to": receiver.Hex(),
	}, "latest").(hexutil.Bytes)
	require.Equal(t, hexutil.Bytes{0x01}, output)

	// Calls do not mine blocks.
	require.Equal(t, hexutil.Uint64(0), mustCall(t, provider, "eth_blockNumber"))
}

func TestManualMiningAndTimestamps(t *testing.T) {
	key := newProviderKey(t)
	provider := newTestProvider(t, key)

	mustCall(t, provider, "evm_setAutomine", false)
	require.Equal(t, false, mustCall(t, provider, "hardhat_getAutomine"))

	head := mustCall(t, provider, "eth_getBlockByNumber", "latest", false).(*RPCBlock)
	target := uint64(head.Timestamp) + 3600
	mustCall(t, provider, "evm_setNextBlockTimestamp", hexutil.Uint64(target))
	mustCall(t, provider, "evm_mine")

	mined := mustCall(t, provider, "eth_getBlockByNumber", "latest", false).(*RPCBlock)
	require.Equal(t, hexutil.Uint64(target), mined.Timestamp)
	require.Equal(t, uint64(1), mined.Number.ToInt().Uint64())

	// Setting a timestamp at or below the head fails.
	_, err := call(t, provider, "evm_setNextBlockTimestamp", hexutil.Uint64(target))
	require.Error(t, err)
}

func TestPendingTransactionsWithoutAutomine(t *testing.T) {
	key := newProviderKey(t)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	provider := newTestProvider(t, key)
	mustCall(t, provider, "evm_setAutomine", false)

	hash := mustCall(t, provider, "eth_sendTransaction", map[string]any{
		"from": sender.Hex(), "to": sender.Hex(), "value": "0x1",
	}).(common.Hash)

	pending := mustCall(t, provider, "eth_pendingTransactions").([]*RPCTransaction)
	require.Len(t, pending, 1)
	require.Equal(t, hash, pending[0].Hash)

	// Dropping the pooled transaction succeeds; after mining it fails.
	require.Equal(t, true, mustCall(t, provider, "hardhat_dropTransaction", hash))
	hash = mustCall(t, provider, "eth_sendTransaction", map[string]any{
		"from": sender.Hex(), "to": sender.Hex(), "value": "0x1",
	}).(common.Hash)
	mustCall(t, provider, "evm_mine")
	_, err := call(t, provider, "hardhat_dropTransaction", hash)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already mined")
}

func TestBatchAbortsOnFirstFailure(t *testing.T) {
	key := newProviderKey(t)
	provider := newTestProvider(t, key)

	results, err := provider.HandleBatch([]Request{
		{Method: "eth_blockNumber"},
		{Method: "eth_chainId"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	_, err = provider.HandleBatch([]Request{
		{Method: "eth_blockNumber"},
		{Method: "no_suchMethod"},
		{Method: "eth_chainId"},
	})
	require.Error(t, err)
}

func TestBlockFilterSeesMinedBlocks(t *testing.T) {
	key := newProviderKey(t)
	provider := newTestProvider(t, key)

	filterID := mustCall(t, provider, "eth_newBlockFilter").(hexutil.Uint64)
	mustCall(t, provider, "evm_mine")
	mustCall(t, provider, "evm_mine")

	changes := mustCall(t, provider, "eth_getFilterChanges", filterID).([]common.Hash)
	require.Len(t, changes, 2)

	// The filter drains on read.
	changes = mustCall(t, provider, "eth_getFilterChanges", filterID).([]common.Hash)
	require.Empty(t, changes)

	require.Equal(t, true, mustCall(t, provider, "eth_uninstallFilter", filterID))
	_, err := call(t, provider, "eth_getFilterChanges", filterID)
	require.Error(t, err)
}

func TestHardhatMetadataAndMethodNotFound(t *testing.T) {
	key := newProviderKey(t)
	provider := newTestProvider(t, key)

	metadata := mustCall(t, provider, "hardhat_metadata").(*hardhatMetadataResult)
	require.Equal(t, ClientVersion, metadata.ClientVersion)
	require.Equal(t, testChainID, metadata.ChainID.ToInt())
	require.Nil(t, metadata.ForkedNetwork)

	_, err := call(t, provider, "eth_unknownMethod")
	var rpcErr *RpcError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeMethodNotFound, rpcErr.Code)

	version := mustCall(t, provider, "web3_clientVersion").(string)
	require.Equal(t, ClientVersion, version)

	hash := mustCall(t, provider, "web3_sha3", "0x68656c6c6f").(common.Hash)
	require.Equal(t, crypto.Keccak256Hash([]byte("hello")), hash)
}
