package provider

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethforge/devchain/consensus/misc/eip1559"
	"github.com/ethforge/devchain/consensus/misc/eip4844"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/params"
)

func (d *providerData) ethAccounts() ([]common.Address, error) {
	accounts := make([]common.Address, len(d.accountOrder))
	copy(accounts, d.accountOrder)
	return accounts, nil
}

func (d *providerData) ethBlockNumber() (hexutil.Uint64, error) {
	return hexutil.Uint64(d.chain.LastBlockNumber()), nil
}

func (d *providerData) ethChainID() (*hexutil.Big, error) {
	return (*hexutil.Big)(d.chain.ChainID()), nil
}

func (d *providerData) ethCoinbase() (common.Address, error) {
	return d.coinbase, nil
}

func (d *providerData) ethCall(raw []json.RawMessage) (hexutil.Bytes, error) {
	request := new(TransactionRequest)
	if err := decodeParam(raw, 0, request); err != nil {
		return nil, err
	}
	spec, err := optionalBlockSpec(raw, 1)
	if err != nil {
		return nil, err
	}
	if err := validateTransactionRequest(request, d.config.Hardfork, d.config.AllowUnlimitedContractSize); err != nil {
		return nil, err
	}
	result, err := d.dryRunRequest(request, spec)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		message := "Transaction reverted without a reason string"
		if result.Reverted() {
			message = "execution reverted"
		}
		return nil, errTransactionFailed(message, hexutil.Encode(result.ReturnData))
	}
	return result.ReturnData, nil
}

func (d *providerData) ethEstimateGas(raw []json.RawMessage) (hexutil.Uint64, error) {
	request := new(TransactionRequest)
	if err := decodeParam(raw, 0, request); err != nil {
		return 0, err
	}
	spec, err := optionalBlockSpec(raw, 1)
	if err != nil {
		return 0, err
	}
	if err := validateTransactionRequest(request, d.config.Hardfork, d.config.AllowUnlimitedContractSize); err != nil {
		return 0, err
	}
	gas, err := d.estimateGas(request, spec)
	return hexutil.Uint64(gas), err
}

func (d *providerData) ethGasPrice() (*hexutil.Big, error) {
	return (*hexutil.Big)(d.gasPriceSuggestion()), nil
}

func (d *providerData) ethMaxPriorityFeePerGas() (*hexutil.Big, error) {
	return (*hexutil.Big)(defaultPriorityFee), nil
}

func (d *providerData) ethBlobBaseFee() (*hexutil.Big, error) {
	head, err := d.chain.LastBlock()
	if err != nil {
		return nil, err
	}
	excess := head.ExcessBlobGas()
	if excess == nil {
		return (*hexutil.Big)(new(big.Int)), nil
	}
	fee := eip4844.CalcBlobFee(params.BlobScheduleFor(d.config.Hardfork), *excess)
	return (*hexutil.Big)(fee), nil
}

// feeHistoryResult mirrors the eth_feeHistory response shape.
type feeHistoryResult struct {
	OldestBlock   *hexutil.Big     `json:"oldestBlock"`
	BaseFeePerGas []*hexutil.Big   `json:"baseFeePerGas"`
	GasUsedRatio  []float64        `json:"gasUsedRatio"`
	Reward        [][]*hexutil.Big `json:"reward,omitempty"`
}

func (d *providerData) ethFeeHistory(raw []json.RawMessage) (*feeHistoryResult, error) {
	var count hexutil.Uint64
	if err := decodeParam(raw, 0, &count); err != nil {
		return nil, err
	}
	spec, err := optionalBlockSpec(raw, 1)
	if err != nil {
		return nil, err
	}
	var percentiles []float64
	if len(raw) > 2 {
		if err := decodeParam(raw, 2, &percentiles); err != nil {
			return nil, err
		}
	}
	newest, err := d.resolveBlockNumber(spec)
	if err != nil {
		return nil, err
	}
	blocks := uint64(count)
	if blocks == 0 {
		blocks = 1
	}
	if blocks > newest+1 {
		blocks = newest + 1
	}
	oldest := newest + 1 - blocks

	result := &feeHistoryResult{
		OldestBlock: (*hexutil.Big)(new(big.Int).SetUint64(oldest)),
	}
	for number := oldest; number <= newest; number++ {
		block, err := d.chain.BlockByNumber(number)
		if err != nil {
			return nil, err
		}
		baseFee := block.BaseFee()
		if baseFee == nil {
			baseFee = new(big.Int)
		}
		result.BaseFeePerGas = append(result.BaseFeePerGas, (*hexutil.Big)(baseFee))
		ratio := 0.0
		if block.GasLimit() > 0 {
			ratio = float64(block.GasUsed()) / float64(block.GasLimit())
		}
		result.GasUsedRatio = append(result.GasUsedRatio, ratio)
		if len(percentiles) > 0 {
			result.Reward = append(result.Reward, d.blockRewardPercentiles(block, percentiles))
		}
	}
	// The next block's base fee is appended for fee estimation.
	head, err := d.chain.BlockByNumber(newest)
	if err == nil && head.BaseFee() != nil {
		next := eip1559.CalcBaseFee(head.Header(), true)
		result.BaseFeePerGas = append(result.BaseFeePerGas, (*hexutil.Big)(next))
	}
	return result, nil
}

// blockRewardPercentiles approximates per-percentile priority fees from the
// block's transactions, sorted by effective tip.
func (d *providerData) blockRewardPercentiles(block *types.Block, percentiles []float64) []*hexutil.Big {
	txs := block.Transactions()
	rewards := make([]*hexutil.Big, len(percentiles))
	if len(txs) == 0 {
		for i := range rewards {
			rewards[i] = (*hexutil.Big)(new(big.Int))
		}
		return rewards
	}
	tips := make([]*big.Int, len(txs))
	for i, tx := range txs {
		tips[i] = tx.EffectiveGasTipValue(block.BaseFee())
	}
	for i := 0; i < len(tips); i++ {
		for j := i + 1; j < len(tips); j++ {
			if tips[j].Cmp(tips[i]) < 0 {
				tips[i], tips[j] = tips[j], tips[i]
			}
		}
	}
	for i, percentile := range percentiles {
		index := int(percentile / 100 * float64(len(tips)-1))
		if index < 0 {
			index = 0
		}
		if index >= len(tips) {
			index = len(tips) - 1
		}
		rewards[i] = (*hexutil.Big)(tips[index])
	}
	return rewards
}

func (d *providerData) ethGetBalance(raw []json.RawMessage) (*hexutil.Big, error) {
	var addr common.Address
	if err := decodeParam(raw, 0, &addr); err != nil {
		return nil, err
	}
	spec, err := optionalBlockSpec(raw, 1)
	if err != nil {
		return nil, err
	}
	st, err := d.stateAtSpec(spec)
	if err != nil {
		return nil, err
	}
	balance, err := st.GetBalance(addr)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(balance.ToBig()), nil
}

func (d *providerData) ethGetCode(raw []json.RawMessage) (hexutil.Bytes, error) {
	var addr common.Address
	if err := decodeParam(raw, 0, &addr); err != nil {
		return nil, err
	}
	spec, err := optionalBlockSpec(raw, 1)
	if err != nil {
		return nil, err
	}
	st, err := d.stateAtSpec(spec)
	if err != nil {
		return nil, err
	}
	code, err := st.GetCode(addr)
	if err != nil {
		return nil, err
	}
	return code, nil
}

func (d *providerData) ethGetStorageAt(raw []json.RawMessage) (common.Hash, error) {
	var (
		addr common.Address
		slot common.Hash
	)
	if err := decodeParam(raw, 0, &addr); err != nil {
		return common.Hash{}, err
	}
	if err := decodeParam(raw, 1, &slot); err != nil {
		return common.Hash{}, err
	}
	spec, err := optionalBlockSpec(raw, 2)
	if err != nil {
		return common.Hash{}, err
	}
	st, err := d.stateAtSpec(spec)
	if err != nil {
		return common.Hash{}, err
	}
	return st.GetStorage(addr, slot)
}

func (d *providerData) ethGetTransactionCount(raw []json.RawMessage) (hexutil.Uint64, error) {
	var addr common.Address
	if err := decodeParam(raw, 0, &addr); err != nil {
		return 0, err
	}
	spec, err := optionalBlockSpec(raw, 1)
	if err != nil {
		return 0, err
	}
	if spec.Tag == "pending" {
		nonce, err := d.nextNonce(addr)
		return hexutil.Uint64(nonce), err
	}
	st, err := d.stateAtSpec(spec)
	if err != nil {
		return 0, err
	}
	nonce, err := st.GetNonce(addr)
	return hexutil.Uint64(nonce), err
}

func (d *providerData) ethGetBlockByNumber(raw []json.RawMessage) (*RPCBlock, error) {
	spec := new(BlockSpec)
	if err := decodeParam(raw, 0, spec); err != nil {
		return nil, err
	}
	var fullTxs bool
	if len(raw) > 1 {
		if err := decodeParam(raw, 1, &fullTxs); err != nil {
			return nil, err
		}
	}
	block, err := d.blockBySpec(spec)
	if err != nil {
		if spec.Number != nil {
			return nil, nil // absent numbers yield null, matching mainline clients
		}
		return nil, err
	}
	return d.newRPCBlock(block, fullTxs), nil
}

func (d *providerData) ethGetBlockByHash(raw []json.RawMessage) (*RPCBlock, error) {
	var hash common.Hash
	if err := decodeParam(raw, 0, &hash); err != nil {
		return nil, err
	}
	var fullTxs bool
	if len(raw) > 1 {
		if err := decodeParam(raw, 1, &fullTxs); err != nil {
			return nil, err
		}
	}
	block, err := d.chain.BlockByHash(hash)
	if err != nil {
		return nil, nil
	}
	return d.newRPCBlock(block, fullTxs), nil
}

func (d *providerData) ethGetBlockTransactionCountByNumber(raw []json.RawMessage) (*hexutil.Uint64, error) {
	spec := new(BlockSpec)
	if err := decodeParam(raw, 0, spec); err != nil {
		return nil, err
	}
	block, err := d.blockBySpec(spec)
	if err != nil {
		return nil, nil
	}
	count := hexutil.Uint64(len(block.Transactions()))
	return &count, nil
}

func (d *providerData) ethGetBlockTransactionCountByHash(raw []json.RawMessage) (*hexutil.Uint64, error) {
	var hash common.Hash
	if err := decodeParam(raw, 0, &hash); err != nil {
		return nil, err
	}
	block, err := d.chain.BlockByHash(hash)
	if err != nil {
		return nil, nil
	}
	count := hexutil.Uint64(len(block.Transactions()))
	return &count, nil
}

func (d *providerData) ethGetTransactionByHash(raw []json.RawMessage) (*RPCTransaction, error) {
	var hash common.Hash
	if err := decodeParam(raw, 0, &hash); err != nil {
		return nil, err
	}
	// Mined transactions take precedence over pooled ones.
	if block, err := d.chain.BlockByTransactionHash(hash); err == nil && block != nil {
		for i, tx := range block.Transactions() {
			if tx.Hash() == hash {
				return newRPCTransaction(tx, d.signer(), block.Hash(), block.NumberU64(), uint64(i), block.BaseFee()), nil
			}
		}
	}
	if entry := d.pool.TransactionByHash(hash); entry != nil {
		return newRPCTransaction(entry.Tx, d.signer(), common.Hash{}, 0, 0, nil), nil
	}
	return nil, nil
}

func (d *providerData) ethGetTransactionReceipt(raw []json.RawMessage) (*RPCReceipt, error) {
	var hash common.Hash
	if err := decodeParam(raw, 0, &hash); err != nil {
		return nil, err
	}
	receipt, err := d.chain.ReceiptByTransactionHash(hash)
	if err != nil || receipt == nil {
		return nil, nil
	}
	return newRPCReceipt(receipt), nil
}

func (d *providerData) ethGetLogs(raw []json.RawMessage) ([]*types.Log, error) {
	criteria := new(filterCriteria)
	if err := decodeParam(raw, 0, criteria); err != nil {
		return nil, err
	}
	if criteria.FromBlock == nil {
		criteria.FromBlock = latestBlockSpec()
	}
	logFilter, err := d.toLogFilter(criteria)
	if err != nil {
		return nil, err
	}
	logs, err := d.chain.Logs(logFilter)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*types.Log{}
	}
	return logs, nil
}

func (d *providerData) ethSendTransaction(raw []json.RawMessage) (common.Hash, error) {
	request := new(TransactionRequest)
	if err := decodeParam(raw, 0, request); err != nil {
		return common.Hash{}, err
	}
	if err := validateTransactionRequest(request, d.config.Hardfork, d.config.AllowUnlimitedContractSize); err != nil {
		return common.Hash{}, err
	}
	tx, err := d.signRequest(request)
	if err != nil {
		return common.Hash{}, err
	}
	return d.sendSigned(tx)
}

func (d *providerData) ethSendRawTransaction(raw []json.RawMessage) (common.Hash, error) {
	var encoded hexutil.Bytes
	if err := decodeParam(raw, 0, &encoded); err != nil {
		return common.Hash{}, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(encoded); err != nil {
		return common.Hash{}, invalidParams("invalid raw transaction: %v", err)
	}
	if tx.Protected() && tx.ChainId().Cmp(d.config.ChainID) != 0 {
		return common.Hash{}, errInvalidChainID(d.config.ChainID, tx.ChainId())
	}
	return d.sendSigned(tx)
}

func (d *providerData) ethPendingTransactions() ([]*RPCTransaction, error) {
	result := make([]*RPCTransaction, 0)
	signer := d.signer()
	for _, queue := range d.pool.PendingTransactions() {
		for _, entry := range queue {
			result = append(result, newRPCTransaction(entry.Tx, signer, common.Hash{}, 0, 0, nil))
		}
	}
	return result, nil
}

func (d *providerData) ethNewFilter(raw []json.RawMessage) (hexutil.Uint64, error) {
	criteria := new(filterCriteria)
	if err := decodeParam(raw, 0, criteria); err != nil {
		return 0, err
	}
	return hexutil.Uint64(d.installFilter(logsFilter, criteria)), nil
}

func (d *providerData) ethNewBlockFilter() (hexutil.Uint64, error) {
	return hexutil.Uint64(d.installFilter(blockFilter, nil)), nil
}

func (d *providerData) ethNewPendingTransactionFilter() (hexutil.Uint64, error) {
	return hexutil.Uint64(d.installFilter(pendingTransactionsFilter, nil)), nil
}

func (d *providerData) ethGetFilterChanges(raw []json.RawMessage) (any, error) {
	var id hexutil.Uint64
	if err := decodeParam(raw, 0, &id); err != nil {
		return nil, err
	}
	f, ok := d.filters[uint64(id)]
	if !ok {
		return nil, invalidInput("filter not found")
	}
	switch f.kind {
	case logsFilter:
		logs := f.logs
		f.logs = nil
		if logs == nil {
			logs = []*types.Log{}
		}
		return logs, nil
	default:
		hashes := f.hashes
		f.hashes = nil
		if hashes == nil {
			hashes = []common.Hash{}
		}
		return hashes, nil
	}
}

func (d *providerData) ethGetFilterLogs(raw []json.RawMessage) ([]*types.Log, error) {
	var id hexutil.Uint64
	if err := decodeParam(raw, 0, &id); err != nil {
		return nil, err
	}
	f, ok := d.filters[uint64(id)]
	if !ok || f.kind != logsFilter {
		return nil, invalidInput("filter not found")
	}
	logFilter, err := d.toLogFilter(f.criteria)
	if err != nil {
		return nil, err
	}
	logs, err := d.chain.Logs(logFilter)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*types.Log{}
	}
	return logs, nil
}

func (d *providerData) ethUninstallFilter(raw []json.RawMessage) (bool, error) {
	var id hexutil.Uint64
	if err := decodeParam(raw, 0, &id); err != nil {
		return false, err
	}
	return d.uninstallFilter(uint64(id)), nil
}

// ethSubscribe installs a poll-based subscription; an embedding host drains
// it through eth_getFilterChanges using the returned id.
func (d *providerData) ethSubscribe(raw []json.RawMessage) (hexutil.Uint64, error) {
	var kind string
	if err := decodeParam(raw, 0, &kind); err != nil {
		return 0, err
	}
	switch kind {
	case "newHeads":
		return d.ethNewBlockFilter()
	case "newPendingTransactions":
		return d.ethNewPendingTransactionFilter()
	case "logs":
		criteria := new(filterCriteria)
		if len(raw) > 1 {
			if err := decodeParam(raw, 1, criteria); err != nil {
				return 0, err
			}
		}
		return hexutil.Uint64(d.installFilter(logsFilter, criteria)), nil
	default:
		return 0, invalidParams("unsupported subscription type %q", kind)
	}
}
