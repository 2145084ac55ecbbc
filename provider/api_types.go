package provider

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethforge/devchain/core/types"
)

// RPCTransaction is the JSON shape of a transaction in RPC responses.
// Legacy transactions never emit chainId or yParity; typed transactions emit
// v alongside yParity for compatibility.
type RPCTransaction struct {
	BlockHash           *common.Hash                 `json:"blockHash"`
	BlockNumber         *hexutil.Big                 `json:"blockNumber"`
	From                common.Address               `json:"from"`
	Gas                 hexutil.Uint64               `json:"gas"`
	GasPrice            *hexutil.Big                 `json:"gasPrice"`
	MaxFeePerGas        *hexutil.Big                 `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big                `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerBlobGas    *hexutil.Big                 `json:"maxFeePerBlobGas,omitempty"`
	Hash                common.Hash                  `json:"hash"`
	Input               hexutil.Bytes                `json:"input"`
	Nonce               hexutil.Uint64               `json:"nonce"`
	To                  *common.Address              `json:"to"`
	TransactionIndex    *hexutil.Uint64              `json:"transactionIndex"`
	Value               *hexutil.Big                 `json:"value"`
	Type                hexutil.Uint64               `json:"type"`
	Accesses            *types.AccessList            `json:"accessList,omitempty"`
	ChainID             *hexutil.Big                 `json:"chainId,omitempty"`
	BlobVersionedHashes []common.Hash                `json:"blobVersionedHashes,omitempty"`
	AuthorizationList   []types.SetCodeAuthorization `json:"authorizationList,omitempty"`
	V                   *hexutil.Big                 `json:"v"`
	R                   *hexutil.Big                 `json:"r"`
	S                   *hexutil.Big                 `json:"s"`
	YParity             *hexutil.Uint64              `json:"yParity,omitempty"`
}

// newRPCTransaction renders a transaction with its inclusion context.
// blockHash is zero for pending transactions.
func newRPCTransaction(tx *types.Transaction, signer types.Signer, blockHash common.Hash, blockNumber uint64, index uint64, baseFee *big.Int) *RPCTransaction {
	from, _ := types.Sender(signer, tx)
	v, r, s := tx.RawSignatureValues()
	result := &RPCTransaction{
		Type:   hexutil.Uint64(tx.Type()),
		From:   from,
		Gas:    hexutil.Uint64(tx.Gas()),
		Hash:   tx.Hash(),
		Input:  hexutil.Bytes(tx.Data()),
		Nonce:  hexutil.Uint64(tx.Nonce()),
		To:     tx.To(),
		Value:  (*hexutil.Big)(tx.Value()),
		V:      (*hexutil.Big)(v),
		R:      (*hexutil.Big)(r),
		S:      (*hexutil.Big)(s),
	}
	if blockHash != (common.Hash{}) {
		result.BlockHash = &blockHash
		result.BlockNumber = (*hexutil.Big)(new(big.Int).SetUint64(blockNumber))
		txIndex := hexutil.Uint64(index)
		result.TransactionIndex = &txIndex
	}
	switch tx.Type() {
	case types.LegacyTxType:
		result.GasPrice = (*hexutil.Big)(tx.GasPrice())
	default:
		result.ChainID = (*hexutil.Big)(tx.ChainId())
		yparity := hexutil.Uint64(v.Uint64())
		result.YParity = &yparity
		al := tx.AccessList()
		result.Accesses = &al
		if tx.Type() == types.AccessListTxType {
			result.GasPrice = (*hexutil.Big)(tx.GasPrice())
		} else {
			result.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
			result.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
			// Effective gas price for mined dynamic-fee transactions.
			if blockHash != (common.Hash{}) {
				result.GasPrice = (*hexutil.Big)(tx.EffectiveGasPrice(baseFee))
			} else {
				result.GasPrice = (*hexutil.Big)(tx.GasFeeCap())
			}
		}
		if tx.Type() == types.BlobTxType {
			result.MaxFeePerBlobGas = (*hexutil.Big)(tx.BlobGasFeeCap())
			result.BlobVersionedHashes = tx.BlobHashes()
		}
		if tx.Type() == types.SetCodeTxType {
			result.AuthorizationList = tx.SetCodeAuthorizations()
		}
	}
	return result
}

// RPCBlock is the JSON shape of a block.
type RPCBlock struct {
	Number           *hexutil.Big    `json:"number"`
	Hash             common.Hash     `json:"hash"`
	ParentHash       common.Hash     `json:"parentHash"`
	Nonce            types.BlockNonce `json:"nonce"`
	MixHash          common.Hash     `json:"mixHash"`
	UncleHash        common.Hash     `json:"sha3Uncles"`
	LogsBloom        types.Bloom     `json:"logsBloom"`
	StateRoot        common.Hash     `json:"stateRoot"`
	Miner            common.Address  `json:"miner"`
	Difficulty       *hexutil.Big    `json:"difficulty"`
	TotalDifficulty  *hexutil.Big    `json:"totalDifficulty,omitempty"`
	ExtraData        hexutil.Bytes   `json:"extraData"`
	Size             hexutil.Uint64  `json:"size"`
	GasLimit         hexutil.Uint64  `json:"gasLimit"`
	GasUsed          hexutil.Uint64  `json:"gasUsed"`
	Timestamp        hexutil.Uint64  `json:"timestamp"`
	TransactionsRoot common.Hash     `json:"transactionsRoot"`
	ReceiptsRoot     common.Hash     `json:"receiptsRoot"`
	BaseFeePerGas    *hexutil.Big    `json:"baseFeePerGas,omitempty"`
	WithdrawalsRoot  *common.Hash    `json:"withdrawalsRoot,omitempty"`
	Withdrawals      types.Withdrawals `json:"withdrawals,omitempty"`
	BlobGasUsed      *hexutil.Uint64 `json:"blobGasUsed,omitempty"`
	ExcessBlobGas    *hexutil.Uint64 `json:"excessBlobGas,omitempty"`
	ParentBeaconBlockRoot *common.Hash `json:"parentBeaconBlockRoot,omitempty"`
	Transactions     []any           `json:"transactions"`
	Uncles           []common.Hash   `json:"uncles"`
}

func (d *providerData) newRPCBlock(block *types.Block, fullTxs bool) *RPCBlock {
	header := block.Header()
	result := &RPCBlock{
		Number:           (*hexutil.Big)(header.Number),
		Hash:             block.Hash(),
		ParentHash:       header.ParentHash,
		Nonce:            header.Nonce,
		MixHash:          header.MixDigest,
		UncleHash:        header.UncleHash,
		LogsBloom:        header.Bloom,
		StateRoot:        header.Root,
		Miner:            header.Coinbase,
		Difficulty:       (*hexutil.Big)(header.Difficulty),
		ExtraData:        header.Extra,
		Size:             hexutil.Uint64(block.Size()),
		GasLimit:         hexutil.Uint64(header.GasLimit),
		GasUsed:          hexutil.Uint64(header.GasUsed),
		Timestamp:        hexutil.Uint64(header.Time),
		TransactionsRoot: header.TxHash,
		ReceiptsRoot:     header.ReceiptHash,
		BaseFeePerGas:    (*hexutil.Big)(header.BaseFee),
		WithdrawalsRoot:  header.WithdrawalsHash,
		Withdrawals:      block.Withdrawals(),
		BlobGasUsed:      (*hexutil.Uint64)(header.BlobGasUsed),
		ExcessBlobGas:    (*hexutil.Uint64)(header.ExcessBlobGas),
		ParentBeaconBlockRoot: header.ParentBeaconRoot,
		Uncles:           []common.Hash{},
	}
	if td, err := d.chain.TotalDifficultyByHash(block.Hash()); err == nil && td != nil {
		result.TotalDifficulty = (*hexutil.Big)(td)
	}
	signer := d.signer()
	result.Transactions = make([]any, 0, len(block.Transactions()))
	for i, tx := range block.Transactions() {
		if fullTxs {
			result.Transactions = append(result.Transactions,
				newRPCTransaction(tx, signer, block.Hash(), block.NumberU64(), uint64(i), header.BaseFee))
		} else {
			result.Transactions = append(result.Transactions, tx.Hash())
		}
	}
	return result
}

// RPCReceipt is the JSON shape of a transaction receipt.
type RPCReceipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	ContractAddress   *common.Address `json:"contractAddress"`
	Logs              []*types.Log    `json:"logs"`
	LogsBloom         types.Bloom     `json:"logsBloom"`
	Type              hexutil.Uint64  `json:"type"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	BlobGasUsed       *hexutil.Uint64 `json:"blobGasUsed,omitempty"`
	BlobGasPrice      *hexutil.Big    `json:"blobGasPrice,omitempty"`
	Status            *hexutil.Uint64 `json:"status,omitempty"`
	Root              hexutil.Bytes   `json:"root,omitempty"`
}

func newRPCReceipt(receipt *types.Receipt) *RPCReceipt {
	result := &RPCReceipt{
		TransactionHash:   receipt.TxHash,
		TransactionIndex:  hexutil.Uint64(receipt.TransactionIndex),
		BlockHash:         receipt.BlockHash,
		BlockNumber:       (*hexutil.Big)(receipt.BlockNumber),
		From:              receipt.From,
		To:                receipt.To,
		CumulativeGasUsed: hexutil.Uint64(receipt.CumulativeGasUsed),
		GasUsed:           hexutil.Uint64(receipt.GasUsed),
		Logs:              receipt.Logs,
		LogsBloom:         receipt.Bloom,
		Type:              hexutil.Uint64(receipt.Type),
		EffectiveGasPrice: (*hexutil.Big)(receipt.EffectiveGasPrice),
	}
	if receipt.Logs == nil {
		result.Logs = []*types.Log{}
	}
	if receipt.ContractAddress != (common.Address{}) {
		addr := receipt.ContractAddress
		result.ContractAddress = &addr
	}
	if len(receipt.PostState) > 0 {
		result.Root = receipt.PostState
	} else {
		status := hexutil.Uint64(receipt.Status)
		result.Status = &status
	}
	if receipt.BlobGasUsed > 0 {
		used := hexutil.Uint64(receipt.BlobGasUsed)
		result.BlobGasUsed = &used
		result.BlobGasPrice = (*hexutil.Big)(receipt.BlobGasPrice)
	}
	return result
}
