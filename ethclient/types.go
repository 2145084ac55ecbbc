package ethclient

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethforge/devchain/core/types"
)

// rpcHeader mirrors the JSON shape of a remote block header.
type rpcHeader struct {
	Hash             common.Hash     `json:"hash"`
	ParentHash       common.Hash     `json:"parentHash"`
	UncleHash        common.Hash     `json:"sha3Uncles"`
	Coinbase         common.Address  `json:"miner"`
	Root             common.Hash     `json:"stateRoot"`
	TxHash           common.Hash     `json:"transactionsRoot"`
	ReceiptHash      common.Hash     `json:"receiptsRoot"`
	Bloom            types.Bloom     `json:"logsBloom"`
	Difficulty       *hexutil.Big    `json:"difficulty"`
	Number           *hexutil.Big    `json:"number"`
	GasLimit         hexutil.Uint64  `json:"gasLimit"`
	GasUsed          hexutil.Uint64  `json:"gasUsed"`
	Time             hexutil.Uint64  `json:"timestamp"`
	Extra            hexutil.Bytes   `json:"extraData"`
	MixDigest        common.Hash     `json:"mixHash"`
	Nonce            types.BlockNonce `json:"nonce"`
	BaseFee          *hexutil.Big    `json:"baseFeePerGas"`
	WithdrawalsHash  *common.Hash    `json:"withdrawalsRoot"`
	BlobGasUsed      *hexutil.Uint64 `json:"blobGasUsed"`
	ExcessBlobGas    *hexutil.Uint64 `json:"excessBlobGas"`
	ParentBeaconRoot *common.Hash    `json:"parentBeaconBlockRoot"`
	RequestsHash     *common.Hash    `json:"requestsHash"`
}

// rpcBlock is a remote block with full transaction bodies.
type rpcBlock struct {
	rpcHeader
	Transactions []*types.Transaction `json:"transactions"`
	Withdrawals  []*types.Withdrawal  `json:"withdrawals"`
}

func (b *rpcBlock) toBlock() *types.Block {
	header := &types.Header{
		ParentHash:       b.ParentHash,
		UncleHash:        b.UncleHash,
		Coinbase:         b.Coinbase,
		Root:             b.Root,
		TxHash:           b.TxHash,
		ReceiptHash:      b.ReceiptHash,
		Bloom:            b.Bloom,
		Difficulty:       (*big.Int)(b.Difficulty),
		Number:           (*big.Int)(b.Number),
		GasLimit:         uint64(b.GasLimit),
		GasUsed:          uint64(b.GasUsed),
		Time:             uint64(b.Time),
		Extra:            b.Extra,
		MixDigest:        b.MixDigest,
		Nonce:            b.Nonce,
		BaseFee:          (*big.Int)(b.BaseFee),
		WithdrawalsHash:  b.WithdrawalsHash,
		BlobGasUsed:      (*uint64)(b.BlobGasUsed),
		ExcessBlobGas:    (*uint64)(b.ExcessBlobGas),
		ParentBeaconRoot: b.ParentBeaconRoot,
		RequestsHash:     b.RequestsHash,
	}
	if header.Difficulty == nil {
		header.Difficulty = new(big.Int)
	}
	body := &types.Body{
		Transactions: b.Transactions,
		Withdrawals:  b.Withdrawals,
	}
	return types.NewRemoteBlock(header, body, b.Hash)
}

// rpcReceipt mirrors the JSON shape of a remote transaction receipt.
type rpcReceipt struct {
	Type              *hexutil.Uint64 `json:"type"`
	Root              hexutil.Bytes   `json:"root"`
	Status            *hexutil.Uint64 `json:"status"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	Bloom             types.Bloom     `json:"logsBloom"`
	Logs              []*types.Log    `json:"logs"`
	TxHash            common.Hash     `json:"transactionHash"`
	ContractAddress   *common.Address `json:"contractAddress"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	BlobGasUsed       *hexutil.Uint64 `json:"blobGasUsed"`
	BlobGasPrice      *hexutil.Big    `json:"blobGasPrice"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       *hexutil.Big    `json:"blockNumber"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
}

func (r *rpcReceipt) toReceipt() *types.Receipt {
	receipt := &types.Receipt{
		PostState:         r.Root,
		CumulativeGasUsed: uint64(r.CumulativeGasUsed),
		Bloom:             r.Bloom,
		Logs:              r.Logs,
		TxHash:            r.TxHash,
		GasUsed:           uint64(r.GasUsed),
		EffectiveGasPrice: (*big.Int)(r.EffectiveGasPrice),
		BlockHash:         r.BlockHash,
		BlockNumber:       (*big.Int)(r.BlockNumber),
		TransactionIndex:  uint(r.TransactionIndex),
		From:              r.From,
		To:                r.To,
	}
	if r.Type != nil {
		receipt.Type = uint8(*r.Type)
	}
	if r.Status != nil {
		receipt.Status = uint64(*r.Status)
	}
	if r.ContractAddress != nil {
		receipt.ContractAddress = *r.ContractAddress
	}
	if r.BlobGasUsed != nil {
		receipt.BlobGasUsed = uint64(*r.BlobGasUsed)
	}
	if r.BlobGasPrice != nil {
		receipt.BlobGasPrice = (*big.Int)(r.BlobGasPrice)
	}
	return receipt
}

// rpcTransaction is the subset of a remote transaction needed for index
// resolution.
type rpcTransaction struct {
	Hash        common.Hash  `json:"hash"`
	BlockHash   *common.Hash `json:"blockHash"`
	BlockNumber *hexutil.Big `json:"blockNumber"`
}

// logFilterQuery is the JSON argument of eth_getLogs.
type logFilterQuery struct {
	FromBlock string           `json:"fromBlock"`
	ToBlock   string           `json:"toBlock"`
	Address   []common.Address `json:"address,omitempty"`
	Topics    [][]common.Hash  `json:"topics,omitempty"`
}
