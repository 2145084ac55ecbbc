package miner

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethforge/devchain/params"
)

var (
	// ErrMissingWithdrawals is returned when building a Shanghai+ block
	// without a withdrawals list.
	ErrMissingWithdrawals = errors.New("missing withdrawals for post-Shanghai block")

	// ErrMissingPrevrandao is returned when mining a post-merge block without
	// a prevrandao value.
	ErrMissingPrevrandao = errors.New("missing prevrandao for post-merge block")
)

// UnsupportedHardforkError is returned when creating a builder for a
// hardfork the block builder does not support.
type UnsupportedHardforkError struct {
	Hardfork params.Hardfork
}

func (e *UnsupportedHardforkError) Error() string {
	return fmt.Sprintf("Unsupported hardfork %s. The block builder only supports Byzantium and later", e.Hardfork)
}

// BlockGasLimitError is returned when a transaction does not fit in the
// remaining block gas.
type BlockGasLimitError struct {
	Remaining uint64
	GasLimit  uint64
}

func (e *BlockGasLimitError) Error() string {
	return fmt.Sprintf("Transaction gas limit %d exceeds remaining block gas %d", e.GasLimit, e.Remaining)
}

// BlockBlobGasLimitError is returned when a blob transaction does not fit in
// the remaining blob gas budget of the block.
type BlockBlobGasLimitError struct {
	BlockBlobGas uint64
	TxBlobGas    uint64
	MaxBlobGas   uint64
}

func (e *BlockBlobGasLimitError) Error() string {
	return fmt.Sprintf("Transaction blob gas %d plus block blob gas %d exceeds the maximum of %d", e.TxBlobGas, e.BlockBlobGas, e.MaxBlobGas)
}

// TransactionError wraps an interpreter failure for a specific transaction.
type TransactionError struct {
	TxHash common.Hash
	Err    error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("Transaction %s failed: %v", e.TxHash, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// BlockRlpSizeError is returned by finalize when the encoded block exceeds
// the RLP size cap.
type BlockRlpSizeError struct {
	MaxSize    uint64
	ActualSize uint64
}

func (e *BlockRlpSizeError) Error() string {
	return fmt.Sprintf("Block RLP size %d exceeds the maximum of %d", e.ActualSize, e.MaxSize)
}

// Fee-floor and nonce errors of single-transaction mining. Each mined-or-
// rejected attempt reports exactly one reason.

type PriorityFeeTooLowError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *PriorityFeeTooLowError) Error() string {
	return fmt.Sprintf("Transaction gas price is %v, which is below the minimum of %v", e.Actual, e.Expected)
}

type MaxFeePerGasTooLowError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *MaxFeePerGasTooLowError) Error() string {
	return fmt.Sprintf("Transaction maxFeePerGas (%v) is too low for the next block, which has a baseFeePerGas of %v", e.Actual, e.Expected)
}

type MaxFeePerBlobGasTooLowError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *MaxFeePerBlobGasTooLowError) Error() string {
	return fmt.Sprintf("Transaction maxFeePerBlobGas (%v) is too low for the next block, which has a blobBaseFee of %v", e.Actual, e.Expected)
}

type NonceTooLowError struct {
	Expected uint64
	Actual   uint64
}

func (e *NonceTooLowError) Error() string {
	return fmt.Sprintf("Nonce too low. Expected nonce to be %d but got %d", e.Expected, e.Actual)
}

type NonceTooHighError struct {
	Expected uint64
	Actual   uint64
}

func (e *NonceTooHighError) Error() string {
	return fmt.Sprintf("Nonce too high. Expected nonce to be %d but got %d", e.Expected, e.Actual)
}
