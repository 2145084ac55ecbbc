package vm

import "errors"

// Transaction-level validation sentinels returned by DryRun. These are
// recoverable from the block's point of view: the miner skips or defers the
// transaction instead of aborting the block.
var (
	// ErrNonceTooLow is returned when the transaction nonce is below the
	// sender's account nonce.
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrNonceTooHigh is returned when the transaction nonce leaves a gap
	// above the sender's account nonce.
	ErrNonceTooHigh = errors.New("nonce too high")

	// ErrGasPriceLessThanBaseFee is returned when the max fee per gas cannot
	// cover the block base fee.
	ErrGasPriceLessThanBaseFee = errors.New("max fee per gas less than block base fee")

	// ErrInsufficientFunds is returned when the sender's balance cannot cover
	// the transaction's up-front cost.
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")

	// ErrGasLimitReached is returned when the transaction does not fit in the
	// remaining block gas.
	ErrGasLimitReached = errors.New("gas limit reached")

	// ErrIntrinsicGas is returned when the gas limit is below the intrinsic
	// cost of the transaction payload.
	ErrIntrinsicGas = errors.New("intrinsic gas too low")

	// ErrBlobFeeCapTooLow is returned when the max fee per blob gas cannot
	// cover the block blob base fee.
	ErrBlobFeeCapTooLow = errors.New("max fee per blob gas less than block blob gas fee")
)
