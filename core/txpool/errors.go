package txpool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrExceedsBlockGasLimit is returned when a transaction's gas limit cannot
// fit in any block.
type ErrExceedsBlockGasLimit struct {
	BlockGasLimit uint64
	GasLimit      uint64
}

func (e *ErrExceedsBlockGasLimit) Error() string {
	return fmt.Sprintf("Transaction gas limit is %d and exceeds block gas limit of %d", e.GasLimit, e.BlockGasLimit)
}

// ErrTransactionAlreadyExists is returned when a known hash is re-submitted.
type ErrTransactionAlreadyExists struct {
	Hash common.Hash
}

func (e *ErrTransactionAlreadyExists) Error() string {
	return fmt.Sprintf("Known transaction: %s", e.Hash.Hex())
}

// ErrNonceTooLow is returned when the transaction nonce is below the
// sender's account nonce.
type ErrNonceTooLow struct {
	Sender       common.Address
	Nonce        uint64
	AccountNonce uint64
}

func (e *ErrNonceTooLow) Error() string {
	return fmt.Sprintf("Nonce too low. Expected nonce to be at least %d but got %d", e.AccountNonce, e.Nonce)
}

// ErrInsufficientFunds is returned when the sender's balance cannot cover the
// transaction's up-front cost.
type ErrInsufficientFunds struct {
	Sender      common.Address
	UpfrontCost *big.Int
	Balance     *big.Int
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("Sender doesn't have enough funds to send tx. The max upfront cost is: %v and the sender's balance is: %v", e.UpfrontCost, e.Balance)
}

// ErrReplacementMaxFeePerGasTooLow is returned when a same-nonce replacement
// does not raise the max fee per gas by the required 10%.
type ErrReplacementMaxFeePerGasTooLow struct {
	MinNewMaxFeePerGas *big.Int
}

func (e *ErrReplacementMaxFeePerGasTooLow) Error() string {
	return fmt.Sprintf("Replacement transaction underpriced. A gasPrice/maxFeePerGas of at least %v is necessary to replace the existing transaction", e.MinNewMaxFeePerGas)
}

// ErrReplacementMaxPriorityFeePerGasTooLow is returned when a same-nonce
// replacement does not raise the priority fee by the required 10%.
type ErrReplacementMaxPriorityFeePerGasTooLow struct {
	MinNewMaxPriorityFeePerGas *big.Int
}

func (e *ErrReplacementMaxPriorityFeePerGasTooLow) Error() string {
	return fmt.Sprintf("Replacement transaction underpriced. A maxPriorityFeePerGas of at least %v is necessary to replace the existing transaction", e.MinNewMaxPriorityFeePerGas)
}
