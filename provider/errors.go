package provider

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethforge/devchain/core"
	"github.com/ethforge/devchain/core/txpool"
	"github.com/ethforge/devchain/miner"
	"github.com/ethforge/devchain/params"
)

// JSON-RPC error codes used by the provider.
const (
	CodeInvalidInput   = -32000 // generic validation / invalid input
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeMethodNotFound = -32004
)

// RpcError is the structured error returned to JSON-RPC callers.
type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RpcError) Error() string { return e.Message }

func invalidInput(format string, args ...any) *RpcError {
	return &RpcError{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func invalidParams(format string, args ...any) *RpcError {
	return &RpcError{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func internalError(err error) *RpcError {
	return &RpcError{Code: CodeInternalError, Message: err.Error()}
}

func methodNotFound(method string) *RpcError {
	return &RpcError{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method %s is not supported", method)}
}

// Provider-level error values with stable messages.

func errUnknownAddress(addr common.Address) *RpcError {
	return invalidInput("unknown account %s", addr.Hex())
}

func errUnknownBlockNumber() *RpcError {
	return invalidInput("Received invalid block tag or block number that doesn't exist")
}

func errInvalidChainID(expected, actual any) *RpcError {
	return invalidInput("Invalid chainId %v. Expected %v", actual, expected)
}

func errUnmetHardfork(requirement string, current params.Hardfork) *RpcError {
	return invalidInput("%s, but the current hardfork is %s", requirement, current)
}

func errInvalidBlockTag(tag string) *RpcError {
	return invalidInput("The '%s' block tag is not allowed in pre-merge hardforks", tag)
}

func errInvalidDropTransactionHash(hash common.Hash) *RpcError {
	return invalidInput("Transaction %s cannot be dropped because it's already mined", hash.Hex())
}

// TransactionFailedData carries the revert payload of a failed call.
type TransactionFailedData struct {
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func errTransactionFailed(message, revertData string) *RpcError {
	return &RpcError{
		Code:    CodeInvalidInput,
		Message: message,
		Data:    &TransactionFailedData{Message: message, Data: revertData},
	}
}

// toRpcError maps internal errors onto the JSON-RPC taxonomy. Mempool
// admission errors pass through to the submitter unchanged; unknown errors
// become internal errors.
func toRpcError(err error) *RpcError {
	if err == nil {
		return nil
	}
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var (
		gasLimitErr      *txpool.ErrExceedsBlockGasLimit
		existsErr        *txpool.ErrTransactionAlreadyExists
		nonceLowErr      *txpool.ErrNonceTooLow
		fundsErr         *txpool.ErrInsufficientFunds
		replaceFeeErr    *txpool.ErrReplacementMaxFeePerGasTooLow
		replaceTipErr    *txpool.ErrReplacementMaxPriorityFeePerGasTooLow
		minerNonceLow    *miner.NonceTooLowError
		minerNonceHigh   *miner.NonceTooHighError
		priorityFeeErr   *miner.PriorityFeeTooLowError
		maxFeeErr        *miner.MaxFeePerGasTooLowError
		maxBlobFeeErr    *miner.MaxFeePerBlobGasTooLowError
		blockGasErr      *miner.BlockGasLimitError
		blockRlpSizeErr  *miner.BlockRlpSizeError
		unsupportedForks *miner.UnsupportedHardforkError
	)
	switch {
	case errors.As(err, &gasLimitErr),
		errors.As(err, &existsErr),
		errors.As(err, &nonceLowErr),
		errors.As(err, &fundsErr),
		errors.As(err, &replaceFeeErr),
		errors.As(err, &replaceTipErr),
		errors.As(err, &minerNonceLow),
		errors.As(err, &minerNonceHigh),
		errors.As(err, &priorityFeeErr),
		errors.As(err, &maxFeeErr),
		errors.As(err, &maxBlobFeeErr),
		errors.As(err, &blockGasErr),
		errors.As(err, &blockRlpSizeErr),
		errors.As(err, &unsupportedForks):
		return &RpcError{Code: CodeInvalidInput, Message: err.Error()}
	case errors.Is(err, core.ErrUnknownBlockNumber), errors.Is(err, core.ErrUnknownBlockHash):
		return errUnknownBlockNumber()
	case errors.Is(err, core.ErrCannotDeleteRemote):
		return invalidInput(err.Error())
	default:
		return internalError(err)
	}
}
