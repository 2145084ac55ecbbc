// Package vm defines the boundary to the EVM interpreter. The execution
// engine itself is an external collaborator; the development chain drives it
// exclusively through the DryRun oracle and consumes its state diffs.
package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/params"
)

// Config carries the chain-level execution parameters of a dry run.
type Config struct {
	ChainID  *big.Int
	Hardfork params.Hardfork

	// AllowUnlimitedContractSize disables the EIP-170/EIP-3860 size caps.
	AllowUnlimitedContractSize bool

	// DisableEip3607 permits transactions from accounts with deployed code.
	DisableEip3607 bool
}

// BlockEnv describes the pending block a transaction executes inside.
type BlockEnv struct {
	Number      *big.Int
	Coinbase    common.Address
	Time        uint64
	GasLimit    uint64
	BaseFee     *big.Int    // nil before London
	PrevRandao  common.Hash // mix digest post-merge
	Difficulty  *big.Int    // pre-merge only
	BlobBaseFee *big.Int    // nil before Cancun
}

// Precompile is a custom precompiled contract installed at a fixed address
// for the duration of a block build.
type Precompile interface {
	Run(input []byte) (ret []byte, gasUsed uint64, err error)
}

// ExecutionResult is the outcome of one transaction dry run. A failed
// execution (revert or halt) is still a valid inclusion: the transaction
// consumes gas and receives a failed-status receipt.
type ExecutionResult struct {
	GasUsed         uint64
	Success         bool
	ReturnData      []byte
	Logs            []*types.Log
	ContractAddress *common.Address // set for successful creations
	Trace           []byte          // opaque interpreter trace, JSON
}

// Reverted reports whether execution failed with a REVERT carrying return
// data (as opposed to an exceptional halt).
func (r *ExecutionResult) Reverted() bool {
	return !r.Success && len(r.ReturnData) > 0
}

// Interpreter executes a single transaction against a state snapshot and
// returns the result together with the induced state diff. It must not
// mutate the passed state; the caller applies the diff.
//
// Transaction-level validation failures (bad nonce, fee below base fee,
// insufficient funds) are returned as errors matching the sentinels in this
// package; the caller classifies them per errors.Is.
type Interpreter interface {
	DryRun(st state.StateDB, cfg Config, tx *types.Transaction, sender common.Address, env BlockEnv, precompiles map[common.Address]Precompile) (*ExecutionResult, *state.StateDiff, error)
}
