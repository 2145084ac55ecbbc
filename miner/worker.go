// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package miner

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethforge/devchain/consensus/misc/eip4844"
	"github.com/ethforge/devchain/core"
	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/txpool"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/core/vm"
)

// MineConfig bundles the per-block mining knobs.
type MineConfig struct {
	Ordering    txpool.Ordering
	MinGasPrice *big.Int
	BlockReward *big.Int
	Beneficiary common.Address
}

// MineResult is the finalized build of a mined block. The transactions
// skipped while mining, and the reasons they were skipped, are not recorded.
type MineResult struct {
	Build *BuildResult
}

// MineBlock drains the mempool into a fresh block builder under the
// configured ordering. Per-transaction exclusion reasons (fee floor, block
// gas pressure, base fee) skip the sender without aborting the block; any
// other failure aborts mining.
func MineBlock(
	chain core.Blockchain,
	st state.StateDB,
	pool *txpool.MemPool,
	interp vm.Interpreter,
	cfg vm.Config,
	inputs BlockInputs,
	overrides *HeaderOverrides,
	mineCfg MineConfig,
	precompiles map[common.Address]vm.Precompile,
) (*MineResult, error) {
	if cfg.Hardfork.IsPostMerge() && (overrides == nil || overrides.MixDigest == nil) {
		return nil, ErrMissingPrevrandao
	}
	builder, err := NewBlockBuilder(chain, st, interp, cfg, inputs, overrides, precompiles)
	if err != nil {
		return nil, err
	}

	pending := pool.Pending(mineCfg.Ordering, builder.Header().BaseFee)
	for {
		entry := pending.Peek()
		if entry == nil {
			break
		}
		tx := entry.Tx
		if mineCfg.MinGasPrice != nil && tx.GasFeeCap().Cmp(mineCfg.MinGasPrice) < 0 {
			log.Trace("Skipping underpriced sender", "tx", tx.Hash(), "sender", entry.From)
			pending.Pop()
			continue
		}
		err := builder.AddTransaction(tx)
		switch {
		case err == nil:
			pending.Shift()

		case isBlockGasError(err):
			// The transaction does not fit anymore; later nonces of this
			// sender cannot be included either. Try the next sender.
			log.Trace("Skipping sender over block gas pressure", "tx", tx.Hash(), "sender", entry.From)
			pending.Pop()

		case errors.Is(err, vm.ErrGasPriceLessThanBaseFee):
			log.Trace("Skipping sender below base fee", "tx", tx.Hash(), "sender", entry.From)
			pending.Pop()

		default:
			return nil, err
		}
	}

	build, err := builder.Finalize(blockRewards(builder.Header().Coinbase, mineCfg))
	if err != nil {
		return nil, err
	}
	return &MineResult{Build: build}, nil
}

// MineBlockWithSingleTransaction mines a block containing exactly the given
// transaction. Fee floors and the nonce are validated up front so the caller
// sees exactly one reason per rejected attempt.
func MineBlockWithSingleTransaction(
	chain core.Blockchain,
	st state.StateDB,
	tx *types.Transaction,
	sender common.Address,
	interp vm.Interpreter,
	cfg vm.Config,
	inputs BlockInputs,
	overrides *HeaderOverrides,
	mineCfg MineConfig,
	precompiles map[common.Address]vm.Precompile,
) (*MineResult, error) {
	if cfg.Hardfork.IsPostMerge() && (overrides == nil || overrides.MixDigest == nil) {
		return nil, ErrMissingPrevrandao
	}
	accountNonce, err := st.GetNonce(sender)
	if err != nil {
		return nil, err
	}
	if tx.Nonce() < accountNonce {
		return nil, &NonceTooLowError{Expected: accountNonce, Actual: tx.Nonce()}
	}
	if tx.Nonce() > accountNonce {
		return nil, &NonceTooHighError{Expected: accountNonce, Actual: tx.Nonce()}
	}

	builder, err := NewBlockBuilder(chain, st, interp, cfg, inputs, overrides, precompiles)
	if err != nil {
		return nil, err
	}
	header := builder.Header()

	if baseFee := header.BaseFee; baseFee != nil {
		if tx.GasFeeCap().Cmp(baseFee) < 0 {
			return nil, &MaxFeePerGasTooLowError{Expected: baseFee, Actual: tx.GasFeeCap()}
		}
		if mineCfg.MinGasPrice != nil && tx.EffectiveGasTipValue(baseFee).Cmp(mineCfg.MinGasPrice) < 0 {
			return nil, &PriorityFeeTooLowError{Expected: mineCfg.MinGasPrice, Actual: tx.EffectiveGasTipValue(baseFee)}
		}
	} else if mineCfg.MinGasPrice != nil && tx.GasPrice().Cmp(mineCfg.MinGasPrice) < 0 {
		return nil, &PriorityFeeTooLowError{Expected: mineCfg.MinGasPrice, Actual: tx.GasPrice()}
	}
	if tx.Type() == types.BlobTxType && header.ExcessBlobGas != nil {
		blobBaseFee := eip4844.CalcBlobFee(builder.blobParams, *header.ExcessBlobGas)
		if tx.BlobGasFeeCap().Cmp(blobBaseFee) < 0 {
			return nil, &MaxFeePerBlobGasTooLowError{Expected: blobBaseFee, Actual: tx.BlobGasFeeCap()}
		}
	}

	if err := builder.AddTransaction(tx); err != nil {
		return nil, err
	}
	build, err := builder.Finalize(blockRewards(header.Coinbase, mineCfg))
	if err != nil {
		return nil, err
	}
	return &MineResult{Build: build}, nil
}

func blockRewards(beneficiary common.Address, mineCfg MineConfig) []Reward {
	if mineCfg.BlockReward == nil || mineCfg.BlockReward.Sign() <= 0 {
		return nil
	}
	return []Reward{{Beneficiary: beneficiary, Amount: mineCfg.BlockReward}}
}

func isBlockGasError(err error) bool {
	var gasErr *BlockGasLimitError
	return errors.As(err, &gasErr)
}
