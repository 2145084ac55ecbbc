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
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/ethforge/devchain/consensus/misc/eip1559"
	"github.com/ethforge/devchain/consensus/misc/eip4844"
	"github.com/ethforge/devchain/core"
	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/core/vm"
	"github.com/ethforge/devchain/params"
)

// BlockInputs are the externally supplied body parts of the block under
// construction. Withdrawals must be non-nil from Shanghai on.
type BlockInputs struct {
	Ommers      []*types.Header
	Withdrawals types.Withdrawals
}

// HeaderOverrides pin individual header fields instead of deriving them from
// the parent.
type HeaderOverrides struct {
	Coinbase         *common.Address
	Difficulty       *big.Int
	GasLimit         *uint64
	Timestamp        *uint64
	ExtraData        []byte
	MixDigest        *common.Hash
	Nonce            *types.BlockNonce
	BaseFee          *big.Int
	StateRoot        *common.Hash
	ParentBeaconRoot *common.Hash
}

// Reward credits an address during block finalization.
type Reward struct {
	Beneficiary common.Address
	Amount      *big.Int
}

// BuildResult is the outcome of a finalized block build.
type BuildResult struct {
	Block    *types.Block
	Receipts []*types.Receipt
	State    state.StateDB
	Diff     *state.StateDiff
	Results  []*vm.ExecutionResult
}

// BlockBuilder executes transactions against a pending header, accumulating
// receipts, state changes and gas usage, and finally seals a block whose
// trie roots and bloom filters are derived from the accumulated contents.
type BlockBuilder struct {
	chain  core.Blockchain
	interp vm.Interpreter
	cfg    vm.Config
	signer types.Signer

	st     state.StateDB
	parent *types.Header
	header *types.Header

	txs      []*types.Transaction
	receipts []*types.Receipt
	results  []*vm.ExecutionResult
	diff     *state.StateDiff

	withdrawals types.Withdrawals
	ommers      []*types.Header

	blobParams  *params.BlobParams
	blobGasUsed uint64
	logCount    uint

	stateRootOverridden bool
	precompiles         map[common.Address]vm.Precompile
}

// NewBlockBuilder prepares a builder on top of the chain head. It fails for
// pre-Byzantium hardforks, for Shanghai+ blocks without withdrawals, and
// when the parent block cannot be fetched.
func NewBlockBuilder(chain core.Blockchain, st state.StateDB, interp vm.Interpreter, cfg vm.Config, inputs BlockInputs, overrides *HeaderOverrides, precompiles map[common.Address]vm.Precompile) (*BlockBuilder, error) {
	if cfg.Hardfork < params.Byzantium {
		return nil, &UnsupportedHardforkError{Hardfork: cfg.Hardfork}
	}
	if cfg.Hardfork >= params.Shanghai && inputs.Withdrawals == nil {
		return nil, ErrMissingWithdrawals
	}
	parentBlock, err := chain.LastBlock()
	if err != nil {
		return nil, err
	}
	parent := parentBlock.Header()

	if overrides == nil {
		overrides = &HeaderOverrides{}
	}
	header := &types.Header{
		ParentHash: parentBlock.Hash(),
		Number:     new(big.Int).Add(parent.Number, common.Big1),
		GasLimit:   parent.GasLimit,
		Difficulty: new(big.Int),
		Extra:      overrides.ExtraData,
	}
	if overrides.Coinbase != nil {
		header.Coinbase = *overrides.Coinbase
	} else {
		header.Coinbase = parent.Coinbase
	}
	if overrides.GasLimit != nil {
		header.GasLimit = *overrides.GasLimit
	}
	if overrides.Timestamp != nil {
		header.Time = *overrides.Timestamp
	}
	if overrides.Difficulty != nil {
		header.Difficulty = new(big.Int).Set(overrides.Difficulty)
	} else if !cfg.Hardfork.IsPostMerge() {
		header.Difficulty = new(big.Int).Set(parent.Difficulty)
	}
	if overrides.MixDigest != nil {
		header.MixDigest = *overrides.MixDigest
	}
	if overrides.Nonce != nil {
		header.Nonce = *overrides.Nonce
	}
	// Base fee and blob gas follow the EIP-1559/EIP-4844 recursion from the
	// parent header unless pinned.
	if cfg.Hardfork >= params.London {
		if overrides.BaseFee != nil {
			header.BaseFee = new(big.Int).Set(overrides.BaseFee)
		} else {
			header.BaseFee = eip1559.CalcBaseFee(parent, parent.BaseFee != nil)
		}
	}
	var blobParams *params.BlobParams
	if cfg.Hardfork >= params.Cancun {
		blobParams = params.BlobScheduleFor(cfg.Hardfork)
		zero := uint64(0)
		excess := eip4844.CalcExcessBlobGas(blobParams, parent)
		header.BlobGasUsed = &zero
		header.ExcessBlobGas = &excess
		if overrides.ParentBeaconRoot != nil {
			header.ParentBeaconRoot = overrides.ParentBeaconRoot
		} else {
			beaconRoot := common.Hash{}
			header.ParentBeaconRoot = &beaconRoot
		}
	}
	stateRootOverridden := false
	if overrides.StateRoot != nil {
		header.Root = *overrides.StateRoot
		stateRootOverridden = true
	}

	return &BlockBuilder{
		chain:               chain,
		interp:              interp,
		cfg:                 cfg,
		signer:              types.LatestSigner(cfg.ChainID, cfg.Hardfork),
		st:                  st,
		parent:              parent,
		header:              header,
		diff:                state.NewStateDiff(),
		withdrawals:         inputs.Withdrawals,
		ommers:              inputs.Ommers,
		blobParams:          blobParams,
		stateRootOverridden: stateRootOverridden,
		precompiles:         precompiles,
	}, nil
}

// Header returns the partial header under construction.
func (b *BlockBuilder) Header() *types.Header { return b.header }

// GasRemaining returns the gas still available in the block.
func (b *BlockBuilder) GasRemaining() uint64 {
	return b.header.GasLimit - b.header.GasUsed
}

// blockEnv assembles the execution environment of the pending block.
func (b *BlockBuilder) blockEnv() vm.BlockEnv {
	env := vm.BlockEnv{
		Number:     new(big.Int).Set(b.header.Number),
		Coinbase:   b.header.Coinbase,
		Time:       b.header.Time,
		GasLimit:   b.header.GasLimit,
		BaseFee:    b.header.BaseFee,
		PrevRandao: b.header.MixDigest,
		Difficulty: b.header.Difficulty,
	}
	if b.header.ExcessBlobGas != nil {
		env.BlobBaseFee = eip4844.CalcBlobFee(b.blobParams, *b.header.ExcessBlobGas)
	}
	return env
}

// AddTransaction validates the transaction against the remaining block
// budget, executes it through the interpreter and folds the resulting state
// diff and receipt into the pending block. On error the builder state is
// unchanged.
func (b *BlockBuilder) AddTransaction(tx *types.Transaction) error {
	if gas := tx.Gas(); gas > b.GasRemaining() {
		return &BlockGasLimitError{Remaining: b.GasRemaining(), GasLimit: gas}
	}
	if b.blobParams != nil {
		if txBlobGas := tx.TotalBlobGas(); b.blobGasUsed+txBlobGas > b.blobParams.MaxBlobGasPerBlock() {
			return &BlockBlobGasLimitError{
				BlockBlobGas: b.blobGasUsed,
				TxBlobGas:    txBlobGas,
				MaxBlobGas:   b.blobParams.MaxBlobGasPerBlock(),
			}
		}
	}
	sender, err := types.Sender(b.signer, tx)
	if err != nil {
		return &TransactionError{TxHash: tx.Hash(), Err: err}
	}
	// Snapshot the creation nonce before execution bumps it.
	senderNonce := tx.Nonce()

	result, diff, err := b.interp.DryRun(b.st, b.cfg, tx, sender, b.blockEnv(), b.precompiles)
	if err != nil {
		return &TransactionError{TxHash: tx.Hash(), Err: err}
	}
	if err := b.st.ApplyDiff(diff); err != nil {
		return err
	}
	b.diff.Merge(diff)

	b.header.GasUsed += result.GasUsed
	txBlobGas := tx.TotalBlobGas()
	if b.header.BlobGasUsed != nil {
		b.blobGasUsed += txBlobGas
		*b.header.BlobGasUsed = b.blobGasUsed
	}

	// Build the per-transaction receipt on top of the updated cumulative
	// gas counter.
	receipt := types.NewReceipt(tx.Type(), b.cfg.Hardfork, nil, !result.Success, b.header.GasUsed)
	receipt.Logs = result.Logs
	receipt.Bloom = types.CreateBloom(result.Logs)
	receipt.TxHash = tx.Hash()
	receipt.From = sender
	receipt.To = tx.To()
	receipt.GasUsed = result.GasUsed
	receipt.EffectiveGasPrice = tx.EffectiveGasPrice(b.header.BaseFee)
	receipt.BlockNumber = new(big.Int).Set(b.header.Number)
	receipt.TransactionIndex = uint(len(b.txs))
	if tx.Type() == types.BlobTxType {
		receipt.BlobGasUsed = txBlobGas
		if b.header.ExcessBlobGas != nil {
			receipt.BlobGasPrice = eip4844.CalcBlobFee(b.blobParams, *b.header.ExcessBlobGas)
		}
	}
	if tx.To() == nil && result.Success {
		receipt.ContractAddress = crypto.CreateAddress(sender, senderNonce)
	}
	for _, lg := range receipt.Logs {
		lg.BlockNumber = b.header.Number.Uint64()
		lg.TxHash = receipt.TxHash
		lg.TxIndex = receipt.TransactionIndex
		lg.Index = b.logCount
		b.logCount++
	}

	b.txs = append(b.txs, tx.WithoutBlobTxSidecar())
	b.receipts = append(b.receipts, receipt)
	b.results = append(b.results, result)
	log.Trace("Added transaction to pending block", "tx", tx.Hash(), "gasUsed", result.GasUsed, "success", result.Success)
	return nil
}

// Finalize credits the rewards, seals the header and assembles the block.
// The encoded block must fit in the RLP size cap.
func (b *BlockBuilder) Finalize(rewards []Reward) (*BuildResult, error) {
	for _, reward := range rewards {
		if reward.Amount == nil || reward.Amount.Sign() <= 0 {
			continue
		}
		amount, overflow := uint256.FromBig(reward.Amount)
		if overflow {
			continue
		}
		if err := b.st.AddBalance(reward.Beneficiary, amount); err != nil {
			return nil, err
		}
		account, err := b.st.GetAccount(reward.Beneficiary)
		if err != nil {
			return nil, err
		}
		b.diff.SetAccount(reward.Beneficiary, account)
	}

	if !b.stateRootOverridden {
		root, err := b.st.StateRoot()
		if err != nil {
			return nil, err
		}
		b.header.Root = root
	}
	if b.header.Time == 0 {
		b.header.Time = uint64(time.Now().Unix())
	}

	body := &types.Body{
		Transactions: b.txs,
		Uncles:       b.ommers,
		Withdrawals:  b.withdrawals,
	}
	block := types.NewBlock(b.header, body, b.receipts)

	// Stamp inclusion data that only exists once the header is sealed.
	blockHash := block.Hash()
	for _, receipt := range b.receipts {
		receipt.BlockHash = blockHash
		for _, lg := range receipt.Logs {
			lg.BlockHash = blockHash
		}
	}

	encodedSize := block.Size()
	if encodedSize > params.MaxBlockRlpSize {
		return nil, &BlockRlpSizeError{MaxSize: params.MaxBlockRlpSize, ActualSize: encodedSize}
	}

	return &BuildResult{
		Block:    block,
		Receipts: b.receipts,
		State:    b.st,
		Diff:     b.diff,
		Results:  b.results,
	}, nil
}
