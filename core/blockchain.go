// Copyright 2014 The go-ethereum Authors
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

// Package core implements the development chain: a local append-only
// blockchain and a forked variant overlaying local activity on a remote
// node pinned at a historical block.
package core

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethforge/devchain/consensus/misc/eip1559"
	"github.com/ethforge/devchain/consensus/misc/eip4844"
	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/params"
)

// Blockchain is the read/write surface shared by the local and forked
// chains.
type Blockchain interface {
	ChainID() *big.Int
	ChainIDAt(blockNumber uint64) (*big.Int, error)
	Hardfork() params.Hardfork
	HardforkAt(blockNumber uint64) (params.Hardfork, error)

	LastBlockNumber() uint64
	LastBlock() (*types.Block, error)
	BlockByNumber(number uint64) (*types.Block, error)
	BlockByHash(hash common.Hash) (*types.Block, error)
	BlockByTransactionHash(txHash common.Hash) (*types.Block, error)
	ReceiptByTransactionHash(txHash common.Hash) (*types.Receipt, error)
	TotalDifficultyByHash(hash common.Hash) (*big.Int, error)
	Logs(filter LogFilter) ([]*types.Log, error)

	// StateAtBlockNumber materializes the world state as of the given block,
	// with irregular overrides applied.
	StateAtBlockNumber(blockNumber uint64, overrides *state.IrregularState) (state.StateDB, error)

	InsertBlock(block *types.Block, receipts []*types.Receipt, diff *state.StateDiff) error
	ReserveBlocks(count uint64, interval uint64) error
	RevertToBlock(blockNumber uint64) error
}

// LogFilter bounds a log query. Nil address/topic filters match everything;
// a nil entry inside Topics is a positional wildcard.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Addresses []common.Address
	Topics    [][]common.Hash
}

func (f *LogFilter) matches(lg *types.Log) bool {
	if len(f.Addresses) > 0 {
		found := false
		for _, addr := range f.Addresses {
			if addr == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Topics) > len(lg.Topics) {
		return false
	}
	for i, alternatives := range f.Topics {
		if len(alternatives) == 0 {
			continue // wildcard
		}
		found := false
		for _, topic := range alternatives {
			if lg.Topics[i] == topic {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// blockEntry is one stored block with its derived indexes.
type blockEntry struct {
	block           *types.Block
	receipts        []*types.Receipt
	diff            *state.StateDiff
	totalDifficulty *big.Int
}

// reservation is a lazily materialized gap of synthetic empty blocks.
type reservation struct {
	first          uint64
	last           uint64
	interval       uint64
	previousHeader *types.Header
	previousTd     *big.Int
}

// GenesisConfig seeds a local blockchain.
type GenesisConfig struct {
	ChainID  *big.Int
	Hardfork params.Hardfork

	GasLimit   uint64
	Timestamp  uint64 // zero means current time
	ExtraData  []byte
	BaseFee    *big.Int    // optional override; defaults to the initial base fee on London+
	PrevRandao common.Hash // mix digest of the genesis block post-merge

	// Alloc is applied as the genesis state diff.
	Alloc *state.StateDiff
}

// LocalBlockchain is an append-only chain of locally mined blocks, fully
// indexed in memory.
type LocalBlockchain struct {
	chainID  *big.Int
	hardfork params.Hardfork

	entries      map[uint64]*blockEntry
	hashIndex    map[common.Hash]uint64
	txIndex      map[common.Hash]uint64 // tx hash -> block number
	reservations []*reservation
	lastNumber   uint64
}

// NewLocalBlockchain creates a chain holding only the genesis block derived
// from the given config.
func NewLocalBlockchain(config *GenesisConfig) (*LocalBlockchain, error) {
	alloc := config.Alloc
	if alloc == nil {
		alloc = state.NewStateDiff()
	}
	genesisState := state.NewMemoryState()
	if err := genesisState.ApplyDiff(alloc); err != nil {
		return nil, err
	}
	root, err := genesisState.StateRoot()
	if err != nil {
		return nil, err
	}

	timestamp := config.Timestamp
	if timestamp == 0 {
		timestamp = uint64(time.Now().Unix())
	}
	header := &types.Header{
		Number:     new(big.Int),
		GasLimit:   config.GasLimit,
		Time:       timestamp,
		Extra:      config.ExtraData,
		Root:       root,
		TxHash:     types.EmptyTxsHash,
		ReceiptHash: types.EmptyReceiptsHash,
		UncleHash:  types.EmptyUncleHash,
		Difficulty: new(big.Int),
		MixDigest:  config.PrevRandao,
	}
	if config.Hardfork >= params.London {
		if config.BaseFee != nil {
			header.BaseFee = new(big.Int).Set(config.BaseFee)
		} else {
			header.BaseFee = new(big.Int).SetUint64(params.InitialBaseFee)
		}
	}
	if config.Hardfork >= params.Shanghai {
		hash := types.EmptyWithdrawalsHash
		header.WithdrawalsHash = &hash
	}
	if config.Hardfork >= params.Cancun {
		zero := uint64(0)
		excess := uint64(0)
		header.BlobGasUsed = &zero
		header.ExcessBlobGas = &excess
		beaconRoot := common.Hash{}
		header.ParentBeaconRoot = &beaconRoot
	}

	var body *types.Body
	if config.Hardfork >= params.Shanghai {
		body = &types.Body{Withdrawals: types.Withdrawals{}}
	}
	genesis := types.NewBlock(header, body, nil)

	chain := &LocalBlockchain{
		chainID:   new(big.Int).Set(config.ChainID),
		hardfork:  config.Hardfork,
		entries:   make(map[uint64]*blockEntry),
		hashIndex: make(map[common.Hash]uint64),
		txIndex:   make(map[common.Hash]uint64),
	}
	chain.storeEntry(&blockEntry{
		block:           genesis,
		diff:            alloc.Copy(),
		totalDifficulty: new(big.Int).Set(genesis.Difficulty()),
	})
	return chain, nil
}

// newEmptyLocalBlockchain creates a chain with no blocks at all; the forked
// blockchain uses it as the container of post-fork blocks.
func newEmptyLocalBlockchain(chainID *big.Int, hardfork params.Hardfork, firstNumber uint64) *LocalBlockchain {
	return &LocalBlockchain{
		chainID:    new(big.Int).Set(chainID),
		hardfork:   hardfork,
		entries:    make(map[uint64]*blockEntry),
		hashIndex:  make(map[common.Hash]uint64),
		txIndex:    make(map[common.Hash]uint64),
		lastNumber: firstNumber,
	}
}

func (bc *LocalBlockchain) storeEntry(entry *blockEntry) {
	number := entry.block.NumberU64()
	bc.entries[number] = entry
	bc.hashIndex[entry.block.Hash()] = number
	for _, tx := range entry.block.Transactions() {
		bc.txIndex[tx.Hash()] = number
	}
	if number >= bc.lastNumber {
		bc.lastNumber = number
	}
}

func (bc *LocalBlockchain) ChainID() *big.Int { return new(big.Int).Set(bc.chainID) }

func (bc *LocalBlockchain) ChainIDAt(uint64) (*big.Int, error) { return bc.ChainID(), nil }

func (bc *LocalBlockchain) Hardfork() params.Hardfork { return bc.hardfork }

func (bc *LocalBlockchain) HardforkAt(uint64) (params.Hardfork, error) { return bc.hardfork, nil }

func (bc *LocalBlockchain) LastBlockNumber() uint64 { return bc.lastNumber }

func (bc *LocalBlockchain) LastBlock() (*types.Block, error) {
	return bc.BlockByNumber(bc.lastNumber)
}

// BlockByNumber returns the block at the given number, materializing
// reserved blocks on demand.
func (bc *LocalBlockchain) BlockByNumber(number uint64) (*types.Block, error) {
	if entry, ok := bc.entries[number]; ok {
		return entry.block, nil
	}
	for _, r := range bc.reservations {
		if number >= r.first && number <= r.last {
			bc.materializeReservation(r, number)
			return bc.entries[number].block, nil
		}
	}
	return nil, ErrUnknownBlockNumber
}

// materializeReservation concretizes the reserved headers from the start of
// the reservation up to (and including) the requested number. The base fee
// follows the EIP-1559 recursion over the synthetic empty blocks; the state
// root stays constant.
func (bc *LocalBlockchain) materializeReservation(r *reservation, upTo uint64) {
	parent := r.previousHeader
	td := r.previousTd
	for number := r.first; number <= upTo; number++ {
		header := &types.Header{
			ParentHash:  parent.Hash(),
			UncleHash:   types.EmptyUncleHash,
			Coinbase:    parent.Coinbase,
			Root:        parent.Root,
			TxHash:      types.EmptyTxsHash,
			ReceiptHash: types.EmptyReceiptsHash,
			Difficulty:  new(big.Int),
			Number:      new(big.Int).SetUint64(number),
			GasLimit:    parent.GasLimit,
			Time:        parent.Time + r.interval,
			MixDigest:   parent.MixDigest,
		}
		if parent.BaseFee != nil {
			header.BaseFee = eip1559.CalcBaseFee(parent, true)
		}
		if parent.WithdrawalsHash != nil {
			hash := types.EmptyWithdrawalsHash
			header.WithdrawalsHash = &hash
		}
		if parent.ExcessBlobGas != nil {
			zero := uint64(0)
			excess := eip4844.CalcExcessBlobGas(params.BlobScheduleFor(bc.hardfork), parent)
			header.BlobGasUsed = &zero
			header.ExcessBlobGas = &excess
			header.ParentBeaconRoot = parent.ParentBeaconRoot
		}
		var body *types.Body
		if header.WithdrawalsHash != nil {
			body = &types.Body{Withdrawals: types.Withdrawals{}}
		}
		block := types.NewBlock(header, body, nil)
		td = new(big.Int).Add(td, header.Difficulty)
		bc.entries[number] = &blockEntry{
			block:           block,
			diff:            state.NewStateDiff(),
			totalDifficulty: new(big.Int).Set(td),
		}
		bc.hashIndex[block.Hash()] = number
		parent = block.Header()
	}
	// Shrink or retire the reservation.
	if upTo >= r.last {
		bc.removeReservation(r)
	} else {
		r.first = upTo + 1
		r.previousHeader = parent
		r.previousTd = td
	}
}

func (bc *LocalBlockchain) removeReservation(target *reservation) {
	for i, r := range bc.reservations {
		if r == target {
			bc.reservations = append(bc.reservations[:i], bc.reservations[i+1:]...)
			return
		}
	}
}

func (bc *LocalBlockchain) BlockByHash(hash common.Hash) (*types.Block, error) {
	if number, ok := bc.hashIndex[hash]; ok {
		return bc.entries[number].block, nil
	}
	return nil, ErrUnknownBlockHash
}

func (bc *LocalBlockchain) BlockByTransactionHash(txHash common.Hash) (*types.Block, error) {
	if number, ok := bc.txIndex[txHash]; ok {
		return bc.entries[number].block, nil
	}
	return nil, ErrUnknownBlockHash
}

func (bc *LocalBlockchain) ReceiptByTransactionHash(txHash common.Hash) (*types.Receipt, error) {
	number, ok := bc.txIndex[txHash]
	if !ok {
		return nil, nil
	}
	for _, receipt := range bc.entries[number].receipts {
		if receipt.TxHash == txHash {
			return receipt, nil
		}
	}
	return nil, nil
}

func (bc *LocalBlockchain) TotalDifficultyByHash(hash common.Hash) (*big.Int, error) {
	if number, ok := bc.hashIndex[hash]; ok {
		return new(big.Int).Set(bc.entries[number].totalDifficulty), nil
	}
	return nil, ErrUnknownBlockHash
}

func (bc *LocalBlockchain) Logs(filter LogFilter) ([]*types.Log, error) {
	var result []*types.Log
	for number := filter.FromBlock; number <= filter.ToBlock; number++ {
		entry, ok := bc.entries[number]
		if !ok {
			continue
		}
		for _, receipt := range entry.receipts {
			for _, lg := range receipt.Logs {
				if filter.matches(lg) {
					result = append(result, lg)
				}
			}
		}
	}
	return result, nil
}

// StateAtBlockNumber replays the per-block state diffs from genesis up to
// the given block and overlays any irregular overrides in range.
func (bc *LocalBlockchain) StateAtBlockNumber(blockNumber uint64, overrides *state.IrregularState) (state.StateDB, error) {
	if blockNumber > bc.lastNumber {
		return nil, ErrUnknownBlockNumber
	}
	st := state.NewMemoryState()
	for number := uint64(0); number <= blockNumber; number++ {
		if entry, ok := bc.entries[number]; ok {
			if err := st.ApplyDiff(entry.diff); err != nil {
				return nil, err
			}
		}
		if overrides != nil {
			if override := overrides.StateOverrideAt(number); override != nil {
				if err := st.ApplyDiff(override.Diff); err != nil {
					return nil, err
				}
			}
		}
	}
	return st, nil
}

// StateDiffsInRange returns the executed diffs of blocks in [from, to], in
// block order, skipping reserved (empty) blocks.
func (bc *LocalBlockchain) StateDiffsInRange(from, to uint64) []*state.StateDiff {
	var diffs []*state.StateDiff
	for number := from; number <= to; number++ {
		if entry, ok := bc.entries[number]; ok {
			diffs = append(diffs, entry.diff)
		}
	}
	return diffs
}

// InsertBlock appends a mined block together with its receipts and state
// diff.
func (bc *LocalBlockchain) InsertBlock(block *types.Block, receipts []*types.Receipt, diff *state.StateDiff) error {
	last, err := bc.LastBlock()
	if err != nil && len(bc.entries) != 0 {
		return err
	}
	var parentTd = new(big.Int)
	if last != nil {
		if block.NumberU64() != last.NumberU64()+1 {
			return ErrInsertInvalidNumber
		}
		if block.ParentHash() != last.Hash() {
			return ErrInsertMissingParent
		}
		parentTd, _ = bc.TotalDifficultyByHash(last.Hash())
	}
	if diff == nil {
		diff = state.NewStateDiff()
	}
	bc.storeEntry(&blockEntry{
		block:           block,
		receipts:        receipts,
		diff:            diff.Copy(),
		totalDifficulty: new(big.Int).Add(parentTd, block.Difficulty()),
	})
	log.Trace("Inserted block", "number", block.NumberU64(), "hash", block.Hash(), "txs", len(block.Transactions()))
	return nil
}

// ReserveBlocks registers count synthetic empty blocks spaced by interval
// seconds. Headers materialize lazily upon lookup.
func (bc *LocalBlockchain) ReserveBlocks(count uint64, interval uint64) error {
	if count == 0 {
		return nil
	}
	if count > params.MaxBlocksPerReservation {
		return ErrReservationTooLarge
	}
	last, err := bc.LastBlock()
	if err != nil {
		return err
	}
	td, _ := bc.TotalDifficultyByHash(last.Hash())
	bc.reservations = append(bc.reservations, &reservation{
		first:          bc.lastNumber + 1,
		last:           bc.lastNumber + count,
		interval:       interval,
		previousHeader: last.Header(),
		previousTd:     td,
	})
	bc.lastNumber += count
	return nil
}

// RevertToBlock drops every block with a number greater than blockNumber,
// purging receipts and transaction indexes atomically.
func (bc *LocalBlockchain) RevertToBlock(blockNumber uint64) error {
	if blockNumber > bc.lastNumber {
		return ErrUnknownBlockNumber
	}
	// Drop reservations beyond the target first.
	var kept []*reservation
	for _, r := range bc.reservations {
		switch {
		case r.first > blockNumber:
			// dropped entirely
		case r.last > blockNumber:
			r.last = blockNumber
			kept = append(kept, r)
		default:
			kept = append(kept, r)
		}
	}
	bc.reservations = kept

	for number := blockNumber + 1; number <= bc.lastNumber; number++ {
		entry, ok := bc.entries[number]
		if !ok {
			continue
		}
		delete(bc.hashIndex, entry.block.Hash())
		for _, tx := range entry.block.Transactions() {
			delete(bc.txIndex, tx.Hash())
		}
		delete(bc.entries, number)
	}
	bc.lastNumber = blockNumber
	return nil
}
