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

package core

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/ethforge/devchain/core/types"
)

// NewTxsEvent is posted when transactions enter the mempool.
type NewTxsEvent struct{ Txs []*types.Transaction }

// ChainHeadEvent is posted when a new block is appended to the chain.
type ChainHeadEvent struct {
	Block    *types.Block
	Receipts []*types.Receipt
}

// RemovedTxEvent is posted when a pooled transaction is dropped without
// being mined.
type RemovedTxEvent struct{ Hash common.Hash }
