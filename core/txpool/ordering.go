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

package txpool

import (
	"container/heap"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Ordering selects the mempool drain order used by the miner.
type Ordering int

const (
	// OrderFifo drains pending transactions in admission order.
	OrderFifo Ordering = iota
	// OrderPriority drains by descending effective miner fee, admission order
	// breaking ties.
	OrderPriority
)

// entryWithFee decorates a pooled entry with its effective miner fee under
// the pending block's base fee.
type entryWithFee struct {
	entry *TxEntry
	fee   *big.Int
}

// entryHeap implements a heap over per-sender queue heads. Only the head of
// each sender's queue competes: within one sender, nonce order is fixed.
type entryHeap struct {
	heads    []*entryWithFee
	ordering Ordering
}

func (h *entryHeap) Len() int { return len(h.heads) }

func (h *entryHeap) Less(i, j int) bool {
	if h.ordering == OrderPriority {
		if cmp := h.heads[i].fee.Cmp(h.heads[j].fee); cmp != 0 {
			return cmp > 0
		}
	}
	return h.heads[i].entry.Order < h.heads[j].entry.Order
}

func (h *entryHeap) Swap(i, j int) { h.heads[i], h.heads[j] = h.heads[j], h.heads[i] }

func (h *entryHeap) Push(x any) { h.heads = append(h.heads, x.(*entryWithFee)) }

func (h *entryHeap) Pop() any {
	old := h.heads
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	h.heads = old[:n-1]
	return x
}

// PendingTransactions is a lazy, ordered view over the pool's pending
// queues, in the style of the miner's price-and-nonce sets: Peek inspects
// the best head, Shift advances within the sender, Pop discards the
// sender's remaining queue.
type PendingTransactions struct {
	queues  map[common.Address][]*TxEntry
	heap    *entryHeap
	baseFee *big.Int
}

// Pending returns an ordered iterator over a snapshot of the pending
// queues. baseFee may be nil; the effective miner fee then degrades to the
// gas price.
func (p *MemPool) Pending(ordering Ordering, baseFee *big.Int) *PendingTransactions {
	queues := p.PendingTransactions()

	h := &entryHeap{ordering: ordering}
	it := &PendingTransactions{queues: queues, heap: h, baseFee: baseFee}
	for sender, queue := range queues {
		it.queues[sender] = queue[1:]
		heap.Push(h, it.wrap(queue[0]))
	}
	heap.Init(h)
	return it
}

func (it *PendingTransactions) wrap(entry *TxEntry) *entryWithFee {
	return &entryWithFee{entry: entry, fee: entry.Tx.EffectiveGasTipValue(it.baseFee)}
}

// Peek returns the next transaction by the configured order, or nil when
// the view is exhausted.
func (it *PendingTransactions) Peek() *TxEntry {
	if len(it.heap.heads) == 0 {
		return nil
	}
	return it.heap.heads[0].entry
}

// Shift replaces the current best head with the next transaction from the
// same sender.
func (it *PendingTransactions) Shift() {
	if len(it.heap.heads) == 0 {
		return
	}
	sender := it.heap.heads[0].entry.From
	if queue := it.queues[sender]; len(queue) > 0 {
		it.queues[sender] = queue[1:]
		it.heap.heads[0] = it.wrap(queue[0])
		heap.Fix(it.heap, 0)
		return
	}
	heap.Pop(it.heap)
}

// Pop removes the current best head along with the rest of the sender's
// queue. It is the remove-caller operation: once a sender's transaction
// cannot be included, its higher nonces cannot either.
func (it *PendingTransactions) Pop() {
	if len(it.heap.heads) == 0 {
		return
	}
	delete(it.queues, it.heap.heads[0].entry.From)
	heap.Pop(it.heap)
}

// Empty reports whether the view is exhausted.
func (it *PendingTransactions) Empty() bool {
	return len(it.heap.heads) == 0
}
