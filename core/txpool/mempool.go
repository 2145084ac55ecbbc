// Package txpool implements the development chain's mempool: two
// insertion-ordered queues per sender (pending with contiguous nonces,
// future with gapped ones), a hash index, and deterministic iteration under
// FIFO or effective-priority ordering.
package txpool

import (
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
)

// TxEntry contains a pooled transaction together with its resolved sender
// and admission order.
type TxEntry struct {
	Tx    *types.Transaction // Transaction object
	From  common.Address     // Sender address
	Order uint64             // Monotonic admission sequence number
}

// MemPool holds transactions waiting to be mined.
type MemPool struct {
	mu sync.Mutex // Mutex to ensure thread safety

	signer        types.Signer
	blockGasLimit uint64

	pending map[common.Address][]*TxEntry // per-sender queues, nonces contiguous from the account nonce
	future  map[common.Address][]*TxEntry // per-sender queues with nonce gaps
	txMap   map[common.Hash]*TxEntry      // mapping from hash to pooled entry

	nextOrder uint64
}

// New creates an empty mempool accepting transactions up to blockGasLimit.
func New(blockGasLimit uint64, signer types.Signer) *MemPool {
	return &MemPool{
		signer:        signer,
		blockGasLimit: blockGasLimit,
		pending:       make(map[common.Address][]*TxEntry),
		future:        make(map[common.Address][]*TxEntry),
		txMap:         make(map[common.Hash]*TxEntry),
	}
}

// BlockGasLimit returns the current admission gas ceiling.
func (p *MemPool) BlockGasLimit() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blockGasLimit
}

// SetBlockGasLimit changes the admission gas ceiling and revalidates the
// pool against it.
func (p *MemPool) SetBlockGasLimit(limit uint64, st state.StateDB) error {
	p.mu.Lock()
	p.blockGasLimit = limit
	p.mu.Unlock()
	return p.Update(st)
}

// lastPendingNonce returns the nonce of the last pending transaction of the
// sender. The second return is false when the sender has no pending txs.
// Callers must hold p.mu.
func (p *MemPool) lastPendingNonce(sender common.Address) (uint64, bool) {
	queue := p.pending[sender]
	if len(queue) == 0 {
		return 0, false
	}
	return queue[len(queue)-1].Tx.Nonce(), true
}

// LastPendingNonce returns the nonce of the sender's last pending
// transaction, if any.
func (p *MemPool) LastPendingNonce(sender common.Address) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPendingNonce(sender)
}

// AddTransaction validates tx against the given state and inserts it into
// the pending or future queue. A same-nonce entry is replaced when the new
// fees raise the old ones by at least 10%.
func (p *MemPool) AddTransaction(st state.StateDB, tx *types.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gasLimit := tx.Gas(); gasLimit > p.blockGasLimit {
		return &ErrExceedsBlockGasLimit{BlockGasLimit: p.blockGasLimit, GasLimit: gasLimit}
	}
	hash := tx.Hash()
	if _, exists := p.txMap[hash]; exists {
		return &ErrTransactionAlreadyExists{Hash: hash}
	}
	sender, err := types.Sender(p.signer, tx)
	if err != nil {
		return err
	}
	accountNonce, err := st.GetNonce(sender)
	if err != nil {
		return err
	}
	if tx.Nonce() < accountNonce {
		return &ErrNonceTooLow{Sender: sender, Nonce: tx.Nonce(), AccountNonce: accountNonce}
	}
	balance, err := st.GetBalance(sender)
	if err != nil {
		return err
	}
	if cost := tx.Cost(); balance.ToBig().Cmp(cost) < 0 {
		return &ErrInsufficientFunds{Sender: sender, UpfrontCost: cost, Balance: balance.ToBig()}
	}

	entry := &TxEntry{Tx: tx, From: sender, Order: p.nextOrder}

	nextNonce := accountNonce
	if last, ok := p.lastPendingNonce(sender); ok && last+1 > nextNonce {
		nextNonce = last + 1
	}

	switch {
	case tx.Nonce() == nextNonce:
		p.txMap[hash] = entry
		p.pending[sender] = append(p.pending[sender], entry)
		p.nextOrder++
		p.drainFuture(sender)
		log.Trace("Pooled new pending transaction", "tx", hash, "from", sender, "nonce", tx.Nonce())

	case tx.Nonce() > nextNonce:
		if err := p.insertOrReplace(&p.future, sender, entry); err != nil {
			return err
		}
		log.Trace("Pooled new future transaction", "tx", hash, "from", sender, "nonce", tx.Nonce())

	default:
		// Same nonce as a pending entry: replacement pricing applies.
		if err := p.insertOrReplace(&p.pending, sender, entry); err != nil {
			return err
		}
		log.Trace("Replaced pending transaction", "tx", hash, "from", sender, "nonce", tx.Nonce())
	}
	return nil
}

// insertOrReplace inserts entry into the sender's queue in nonce order,
// applying the 10% replacement rule when the nonce is already occupied.
// Callers must hold p.mu.
func (p *MemPool) insertOrReplace(queues *map[common.Address][]*TxEntry, sender common.Address, entry *TxEntry) error {
	queue := (*queues)[sender]
	for i, existing := range queue {
		if existing.Tx.Nonce() != entry.Tx.Nonce() {
			continue
		}
		if err := checkReplacement(existing.Tx, entry.Tx); err != nil {
			return err
		}
		delete(p.txMap, existing.Tx.Hash())
		entry.Order = p.nextOrder
		p.nextOrder++
		queue[i] = entry
		p.txMap[entry.Tx.Hash()] = entry
		return nil
	}
	queue = append(queue, entry)
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Tx.Nonce() < queue[j].Tx.Nonce() })
	(*queues)[sender] = queue
	p.txMap[entry.Tx.Hash()] = entry
	p.nextOrder++
	return nil
}

// checkReplacement enforces the 110% pricing rule of same-nonce replacement.
func checkReplacement(old, new_ *types.Transaction) error {
	minFeeCap := minReplacementFee(old.GasFeeCap())
	if new_.GasFeeCap().Cmp(minFeeCap) < 0 {
		return &ErrReplacementMaxFeePerGasTooLow{MinNewMaxFeePerGas: minFeeCap}
	}
	minTipCap := minReplacementFee(old.GasTipCap())
	if new_.GasTipCap().Cmp(minTipCap) < 0 {
		return &ErrReplacementMaxPriorityFeePerGasTooLow{MinNewMaxPriorityFeePerGas: minTipCap}
	}
	return nil
}

// minReplacementFee is ceil(old * 110 / 100).
func minReplacementFee(old *big.Int) *big.Int {
	fee := new(big.Int).Mul(old, big.NewInt(110))
	fee.Add(fee, big.NewInt(99))
	return fee.Div(fee, big.NewInt(100))
}

// drainFuture moves now-contiguous future transactions of the sender into
// the pending queue. Callers must hold p.mu.
func (p *MemPool) drainFuture(sender common.Address) {
	next, ok := p.lastPendingNonce(sender)
	if !ok {
		return
	}
	next++
	queue := p.future[sender]
	moved := 0
	for _, entry := range queue {
		if entry.Tx.Nonce() != next {
			break
		}
		p.pending[sender] = append(p.pending[sender], entry)
		next++
		moved++
	}
	if moved == len(queue) {
		delete(p.future, sender)
	} else if moved > 0 {
		p.future[sender] = queue[moved:]
	}
}

// RemoveTransaction removes the transaction with the given hash from the
// pool. Removing from the middle of a pending queue migrates the gapped
// suffix into the future queue. Returns false when the hash is unknown.
func (p *MemPool) RemoveTransaction(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.txMap[hash]
	if !exists {
		return false
	}
	delete(p.txMap, hash)
	sender := entry.From

	if queue, ok := p.pending[sender]; ok {
		for i, e := range queue {
			if e != entry {
				continue
			}
			head := queue[:i]
			tail := queue[i+1:]
			if len(head) == 0 {
				delete(p.pending, sender)
			} else {
				p.pending[sender] = head
			}
			// The removal leaves a nonce gap; demote the suffix.
			if len(tail) > 0 {
				p.future[sender] = append(tail, p.future[sender]...)
				sort.SliceStable(p.future[sender], func(a, b int) bool {
					return p.future[sender][a].Tx.Nonce() < p.future[sender][b].Tx.Nonce()
				})
			}
			return true
		}
	}
	if queue, ok := p.future[sender]; ok {
		for i, e := range queue {
			if e != entry {
				continue
			}
			queue = append(queue[:i], queue[i+1:]...)
			if len(queue) == 0 {
				delete(p.future, sender)
			} else {
				p.future[sender] = queue
			}
			return true
		}
	}
	return true
}

// TransactionByHash returns the pooled entry for the hash, or nil.
func (p *MemPool) TransactionByHash(hash common.Hash) *TxEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.txMap[hash]
}

// Update revalidates the pool against new state: entries invalidated by the
// block gas limit, the sender balance or a raised account nonce are dropped,
// and queues are re-partitioned around any new gaps.
func (p *MemPool) Update(st state.StateDB) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	senders := make(map[common.Address]bool, len(p.pending)+len(p.future))
	for sender := range p.pending {
		senders[sender] = true
	}
	for sender := range p.future {
		senders[sender] = true
	}

	for sender := range senders {
		accountNonce, err := st.GetNonce(sender)
		if err != nil {
			return err
		}
		balance, err := st.GetBalance(sender)
		if err != nil {
			return err
		}
		bigBalance := balance.ToBig()

		var keep []*TxEntry
		for _, entry := range append(append([]*TxEntry(nil), p.pending[sender]...), p.future[sender]...) {
			tx := entry.Tx
			switch {
			case tx.Gas() > p.blockGasLimit:
				delete(p.txMap, tx.Hash())
				log.Trace("Dropped transaction exceeding block gas limit", "tx", tx.Hash(), "gas", tx.Gas())
			case tx.Nonce() < accountNonce:
				delete(p.txMap, tx.Hash())
				log.Trace("Dropped stale transaction", "tx", tx.Hash(), "nonce", tx.Nonce())
			case bigBalance.Cmp(tx.Cost()) < 0:
				delete(p.txMap, tx.Hash())
				log.Trace("Dropped unfunded transaction", "tx", tx.Hash(), "cost", tx.Cost())
			default:
				keep = append(keep, entry)
			}
		}
		sort.SliceStable(keep, func(i, j int) bool { return keep[i].Tx.Nonce() < keep[j].Tx.Nonce() })

		// Re-partition: contiguous nonces from the account nonce are pending.
		var pending, future []*TxEntry
		next := accountNonce
		for _, entry := range keep {
			if entry.Tx.Nonce() == next {
				pending = append(pending, entry)
				next++
			} else {
				future = append(future, entry)
			}
		}
		if len(pending) > 0 {
			p.pending[sender] = pending
		} else {
			delete(p.pending, sender)
		}
		if len(future) > 0 {
			p.future[sender] = future
		} else {
			delete(p.future, sender)
		}
	}
	return nil
}

// HasPendingTransactions reports whether any transaction is executable now.
func (p *MemPool) HasPendingTransactions() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending) > 0
}

// HasFutureTransactions reports whether any transaction waits on a nonce gap.
func (p *MemPool) HasFutureTransactions() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.future) > 0
}

// Len returns the total number of pooled transactions.
func (p *MemPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txMap)
}

// PendingTransactions returns a snapshot of all pending entries grouped by
// sender, each queue in nonce order.
func (p *MemPool) PendingTransactions() map[common.Address][]*TxEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyQueues(p.pending)
}

// FutureTransactions returns a snapshot of all future entries grouped by
// sender, each queue in nonce order.
func (p *MemPool) FutureTransactions() map[common.Address][]*TxEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return copyQueues(p.future)
}

// Transactions returns a snapshot of every pooled transaction.
func (p *MemPool) Transactions() []*types.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]*types.Transaction, 0, len(p.txMap))
	for _, entry := range p.txMap {
		result = append(result, entry.Tx)
	}
	return result
}

func copyQueues(queues map[common.Address][]*TxEntry) map[common.Address][]*TxEntry {
	result := make(map[common.Address][]*TxEntry, len(queues))
	for sender, queue := range queues {
		cpy := make([]*TxEntry, len(queue))
		copy(cpy, queue)
		result[sender] = cpy
	}
	return result
}
