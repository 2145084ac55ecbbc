package state

import (
	"github.com/ethereum/go-ethereum/common"
)

// StateDiff captures the net effect of executing transactions: full-account
// overrides plus changed storage slots. Applying a diff is field-wise
// override of the target state.
type StateDiff struct {
	Accounts map[common.Address]*Account
	Storage  map[common.Address]map[common.Hash]common.Hash
}

// NewStateDiff creates an empty diff.
func NewStateDiff() *StateDiff {
	return &StateDiff{
		Accounts: make(map[common.Address]*Account),
		Storage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// SetAccount records an account override in the diff.
func (d *StateDiff) SetAccount(addr common.Address, account *Account) {
	d.Accounts[addr] = account.Copy()
}

// SetStorage records a storage slot override in the diff.
func (d *StateDiff) SetStorage(addr common.Address, slot, value common.Hash) {
	slots, ok := d.Storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		d.Storage[addr] = slots
	}
	slots[slot] = value
}

// Merge folds other into d; other's entries win on conflict.
func (d *StateDiff) Merge(other *StateDiff) {
	if other == nil {
		return
	}
	for addr, account := range other.Accounts {
		d.Accounts[addr] = account.Copy()
	}
	for addr, slots := range other.Storage {
		for slot, value := range slots {
			d.SetStorage(addr, slot, value)
		}
	}
}

// Copy returns a deep copy of the diff.
func (d *StateDiff) Copy() *StateDiff {
	cpy := NewStateDiff()
	cpy.Merge(d)
	return cpy
}

// Empty reports whether the diff carries no changes.
func (d *StateDiff) Empty() bool {
	return d == nil || (len(d.Accounts) == 0 && len(d.Storage) == 0)
}
