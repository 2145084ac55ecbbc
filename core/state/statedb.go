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

package state

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"

	"github.com/ethforge/devchain/core/types"
)

// StateDB is the account/storage view executed transactions run against.
// Read methods return errors because forked implementations may need to
// consult a remote node.
type StateDB interface {
	// GetAccount returns the account at addr, or nil when it does not exist.
	GetAccount(addr common.Address) (*Account, error)
	GetNonce(addr common.Address) (uint64, error)
	GetBalance(addr common.Address) (*uint256.Int, error)
	GetCode(addr common.Address) ([]byte, error)
	GetStorage(addr common.Address, slot common.Hash) (common.Hash, error)

	SetAccount(addr common.Address, account *Account) error
	SetNonce(addr common.Address, nonce uint64) error
	SetBalance(addr common.Address, balance *uint256.Int) error
	AddBalance(addr common.Address, amount *uint256.Int) error
	SetCode(addr common.Address, code []byte) error
	SetStorage(addr common.Address, slot, value common.Hash) error

	// ApplyDiff overrides accounts and storage slots field-wise.
	ApplyDiff(diff *StateDiff) error

	// StateRoot computes the Merkle-Patricia root of the full state.
	StateRoot() (common.Hash, error)

	// Copy returns an independent deep copy of the state.
	Copy() StateDB
}

// MemoryState is a fully in-memory StateDB. The zero value is not usable;
// create instances through NewMemoryState.
type MemoryState struct {
	accounts map[common.Address]*Account
	storage  map[common.Address]map[common.Hash]common.Hash
}

// NewMemoryState creates an empty in-memory state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		accounts: make(map[common.Address]*Account),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
}

func (s *MemoryState) GetAccount(addr common.Address) (*Account, error) {
	if account, ok := s.accounts[addr]; ok {
		return account.Copy(), nil
	}
	return nil, nil
}

func (s *MemoryState) GetNonce(addr common.Address) (uint64, error) {
	if account, ok := s.accounts[addr]; ok {
		return account.Nonce, nil
	}
	return 0, nil
}

func (s *MemoryState) GetBalance(addr common.Address) (*uint256.Int, error) {
	if account, ok := s.accounts[addr]; ok && account.Balance != nil {
		return new(uint256.Int).Set(account.Balance), nil
	}
	return new(uint256.Int), nil
}

func (s *MemoryState) GetCode(addr common.Address) ([]byte, error) {
	if account, ok := s.accounts[addr]; ok {
		return common.CopyBytes(account.Code), nil
	}
	return nil, nil
}

func (s *MemoryState) GetStorage(addr common.Address, slot common.Hash) (common.Hash, error) {
	if slots, ok := s.storage[addr]; ok {
		return slots[slot], nil
	}
	return common.Hash{}, nil
}

// mutableAccount returns the live account entry, creating it when absent.
func (s *MemoryState) mutableAccount(addr common.Address) *Account {
	account, ok := s.accounts[addr]
	if !ok {
		account = NewAccount(new(uint256.Int))
		s.accounts[addr] = account
	}
	return account
}

func (s *MemoryState) SetAccount(addr common.Address, account *Account) error {
	if account == nil {
		delete(s.accounts, addr)
		delete(s.storage, addr)
		return nil
	}
	s.accounts[addr] = account.Copy()
	return nil
}

func (s *MemoryState) SetNonce(addr common.Address, nonce uint64) error {
	s.mutableAccount(addr).Nonce = nonce
	return nil
}

func (s *MemoryState) SetBalance(addr common.Address, balance *uint256.Int) error {
	s.mutableAccount(addr).Balance = new(uint256.Int).Set(balance)
	return nil
}

func (s *MemoryState) AddBalance(addr common.Address, amount *uint256.Int) error {
	account := s.mutableAccount(addr)
	account.Balance = new(uint256.Int).Add(account.Balance, amount)
	return nil
}

func (s *MemoryState) SetCode(addr common.Address, code []byte) error {
	account := s.mutableAccount(addr)
	account.Code = common.CopyBytes(code)
	account.CodeHash = crypto.Keccak256Hash(code)
	return nil
}

func (s *MemoryState) SetStorage(addr common.Address, slot, value common.Hash) error {
	slots, ok := s.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		s.storage[addr] = slots
	}
	if value == (common.Hash{}) {
		delete(slots, slot)
	} else {
		slots[slot] = value
	}
	return nil
}

func (s *MemoryState) ApplyDiff(diff *StateDiff) error {
	if diff == nil {
		return nil
	}
	for addr, account := range diff.Accounts {
		if err := s.SetAccount(addr, account); err != nil {
			return err
		}
	}
	for addr, slots := range diff.Storage {
		for slot, value := range slots {
			if err := s.SetStorage(addr, slot, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *MemoryState) StateRoot() (common.Hash, error) {
	return stateRoot(s.accounts, s.storage), nil
}

func (s *MemoryState) Copy() StateDB {
	cpy := NewMemoryState()
	for addr, account := range s.accounts {
		cpy.accounts[addr] = account.Copy()
	}
	for addr, slots := range s.storage {
		dst := make(map[common.Hash]common.Hash, len(slots))
		for slot, value := range slots {
			dst[slot] = value
		}
		cpy.storage[addr] = dst
	}
	return cpy
}

// storageRoot computes the Merkle-Patricia root of a single account's storage.
func storageRoot(slots map[common.Hash]common.Hash) common.Hash {
	if len(slots) == 0 {
		return types.EmptyRootHash
	}
	type kv struct {
		key   common.Hash
		value common.Hash
	}
	entries := make([]kv, 0, len(slots))
	for slot, value := range slots {
		entries = append(entries, kv{crypto.Keccak256Hash(slot.Bytes()), value})
	}
	// The stack trie requires keys in ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key.Cmp(entries[j].key) < 0
	})
	hasher := trie.NewStackTrie(nil)
	for _, entry := range entries {
		trimmed := entry.value.Big().Bytes()
		enc, _ := rlp.EncodeToBytes(trimmed)
		hasher.Update(entry.key.Bytes(), enc)
	}
	return hasher.Hash()
}

// stateRoot computes the Merkle-Patricia root of the account mapping,
// including per-account storage roots.
func stateRoot(accounts map[common.Address]*Account, storage map[common.Address]map[common.Hash]common.Hash) common.Hash {
	if len(accounts) == 0 {
		return types.EmptyRootHash
	}
	type kv struct {
		key  common.Hash
		addr common.Address
	}
	entries := make([]kv, 0, len(accounts))
	for addr := range accounts {
		entries = append(entries, kv{crypto.Keccak256Hash(addr.Bytes()), addr})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key.Cmp(entries[j].key) < 0
	})
	hasher := trie.NewStackTrie(nil)
	for _, entry := range entries {
		account := accounts[entry.addr]
		codeHash := account.CodeHash
		if codeHash == (common.Hash{}) {
			codeHash = types.EmptyCodeHash
		}
		enc, _ := rlp.EncodeToBytes(&trieAccount{
			Nonce:    account.Nonce,
			Balance:  account.Balance.ToBig(),
			Root:     storageRoot(storage[entry.addr]),
			CodeHash: codeHash.Bytes(),
		})
		hasher.Update(entry.key.Bytes(), enc)
	}
	return hasher.Hash()
}
