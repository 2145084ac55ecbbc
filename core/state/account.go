// Copyright 2023 The go-ethereum Authors
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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/ethforge/devchain/core/types"
)

// Account holds the basic data of an account: balance, nonce and code. The
// code bytes travel with the hash so overlay states never need a separate
// code database.
type Account struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash common.Hash
	Code     []byte
}

// NewAccount creates an empty account with the given balance.
func NewAccount(balance *uint256.Int) *Account {
	return &Account{
		Balance:  new(uint256.Int).Set(balance),
		CodeHash: types.EmptyCodeHash,
	}
}

// Copy returns a deep copy of the account.
func (a *Account) Copy() *Account {
	cpy := &Account{
		Nonce:    a.Nonce,
		Balance:  new(uint256.Int),
		CodeHash: a.CodeHash,
		Code:     common.CopyBytes(a.Code),
	}
	if a.Balance != nil {
		cpy.Balance.Set(a.Balance)
	}
	return cpy
}

// IsEmpty reports whether the account matches the EIP-161 empty definition:
// zero nonce, zero balance, no code.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && (a.CodeHash == types.EmptyCodeHash || a.CodeHash == common.Hash{}))
}

// trieAccount is the consensus RLP shape of an account inside the state trie.
type trieAccount struct {
	Nonce    uint64
	Balance  *big.Int
	Root     common.Hash
	CodeHash []byte
}
