// Copyright 2021 The go-ethereum Authors
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

package types

import (
	"bytes"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

var (
	// EmptyRootHash is the root of an empty Merkle-Patricia trie, keccak256(rlp("")).
	EmptyRootHash = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

	// EmptyUncleHash is the hash of an empty uncle list, keccak256(rlp([])).
	EmptyUncleHash = common.HexToHash("1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347")

	// EmptyCodeHash is the hash of empty contract code, keccak256(nil).
	EmptyCodeHash = crypto.Keccak256Hash(nil)

	// EmptyWithdrawalsHash is the root of an empty withdrawal list.
	EmptyWithdrawalsHash = EmptyRootHash

	// EmptyTxsHash is the root of an empty transaction list.
	EmptyTxsHash = EmptyRootHash

	// EmptyReceiptsHash is the root of an empty receipt list.
	EmptyReceiptsHash = EmptyRootHash
)

// encodeBufferPool holds temporary encoder buffers for DeriveSha and tx encoding.
var encodeBufferPool = sync.Pool{
	New: func() interface{} { return new(bytes.Buffer) },
}

// getPooledBuffer retrieves a buffer from the pool, to be returned with
// returnPooledBuffer after use.
func getPooledBuffer() *bytes.Buffer {
	buf := encodeBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func returnPooledBuffer(buf *bytes.Buffer) {
	encodeBufferPool.Put(buf)
}

// rlpHash encodes x and hashes the encoded bytes.
func rlpHash(x interface{}) (h common.Hash) {
	buf := getPooledBuffer()
	defer returnPooledBuffer(buf)
	rlp.Encode(buf, x)
	return crypto.Keccak256Hash(buf.Bytes())
}

// prefixedRlpHash writes the prefix into the hasher before rlp-encoding x.
// It's used for typed transactions.
func prefixedRlpHash(prefix byte, x interface{}) (h common.Hash) {
	buf := getPooledBuffer()
	defer returnPooledBuffer(buf)
	buf.WriteByte(prefix)
	rlp.Encode(buf, x)
	return crypto.Keccak256Hash(buf.Bytes())
}

// DerivableList is the input to DeriveSha: transactions, receipts or
// withdrawals, encodable one element at a time.
type DerivableList interface {
	Len() int
	EncodeIndex(int, *bytes.Buffer)
}

func encodeForDerive(list DerivableList, i int, buf *bytes.Buffer) []byte {
	buf.Reset()
	list.EncodeIndex(i, buf)
	// It's really unfortunate that we need to perform this copy.
	// StackTrie holds onto the values until Hash is called, so the values
	// written to it must not alias.
	return common.CopyBytes(buf.Bytes())
}

// DeriveSha creates the tree hashes of transactions, receipts, and
// withdrawals in a block, keyed by their list index.
func DeriveSha(list DerivableList) common.Hash {
	hasher := trie.NewStackTrie(nil)

	valueBuf := getPooledBuffer()
	defer returnPooledBuffer(valueBuf)

	// StackTrie requires values to be inserted in increasing hash order, which
	// is not the order that `list` provides hashes in. This insertion sequence
	// ensures that the order is correct.
	var indexBuf []byte
	for i := 1; i < list.Len() && i <= 0x7f; i++ {
		indexBuf = rlp.AppendUint64(indexBuf[:0], uint64(i))
		value := encodeForDerive(list, i, valueBuf)
		hasher.Update(indexBuf, value)
	}
	if list.Len() > 0 {
		indexBuf = rlp.AppendUint64(indexBuf[:0], 0)
		value := encodeForDerive(list, 0, valueBuf)
		hasher.Update(indexBuf, value)
	}
	for i := 0x80; i < list.Len(); i++ {
		indexBuf = rlp.AppendUint64(indexBuf[:0], uint64(i))
		value := encodeForDerive(list, i, valueBuf)
		hasher.Update(indexBuf, value)
	}
	return hasher.Hash()
}
