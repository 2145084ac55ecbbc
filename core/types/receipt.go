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

package types

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/ethforge/devchain/params"
)

var errShortTypedReceipt = errors.New("typed receipt too short")

const (
	// ReceiptStatusFailed is the status code of a transaction if execution failed.
	ReceiptStatusFailed = uint64(0)

	// ReceiptStatusSuccessful is the status code of a transaction if execution succeeded.
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt represents the results of a transaction.
type Receipt struct {
	// Consensus fields: these fields are defined by the Yellow Paper.
	// PostState is populated pre-Byzantium; Status afterwards.
	Type              uint8  `json:"type,omitempty"`
	PostState         []byte `json:"root"`
	Status            uint64 `json:"status"`
	CumulativeGasUsed uint64 `json:"cumulativeGasUsed"`
	Bloom             Bloom  `json:"logsBloom"`
	Logs              []*Log `json:"logs"`

	// Implementation fields: These fields are added by geth when processing a transaction.
	TxHash            common.Hash    `json:"transactionHash"`
	ContractAddress   common.Address `json:"contractAddress"`
	GasUsed           uint64         `json:"gasUsed"`
	EffectiveGasPrice *big.Int       `json:"effectiveGasPrice"`
	BlobGasUsed       uint64         `json:"blobGasUsed,omitempty"`
	BlobGasPrice      *big.Int       `json:"blobGasPrice,omitempty"`

	// Inclusion information: These fields provide information about the inclusion of the
	// transaction corresponding to this receipt.
	BlockHash        common.Hash `json:"blockHash,omitempty"`
	BlockNumber      *big.Int    `json:"blockNumber,omitempty"`
	TransactionIndex uint        `json:"transactionIndex"`

	// Sender and receiver, derived from the transaction.
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
}

// receiptRLP is the consensus encoding of a receipt.
type receiptRLP struct {
	PostStateOrStatus []byte
	CumulativeGasUsed uint64
	Bloom             Bloom
	Logs              []*Log
}

// NewReceipt creates a barebone transaction receipt, copying the init fields.
// The envelope is selected by the active hardfork: a state-root receipt
// before Byzantium, a status receipt afterwards, carrying the transaction
// type tag for typed transactions.
func NewReceipt(txType uint8, hf params.Hardfork, root []byte, failed bool, cumulativeGasUsed uint64) *Receipt {
	r := &Receipt{
		Type:              txType,
		CumulativeGasUsed: cumulativeGasUsed,
	}
	if hf < params.Byzantium {
		r.PostState = common.CopyBytes(root)
	} else if failed {
		r.Status = ReceiptStatusFailed
	} else {
		r.Status = ReceiptStatusSuccessful
	}
	return r
}

// EncodeRLP implements rlp.Encoder, and flattens the consensus fields of a
// receipt into an RLP stream. Typed receipts get wrapped in the one-byte
// type envelope.
func (r *Receipt) EncodeRLP(w io.Writer) error {
	data := &receiptRLP{r.statusEncoding(), r.CumulativeGasUsed, r.Bloom, r.Logs}
	if r.Type == LegacyTxType {
		return rlp.Encode(w, data)
	}
	buf := getPooledBuffer()
	defer returnPooledBuffer(buf)
	buf.WriteByte(r.Type)
	if err := rlp.Encode(buf, data); err != nil {
		return err
	}
	return rlp.Encode(w, buf.Bytes())
}

// MarshalBinary returns the consensus encoding of the receipt.
func (r *Receipt) MarshalBinary() ([]byte, error) {
	data := &receiptRLP{r.statusEncoding(), r.CumulativeGasUsed, r.Bloom, r.Logs}
	var buf bytes.Buffer
	if r.Type != LegacyTxType {
		buf.WriteByte(r.Type)
	}
	err := rlp.Encode(&buf, data)
	return buf.Bytes(), err
}

// UnmarshalBinary decodes the consensus encoding of receipts. It supports
// legacy RLP receipts and EIP-2718 typed receipts.
func (r *Receipt) UnmarshalBinary(b []byte) error {
	if len(b) > 0 && b[0] > 0x7f {
		var data receiptRLP
		if err := rlp.DecodeBytes(b, &data); err != nil {
			return err
		}
		r.Type = LegacyTxType
		return r.setFromRLP(data)
	}
	if len(b) <= 1 {
		return errShortTypedReceipt
	}
	switch b[0] {
	case AccessListTxType, DynamicFeeTxType, BlobTxType, SetCodeTxType:
		var data receiptRLP
		if err := rlp.DecodeBytes(b[1:], &data); err != nil {
			return err
		}
		r.Type = b[0]
		return r.setFromRLP(data)
	default:
		return ErrTxTypeNotSupported
	}
}

func (r *Receipt) setFromRLP(data receiptRLP) error {
	r.CumulativeGasUsed, r.Bloom, r.Logs = data.CumulativeGasUsed, data.Bloom, data.Logs
	return r.setStatus(data.PostStateOrStatus)
}

func (r *Receipt) setStatus(postStateOrStatus []byte) error {
	switch {
	case bytes.Equal(postStateOrStatus, receiptStatusSuccessfulRLP):
		r.Status = ReceiptStatusSuccessful
	case bytes.Equal(postStateOrStatus, receiptStatusFailedRLP):
		r.Status = ReceiptStatusFailed
	case len(postStateOrStatus) == len(common.Hash{}):
		r.PostState = postStateOrStatus
	default:
		return fmt.Errorf("invalid receipt status %x", postStateOrStatus)
	}
	return nil
}

func (r *Receipt) statusEncoding() []byte {
	if len(r.PostState) == 0 {
		if r.Status == ReceiptStatusFailed {
			return receiptStatusFailedRLP
		}
		return receiptStatusSuccessfulRLP
	}
	return r.PostState
}

var (
	receiptStatusFailedRLP     = []byte{}
	receiptStatusSuccessfulRLP = []byte{0x01}
)

// Failed reports whether the execution this receipt records reverted or
// halted. Pre-Byzantium receipts carry no status bit and always report false.
func (r *Receipt) Failed() bool {
	return len(r.PostState) == 0 && r.Status == ReceiptStatusFailed
}

// DeriveFields fills the receipt's non-consensus fields from the transaction
// and its inclusion context. contract address derivation requires the
// pre-execution sender nonce.
func (r *Receipt) DeriveFields(tx *Transaction, signer Signer, blockHash common.Hash, blockNumber uint64, baseFee *big.Int, blobGasPrice *big.Int, txIndex uint, prevCumulative uint64) error {
	from, err := Sender(signer, tx)
	if err != nil {
		return err
	}
	r.TxHash = tx.Hash()
	r.From = from
	r.To = tx.To()
	r.EffectiveGasPrice = tx.EffectiveGasPrice(baseFee)
	if tx.Type() == BlobTxType {
		r.BlobGasUsed = tx.BlobGas()
		r.BlobGasPrice = blobGasPrice
	}
	// The contract address can be derived from the transaction itself
	if tx.To() == nil && !r.Failed() {
		r.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	}
	r.GasUsed = r.CumulativeGasUsed - prevCumulative
	r.BlockHash = blockHash
	r.BlockNumber = new(big.Int).SetUint64(blockNumber)
	r.TransactionIndex = txIndex
	for i, log := range r.Logs {
		log.BlockNumber = blockNumber
		log.BlockHash = blockHash
		log.TxHash = r.TxHash
		log.TxIndex = txIndex
		log.Index = uint(i) // adjusted to the block-wide index by the builder
	}
	return nil
}

// Receipts implements DerivableList for receipt lists.
type Receipts []*Receipt

// Len returns the number of receipts in this list.
func (rs Receipts) Len() int { return len(rs) }

// EncodeIndex encodes the i'th receipt to w.
func (rs Receipts) EncodeIndex(i int, w *bytes.Buffer) {
	r := rs[i]
	data := &receiptRLP{r.statusEncoding(), r.CumulativeGasUsed, r.Bloom, r.Logs}
	if r.Type == LegacyTxType {
		rlp.Encode(w, data)
		return
	}
	w.WriteByte(r.Type)
	rlp.Encode(w, data)
}
