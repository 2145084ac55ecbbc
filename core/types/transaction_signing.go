// Copyright 2016 The go-ethereum Authors
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
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethforge/devchain/params"
)

var (
	ErrInvalidChainId       = errors.New("invalid chain id for signer")
	ErrUnexpectedProtection = errors.New("transaction type does not supported EIP-155 protected signatures")
)

// sigCache is used to cache the derived sender and contains the signer used
// to derive it.
type sigCache struct {
	signer Signer
	from   common.Address
}

// Signer encapsulates transaction signature handling. Note that this
// interface is not a stable API and may change at any time to accommodate
// new protocol rules.
type Signer interface {
	// Sender returns the sender address of the transaction.
	Sender(tx *Transaction) (common.Address, error)

	// SignatureValues returns the raw R, S, V values corresponding to the
	// given signature.
	SignatureValues(tx *Transaction, sig []byte) (r, s, v *big.Int, err error)

	// ChainID returns the chain id of the signer.
	ChainID() *big.Int

	// Hash returns 'signature hash', i.e. the transaction hash that is signed
	// by the private key. This hash does not uniquely identify the transaction.
	Hash(tx *Transaction) common.Hash

	// Equal returns true if the given signer is the same as the receiver.
	Equal(Signer) bool
}

// LatestSigner returns the signer accepting every transaction type activated
// at the given hardfork on the given chain.
func LatestSigner(chainID *big.Int, hf params.Hardfork) Signer {
	return &chainSigner{chainID: new(big.Int).Set(chainID), hardfork: hf}
}

// Sender returns the address derived from the signature (V, R, S) using
// secp256k1 elliptic curve and an error if it failed deriving or upon an
// incorrect signature.
//
// Sender may cache the address, allowing it to be used regardless of
// signing method. The cache is invalidated if the cached signer does
// not match the signer used in the current call.
func Sender(signer Signer, tx *Transaction) (common.Address, error) {
	if sc := tx.from.Load(); sc != nil {
		// An impersonated sender is accepted under any signer: the wrapped
		// address was asserted by a privileged construction, not recovered.
		if _, impersonated := sc.signer.(fakeSigner); impersonated || sc.signer.Equal(signer) {
			return sc.from, nil
		}
	}
	addr, err := signer.Sender(tx)
	if err != nil {
		return common.Address{}, err
	}
	tx.from.Store(&sigCache{signer: signer, from: addr})
	return addr, nil
}

// chainSigner implements Signer for every supported transaction type up to
// its configured hardfork.
type chainSigner struct {
	chainID  *big.Int
	hardfork params.Hardfork
}

func (s *chainSigner) ChainID() *big.Int { return s.chainID }

func (s *chainSigner) Equal(other Signer) bool {
	cs, ok := other.(*chainSigner)
	return ok && cs.chainID.Cmp(s.chainID) == 0 && cs.hardfork == s.hardfork
}

// supportsType reports whether the signer's hardfork admits the tx type.
func (s *chainSigner) supportsType(txType uint8) bool {
	switch txType {
	case LegacyTxType:
		return true
	case AccessListTxType:
		return s.hardfork >= params.Berlin
	case DynamicFeeTxType:
		return s.hardfork >= params.London
	case BlobTxType:
		return s.hardfork >= params.Cancun
	case SetCodeTxType:
		return s.hardfork >= params.Prague
	default:
		return false
	}
}

func (s *chainSigner) Sender(tx *Transaction) (common.Address, error) {
	if !s.supportsType(tx.Type()) {
		return common.Address{}, ErrTxTypeNotSupported
	}
	V, R, S := tx.RawSignatureValues()
	switch tx.Type() {
	case LegacyTxType:
		if !tx.Protected() {
			return recoverPlain(legacySigHash(tx, nil), R, S, V, true)
		}
		if tx.ChainId().Cmp(s.chainID) != 0 {
			return common.Address{}, fmt.Errorf("%w: have %d want %d", ErrInvalidChainId, tx.ChainId(), s.chainID)
		}
		// EIP-155: V = chainID*2 + 35 + recovery id
		V = new(big.Int).Sub(V, new(big.Int).Mul(s.chainID, big.NewInt(2)))
		V.Sub(V, big.NewInt(8))
		return recoverPlain(legacySigHash(tx, s.chainID), R, S, V, true)
	default:
		if tx.ChainId().Cmp(s.chainID) != 0 {
			return common.Address{}, fmt.Errorf("%w: have %d want %d", ErrInvalidChainId, tx.ChainId(), s.chainID)
		}
		// Typed txs store the y-parity directly.
		V = new(big.Int).Add(V, big.NewInt(27))
		return recoverPlain(s.Hash(tx), R, S, V, true)
	}
}

func (s *chainSigner) SignatureValues(tx *Transaction, sig []byte) (r, s_, v *big.Int, err error) {
	if !s.supportsType(tx.Type()) {
		return nil, nil, nil, ErrTxTypeNotSupported
	}
	r, s_ = decodeSignature(sig)
	if tx.Type() == LegacyTxType {
		if s.chainID.Sign() != 0 {
			v = big.NewInt(int64(sig[64] + 35))
			v.Add(v, new(big.Int).Mul(s.chainID, big.NewInt(2)))
		} else {
			v = new(big.Int).SetBytes([]byte{sig[64] + 27})
		}
		return r, s_, v, nil
	}
	// Typed transaction, chain id must match.
	if tx.ChainId().Sign() != 0 && tx.ChainId().Cmp(s.chainID) != 0 {
		return nil, nil, nil, fmt.Errorf("%w: have %d want %d", ErrInvalidChainId, tx.ChainId(), s.chainID)
	}
	v = big.NewInt(int64(sig[64]))
	return r, s_, v, nil
}

// Hash returns the hash to be signed by the sender.
func (s *chainSigner) Hash(tx *Transaction) common.Hash {
	switch tx.Type() {
	case LegacyTxType:
		// An unsigned legacy transaction is signed with EIP-155 protection
		// (see SignatureValues); only a signed pre-EIP-155 transaction hashes
		// without the chain id.
		if v, _, _ := tx.RawSignatureValues(); tx.Protected() || v == nil || v.Sign() == 0 {
			return legacySigHash(tx, s.chainID)
		}
		return legacySigHash(tx, nil)
	case AccessListTxType:
		inner := tx.inner.(*AccessListTx)
		return prefixedRlpHash(tx.Type(), []any{
			inner.ChainID, inner.Nonce, inner.GasPrice, inner.Gas,
			inner.To, inner.Value, inner.Data, inner.AccessList,
		})
	case DynamicFeeTxType:
		inner := tx.inner.(*DynamicFeeTx)
		return prefixedRlpHash(tx.Type(), []any{
			inner.ChainID, inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas,
			inner.To, inner.Value, inner.Data, inner.AccessList,
		})
	case BlobTxType:
		inner := tx.inner.(*BlobTx)
		return prefixedRlpHash(tx.Type(), []any{
			inner.ChainID, inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas,
			inner.To, inner.Value, inner.Data, inner.AccessList,
			inner.BlobFeeCap, inner.BlobHashes,
		})
	case SetCodeTxType:
		inner := tx.inner.(*SetCodeTx)
		return prefixedRlpHash(tx.Type(), []any{
			inner.ChainID, inner.Nonce, inner.GasTipCap, inner.GasFeeCap, inner.Gas,
			inner.To, inner.Value, inner.Data, inner.AccessList, inner.AuthList,
		})
	default:
		panic(fmt.Sprintf("unsupported transaction type %d", tx.Type()))
	}
}

// HomesteadSigner produces and recovers pre-EIP-155 signatures: v in
// {27, 28}, no chain id in the preimage.
type HomesteadSigner struct{}

func (hs HomesteadSigner) ChainID() *big.Int     { return new(big.Int) }
func (hs HomesteadSigner) Equal(s2 Signer) bool  { _, ok := s2.(HomesteadSigner); return ok }

func (hs HomesteadSigner) Sender(tx *Transaction) (common.Address, error) {
	if tx.Type() != LegacyTxType {
		return common.Address{}, ErrTxTypeNotSupported
	}
	if tx.Protected() {
		return common.Address{}, ErrUnexpectedProtection
	}
	v, r, s := tx.RawSignatureValues()
	return recoverPlain(legacySigHash(tx, nil), r, s, v, true)
}

func (hs HomesteadSigner) SignatureValues(tx *Transaction, sig []byte) (r, s, v *big.Int, err error) {
	if tx.Type() != LegacyTxType {
		return nil, nil, nil, ErrTxTypeNotSupported
	}
	r, s = decodeSignature(sig)
	v = new(big.Int).SetBytes([]byte{sig[64] + 27})
	return r, s, v, nil
}

func (hs HomesteadSigner) Hash(tx *Transaction) common.Hash {
	return legacySigHash(tx, nil)
}

// legacySigHash computes the signature preimage of a legacy transaction,
// optionally mixing in the EIP-155 chain id.
func legacySigHash(tx *Transaction, chainID *big.Int) common.Hash {
	inner := tx.inner.(*LegacyTx)
	if chainID == nil || chainID.Sign() == 0 {
		return rlpHash([]any{
			inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data,
		})
	}
	return rlpHash([]any{
		inner.Nonce, inner.GasPrice, inner.Gas, inner.To, inner.Value, inner.Data,
		chainID, uint(0), uint(0),
	})
}

func decodeSignature(sig []byte) (r, s *big.Int) {
	if len(sig) != crypto.SignatureLength {
		panic(fmt.Sprintf("wrong size for signature: got %d, want %d", len(sig), crypto.SignatureLength))
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	return r, s
}

func recoverPlain(sighash common.Hash, R, S, Vb *big.Int, homestead bool) (common.Address, error) {
	if Vb.BitLen() > 8 {
		return common.Address{}, ErrInvalidSig
	}
	V := byte(Vb.Uint64() - 27)
	if !validateSignatureValues(V, R, S, homestead) {
		return common.Address{}, ErrInvalidSig
	}
	// encode the signature in uncompressed format
	r, s := R.Bytes(), S.Bytes()
	sig := make([]byte, crypto.SignatureLength)
	copy(sig[32-len(r):32], r)
	copy(sig[64-len(s):64], s)
	sig[64] = V
	// recover the public key from the signature
	pub, err := crypto.Ecrecover(sighash[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	if len(pub) == 0 || pub[0] != 4 {
		return common.Address{}, errors.New("invalid public key")
	}
	var addr common.Address
	copy(addr[:], crypto.Keccak256(pub[1:])[12:])
	return addr, nil
}

// deriveChainId derives the chain id from the given v parameter.
func deriveChainId(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.BitLen() <= 64 {
		v := v.Uint64()
		if v == 27 || v == 28 {
			return new(big.Int)
		}
		if v < 35 {
			return new(big.Int)
		}
		return new(big.Int).SetUint64((v - 35) / 2)
	}
	v = new(big.Int).Sub(v, big.NewInt(35))
	return v.Div(v, big.NewInt(2))
}

// SignTx signs the transaction using the given signer and private key.
func SignTx(tx *Transaction, s Signer, prv *ecdsa.PrivateKey) (*Transaction, error) {
	h := s.Hash(tx)
	sig, err := crypto.Sign(h[:], prv)
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(s, sig)
}

// SignNewTx creates a transaction and signs it.
func SignNewTx(prv *ecdsa.PrivateKey, s Signer, txdata TxData) (*Transaction, error) {
	return SignTx(NewTx(txdata), s, prv)
}

// MustSignNewTx creates a transaction and signs it.
// This panics if the transaction cannot be signed.
func MustSignNewTx(prv *ecdsa.PrivateKey, s Signer, txdata TxData) *Transaction {
	tx, err := SignNewTx(prv, s, txdata)
	if err != nil {
		panic(err)
	}
	return tx
}

// fakeSigner marks a sender cache entry as externally asserted.
type fakeSigner struct{}

func (fakeSigner) Sender(*Transaction) (common.Address, error) {
	return common.Address{}, errors.New("fake signer cannot recover senders")
}
func (fakeSigner) SignatureValues(*Transaction, []byte) (*big.Int, *big.Int, *big.Int, error) {
	return nil, nil, nil, errors.New("fake signer cannot produce signatures")
}
func (fakeSigner) ChainID() *big.Int          { return new(big.Int) }
func (fakeSigner) Hash(*Transaction) common.Hash { return common.Hash{} }
func (fakeSigner) Equal(s Signer) bool        { _, ok := s.(fakeSigner); return ok }

// NewImpersonatedTransaction wraps an externally asserted sender address
// around unsigned transaction data without cryptographic verification. The
// placeholder signature values keep the encoding well-formed; sender
// recovery short-circuits to the asserted address. Only the impersonation
// path of the provider may construct these.
func NewImpersonatedTransaction(inner TxData, sender common.Address) *Transaction {
	data := inner.copy()
	// A recognizable, stable placeholder: r is derived from the impersonated
	// address, s is 1, recovery id 0.
	r := new(big.Int).SetBytes(crypto.Keccak256(sender.Bytes()))
	r.Mod(r, secp256k1N)
	if r.Sign() == 0 {
		r.SetInt64(1)
	}
	v := big.NewInt(0)
	if data.txType() == LegacyTxType {
		v = big.NewInt(27)
	}
	data.setSignatureValues(data.chainID(), v, r, big.NewInt(1))
	tx := &Transaction{inner: data}
	tx.from.Store(&sigCache{signer: fakeSigner{}, from: sender})
	return tx
}
