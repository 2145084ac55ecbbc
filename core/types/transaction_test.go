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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethforge/devchain/params"
)

func TestDecodePreEip155Legacy(t *testing.T) {
	raw := hexutil.MustDecode("0xf85f800182520894095e7baea6a6c7c4c2dfeb977efac326af552d870a801ca048b55bfa915ac795c431978d8a6a992b628d557da5ff759b307d495a36649353a010002cef538bc0c8e21c46080634a93e082408b0ad93f4a7207e63ec5463793d")

	tx := new(Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw))

	require.Equal(t, uint8(LegacyTxType), tx.Type())
	require.False(t, tx.Protected())
	require.Equal(t, uint64(0), tx.Nonce())
	require.Equal(t, big.NewInt(1), tx.GasPrice())
	require.Equal(t, uint64(0x5208), tx.Gas())
	require.Equal(t, common.HexToAddress("0x095e7baea6a6c7c4c2dfeb977efac326af552d87"), *tx.To())
	require.Equal(t, big.NewInt(0x0a), tx.Value())

	sender, err := Sender(HomesteadSigner{}, tx)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x0f65fe9276bc9a24ae7083ae28e2660ef72df99e"), sender)

	encoded, err := tx.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, raw, encoded)
}

func TestDecodeEip1559(t *testing.T) {
	raw := hexutil.MustDecode("0x02f872041a8459682f008459682f0d8252089461815774383099e24810ab832a5b2a5425c154d58829a2241af62c000080c001a059e6b67f48fb32e7e570dfb11e042b5ad2e55e3ce3ce9cd989c7e06e07feeafda0016b83f4f980694ed2eee4d10667242b1f40dc406901b34125b008d334d47469")

	tx := new(Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw))

	require.Equal(t, uint8(DynamicFeeTxType), tx.Type())
	require.Equal(t, big.NewInt(4), tx.ChainId())
	require.Equal(t, uint64(26), tx.Nonce())
	require.Equal(t, big.NewInt(1_500_000_000), tx.GasTipCap())
	require.Equal(t, big.NewInt(1_500_000_013), tx.GasFeeCap())
	require.Equal(t, uint64(21000), tx.Gas())
	require.Equal(t, common.HexToAddress("0x61815774383099e24810ab832a5b2a5425c154d5"), *tx.To())
	value, ok := new(big.Int).SetString("3000000000000000000", 10)
	require.True(t, ok)
	require.Equal(t, value, tx.Value())

	sender, err := Sender(LatestSigner(big.NewInt(4), params.London), tx)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x9421de2177f0e810ca1d69a040a2169f8c7c8e4b"), sender)

	encoded, err := tx.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, raw, encoded)
}

func TestTransactionRoundTrips(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	chainID := big.NewInt(1337)
	signer := LatestSigner(chainID, params.Prague)
	to := common.HexToAddress("0xb94f5374fce5edbc8e2a8697c15331677e6ebf0b")
	accessList := AccessList{{Address: to, StorageKeys: []common.Hash{{0x01}}}}
	auth, err := SignSetCode(key, SetCodeAuthorization{
		ChainID: *uint256.NewInt(1337),
		Address: to,
		Nonce:   7,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		data TxData
	}{
		{"legacy", &LegacyTx{Nonce: 1, GasPrice: big.NewInt(100), Gas: 21000, To: &to, Value: big.NewInt(10)}},
		{"legacyCreate", &LegacyTx{Nonce: 1, GasPrice: big.NewInt(100), Gas: 53000, Value: big.NewInt(0), Data: []byte{0x60, 0x00}}},
		{"accessList", &AccessListTx{ChainID: chainID, Nonce: 2, GasPrice: big.NewInt(100), Gas: 30000, To: &to, Value: big.NewInt(1), AccessList: accessList}},
		{"dynamicFee", &DynamicFeeTx{ChainID: chainID, Nonce: 3, GasTipCap: big.NewInt(5), GasFeeCap: big.NewInt(50), Gas: 21000, To: &to, Value: big.NewInt(1), AccessList: accessList}},
		{"blob", &BlobTx{
			ChainID:    uint256.NewInt(1337),
			Nonce:      4,
			GasTipCap:  uint256.NewInt(5),
			GasFeeCap:  uint256.NewInt(50),
			Gas:        21000,
			To:         to,
			Value:      uint256.NewInt(1),
			BlobFeeCap: uint256.NewInt(7),
			BlobHashes: []common.Hash{{0x01, 0x02}},
		}},
		{"setCode", &SetCodeTx{
			ChainID:   uint256.NewInt(1337),
			Nonce:     5,
			GasTipCap: uint256.NewInt(5),
			GasFeeCap: uint256.NewInt(50),
			Gas:       60000,
			To:        to,
			Value:     uint256.NewInt(0),
			AuthList:  []SetCodeAuthorization{auth},
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tx, err := SignNewTx(key, signer, test.data)
			require.NoError(t, err)

			encoded, err := tx.MarshalBinary()
			require.NoError(t, err)

			decoded := new(Transaction)
			require.NoError(t, decoded.UnmarshalBinary(encoded))
			require.Equal(t, tx.Hash(), decoded.Hash())

			reencoded, err := decoded.MarshalBinary()
			require.NoError(t, err)
			require.Equal(t, encoded, reencoded)

			sender, err := Sender(signer, decoded)
			require.NoError(t, err)
			require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
		})
	}
}

func TestPooledBlobTransactionRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := LatestSigner(big.NewInt(1337), params.Cancun)
	to := common.HexToAddress("0xb94f5374fce5edbc8e2a8697c15331677e6ebf0b")

	sidecar := &BlobTxSidecar{
		Blobs:       make([]kzg4844.Blob, 1),
		Commitments: make([]kzg4844.Commitment, 1),
		Proofs:      make([]kzg4844.Proof, 1),
	}
	sidecar.Blobs[0][0] = 0x01
	sidecar.Commitments[0][0] = 0x02
	sidecar.Proofs[0][0] = 0x03

	tx, err := SignNewTx(key, signer, &BlobTx{
		ChainID:    uint256.NewInt(1337),
		Nonce:      0,
		GasTipCap:  uint256.NewInt(1),
		GasFeeCap:  uint256.NewInt(10),
		Gas:        21000,
		To:         to,
		Value:      uint256.NewInt(0),
		BlobFeeCap: uint256.NewInt(2),
		BlobHashes: []common.Hash{{0x01}},
		Sidecar:    sidecar,
	})
	require.NoError(t, err)

	// The pooled encoding wraps the payload with the sidecar triple.
	pooled, err := tx.MarshalBinary()
	require.NoError(t, err)

	decoded := new(Transaction)
	require.NoError(t, decoded.UnmarshalBinary(pooled))
	require.NotNil(t, decoded.BlobTxSidecar())
	require.Equal(t, sidecar.Blobs, decoded.BlobTxSidecar().Blobs)

	// into_payload drops the blobs but preserves the canonical hash.
	payload := decoded.WithoutBlobTxSidecar()
	require.Nil(t, payload.BlobTxSidecar())
	require.Equal(t, tx.Hash(), payload.Hash())

	canonical, err := payload.MarshalBinary()
	require.NoError(t, err)
	require.Less(t, len(canonical), len(pooled))
}

func TestTransactionHashMemoization(t *testing.T) {
	to := common.HexToAddress("0x095e7baea6a6c7c4c2dfeb977efac326af552d87")
	tx := NewTx(&LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(10),
		V:        big.NewInt(27),
		R:        big.NewInt(1),
		S:        big.NewInt(1),
	})
	first := tx.Hash()
	second := tx.Hash()
	require.Equal(t, first, second)

	// The memoized value must match a fresh computation over the encoding.
	encoded, err := tx.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(encoded), first)

	// The cached encoding must be stable, too.
	again, err := tx.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, encoded, again)
}

func TestDecodeEmptyAuthListFails(t *testing.T) {
	inner := &SetCodeTx{
		ChainID:   uint256.NewInt(1),
		Nonce:     0,
		GasTipCap: uint256.NewInt(1),
		GasFeeCap: uint256.NewInt(1),
		Gas:       21000,
		Value:     uint256.NewInt(0),
		V:         big.NewInt(0),
		R:         big.NewInt(1),
		S:         big.NewInt(1),
	}
	encoded, err := NewTx(inner).MarshalBinary()
	require.NoError(t, err)

	decoded := new(Transaction)
	require.ErrorIs(t, decoded.UnmarshalBinary(encoded), ErrEmptyAuthList)
}

func TestDecodeInvalidTypeByte(t *testing.T) {
	decoded := new(Transaction)
	require.ErrorIs(t, decoded.UnmarshalBinary([]byte{0x05, 0xc0}), ErrTxTypeNotSupported)
}

func TestImpersonatedTransactionSender(t *testing.T) {
	impersonated := common.HexToAddress("0x1234000000000000000000000000000000005678")
	to := common.HexToAddress("0xb94f5374fce5edbc8e2a8697c15331677e6ebf0b")
	tx := NewImpersonatedTransaction(&DynamicFeeTx{
		ChainID:   big.NewInt(1337),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10),
		Gas:       21000,
		To:        &to,
	}, impersonated)

	// Any signer returns the asserted sender without recovery.
	sender, err := Sender(LatestSigner(big.NewInt(1337), params.London), tx)
	require.NoError(t, err)
	require.Equal(t, impersonated, sender)
}

func TestEffectiveGasTip(t *testing.T) {
	to := common.Address{0x01}
	tx := NewTx(&DynamicFeeTx{
		ChainID:   big.NewInt(1),
		GasTipCap: big.NewInt(10),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
	})
	require.Equal(t, big.NewInt(10), tx.EffectiveGasTipValue(big.NewInt(50)))
	require.Equal(t, big.NewInt(3), tx.EffectiveGasTipValue(big.NewInt(97)))
	// Without a base fee the full gas price (the fee cap) counts.
	require.Equal(t, big.NewInt(100), tx.EffectiveGasTipValue(nil))
}

func TestTransactionCost(t *testing.T) {
	to := common.Address{0x01}
	legacy := NewTx(&LegacyTx{GasPrice: big.NewInt(2), Gas: 21000, To: &to, Value: big.NewInt(100)})
	require.Equal(t, big.NewInt(2*21000+100), legacy.Cost())

	blob := NewTx(&BlobTx{
		ChainID:    uint256.NewInt(1),
		GasTipCap:  uint256.NewInt(1),
		GasFeeCap:  uint256.NewInt(2),
		Gas:        21000,
		To:         to,
		Value:      uint256.NewInt(100),
		BlobFeeCap: uint256.NewInt(3),
		BlobHashes: []common.Hash{{0x01}},
	})
	expected := new(big.Int).SetUint64(2*21000 + 100 + 3*params.BlobTxBlobGasPerBlob)
	require.Equal(t, expected, blob.Cost())
}
