package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ethforge/devchain/params"
)

func TestReceiptEnvelopeSelection(t *testing.T) {
	root := common.HexToHash("0x01").Bytes()

	preByzantium := NewReceipt(LegacyTxType, params.SpuriousDragon, root, false, 21000)
	require.Equal(t, root, preByzantium.PostState)
	require.False(t, preByzantium.Failed())

	failed := NewReceipt(LegacyTxType, params.Byzantium, nil, true, 21000)
	require.Nil(t, failed.PostState)
	require.Equal(t, ReceiptStatusFailed, failed.Status)
	require.True(t, failed.Failed())

	typed := NewReceipt(DynamicFeeTxType, params.London, nil, false, 42000)
	require.Equal(t, uint8(DynamicFeeTxType), typed.Type)
	require.Equal(t, ReceiptStatusSuccessful, typed.Status)
}

func TestReceiptBinaryRoundTrip(t *testing.T) {
	receipts := Receipts{
		NewReceipt(LegacyTxType, params.Byzantium, nil, false, 21000),
		NewReceipt(DynamicFeeTxType, params.London, nil, true, 42000),
		NewReceipt(BlobTxType, params.Cancun, nil, false, 63000),
	}
	receipts[0].Logs = []*Log{{
		Address: common.HexToAddress("0x095e7baea6a6c7c4c2dfeb977efac326af552d87"),
		Topics:  []common.Hash{common.HexToHash("0x0a")},
		Data:    []byte{0x01, 0x02},
	}}
	receipts[0].Bloom = CreateBloom(receipts[0].Logs)

	for _, receipt := range receipts {
		encoded, err := receipt.MarshalBinary()
		require.NoError(t, err)

		decoded := new(Receipt)
		require.NoError(t, decoded.UnmarshalBinary(encoded))
		require.Equal(t, receipt.Type, decoded.Type)
		require.Equal(t, receipt.Status, decoded.Status)
		require.Equal(t, receipt.CumulativeGasUsed, decoded.CumulativeGasUsed)
		require.Equal(t, receipt.Bloom, decoded.Bloom)
	}
}

func TestBlockBloomIsUnionOfReceiptBlooms(t *testing.T) {
	log1 := &Log{Address: common.HexToAddress("0x01"), Topics: []common.Hash{common.HexToHash("0xaa")}}
	log2 := &Log{Address: common.HexToAddress("0x02"), Topics: []common.Hash{common.HexToHash("0xbb")}}

	r1 := NewReceipt(LegacyTxType, params.London, nil, false, 21000)
	r1.Logs = []*Log{log1}
	r1.Bloom = CreateBloom(r1.Logs)
	r2 := NewReceipt(LegacyTxType, params.London, nil, false, 42000)
	r2.Logs = []*Log{log2}
	r2.Bloom = CreateBloom(r2.Logs)

	merged := MergeBloom(Receipts{r1, r2})
	require.True(t, merged.Test(log1.Address.Bytes()))
	require.True(t, merged.Test(log2.Address.Bytes()))
	require.True(t, merged.Test(log1.Topics[0].Bytes()))
	require.True(t, merged.Test(log2.Topics[0].Bytes()))
	require.False(t, merged.Test(common.HexToAddress("0x03").Bytes()))

	var manual Bloom
	manual.Or(r1.Bloom)
	manual.Or(r2.Bloom)
	require.Equal(t, manual, merged)
}

func TestDeriveShaMatchesEmptyRoot(t *testing.T) {
	require.Equal(t, EmptyRootHash, DeriveSha(Receipts{}))
	require.Equal(t, EmptyRootHash, DeriveSha(Transactions{}))
}
