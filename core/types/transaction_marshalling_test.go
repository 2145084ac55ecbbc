package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestMarshalLegacyOmitsChainIdAndYParity(t *testing.T) {
	to := common.HexToAddress("0x095e7baea6a6c7c4c2dfeb977efac326af552d87")
	tx := NewTx(&LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(100),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(5),
		V:        big.NewInt(27),
		R:        big.NewInt(1),
		S:        big.NewInt(1),
	})
	encoded, err := tx.MarshalJSON()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &fields))
	require.NotContains(t, fields, "chainId")
	require.NotContains(t, fields, "yParity")
	require.Contains(t, fields, "gasPrice")
	require.Contains(t, fields, "v")
}

func TestMarshalDynamicFeeEmitsVAndYParity(t *testing.T) {
	to := common.HexToAddress("0x095e7baea6a6c7c4c2dfeb977efac326af552d87")
	tx := NewTx(&DynamicFeeTx{
		ChainID:   big.NewInt(1337),
		Nonce:     1,
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(5),
		V:         big.NewInt(1),
		R:         big.NewInt(1),
		S:         big.NewInt(1),
	})
	encoded, err := tx.MarshalJSON()
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &fields))
	require.Contains(t, fields, "chainId")
	require.Contains(t, fields, "v")
	require.Contains(t, fields, "yParity")
	require.Contains(t, fields, "maxFeePerGas")
	require.Contains(t, fields, "maxPriorityFeePerGas")

	parsed := new(Transaction)
	require.NoError(t, parsed.UnmarshalJSON(encoded))
	require.Equal(t, tx.Hash(), parsed.Hash())
}

func TestTransactionUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name          string
		json          string
		expectedError string
	}{
		{
			name:          "No gas",
			json:          `{"type":"0x0","nonce":"0x1","gasPrice":"0x64","value":"0x1","input":"0x","to":null,"v":"0x1b","r":"0x1","s":"0x1"}`,
			expectedError: "missing required field 'gas'",
		},
		{
			name:          "No value",
			json:          `{"type":"0x0","nonce":"0x1","gas":"0x5208","gasPrice":"0x64","input":"0x","to":null,"v":"0x1b","r":"0x1","s":"0x1"}`,
			expectedError: "missing required field 'value'",
		},
		{
			name:          "No input",
			json:          `{"type":"0x0","nonce":"0x1","gas":"0x5208","gasPrice":"0x64","value":"0x1","to":null,"v":"0x1b","r":"0x1","s":"0x1"}`,
			expectedError: "missing required field 'input'",
		},
		{
			name:          "No chainId for 1559",
			json:          `{"type":"0x2","nonce":"0x1","gas":"0x5208","maxFeePerGas":"0x64","maxPriorityFeePerGas":"0x2","value":"0x1","input":"0x","to":null,"v":"0x0","r":"0x1","s":"0x1"}`,
			expectedError: "missing required field 'chainId'",
		},
		{
			name:          "No maxFeePerGas for 1559",
			json:          `{"type":"0x2","chainId":"0x539","nonce":"0x1","gas":"0x5208","maxPriorityFeePerGas":"0x2","value":"0x1","input":"0x","to":null,"v":"0x0","r":"0x1","s":"0x1"}`,
			expectedError: "missing required field 'maxFeePerGas'",
		},
		{
			name:          "No to for blob tx",
			json:          `{"type":"0x3","chainId":"0x539","nonce":"0x1","gas":"0x5208","maxFeePerGas":"0x64","maxPriorityFeePerGas":"0x2","maxFeePerBlobGas":"0x1","blobVersionedHashes":["0x0100000000000000000000000000000000000000000000000000000000000000"],"value":"0x1","input":"0x","v":"0x0","r":"0x1","s":"0x1"}`,
			expectedError: "missing required field 'to'",
		},
		{
			name:          "No authorizationList for setcode tx",
			json:          `{"type":"0x4","chainId":"0x539","nonce":"0x1","gas":"0x5208","maxFeePerGas":"0x64","maxPriorityFeePerGas":"0x2","value":"0x1","input":"0x","to":"0x095e7baea6a6c7c4c2dfeb977efac326af552d87","v":"0x0","r":"0x1","s":"0x1"}`,
			expectedError: "missing required field 'authorizationList'",
		},
		{
			name: "Valid legacy",
			json: `{"type":"0x0","nonce":"0x1","gas":"0x5208","gasPrice":"0x64","value":"0x1","input":"0x","to":"0x095e7baea6a6c7c4c2dfeb977efac326af552d87","v":"0x1b","r":"0x1","s":"0x1"}`,
		},
		{
			name: "Unknown type falls back to legacy",
			json: `{"type":"0x7f","nonce":"0x1","gas":"0x5208","gasPrice":"0x64","value":"0x1","input":"0x","to":"0x095e7baea6a6c7c4c2dfeb977efac326af552d87","v":"0x1b","r":"0x1","s":"0x1"}`,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var parsedTx = &Transaction{}
			err := json.Unmarshal([]byte(test.json), &parsedTx)
			if test.expectedError == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, test.expectedError)
			}
		})
	}
}
