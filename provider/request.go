package provider

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethforge/devchain/core/types"
)

// Request is one JSON-RPC invocation.
type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// Response is the reply to one Request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RpcError       `json:"error,omitempty"`
}

// TransactionRequest is the caller-supplied, unsigned transaction shape of
// eth_sendTransaction, eth_call and eth_estimateGas. The transaction type is
// implied by which fields are present.
type TransactionRequest struct {
	From                 *common.Address               `json:"from"`
	To                   *common.Address               `json:"to"`
	Gas                  *hexutil.Uint64               `json:"gas"`
	GasPrice             *hexutil.Big                  `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big                  `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big                  `json:"maxPriorityFeePerGas"`
	MaxFeePerBlobGas     *hexutil.Big                  `json:"maxFeePerBlobGas"`
	Value                *hexutil.Big                  `json:"value"`
	Nonce                *hexutil.Uint64               `json:"nonce"`
	Data                 *hexutil.Bytes                `json:"data"`
	Input                *hexutil.Bytes                `json:"input"`
	AccessList           *types.AccessList             `json:"accessList"`
	BlobHashes           []common.Hash                 `json:"blobVersionedHashes"`
	Blobs                []hexutil.Bytes               `json:"blobs"`
	AuthorizationList    []types.SetCodeAuthorization  `json:"authorizationList"`
	ChainID              *hexutil.Big                  `json:"chainId"`
}

// Payload returns the calldata, accepting both the 'data' and 'input'
// aliases.
func (r *TransactionRequest) Payload() []byte {
	if r.Input != nil {
		return *r.Input
	}
	if r.Data != nil {
		return *r.Data
	}
	return nil
}

// BlockSpec identifies a block by tag, number or hash.
type BlockSpec struct {
	Tag    string       // "latest", "earliest", "pending", "safe", "finalized"
	Number *uint64      // concrete number
	Hash   *common.Hash // addressed by hash
}

// UnmarshalJSON accepts a tag string, a hex quantity, or the EIP-1898
// object form.
func (s *BlockSpec) UnmarshalJSON(input []byte) error {
	var raw string
	if err := json.Unmarshal(input, &raw); err == nil {
		switch raw {
		case "latest", "earliest", "pending", "safe", "finalized":
			s.Tag = raw
			return nil
		default:
			value, err := hexutil.DecodeUint64(raw)
			if err != nil {
				return fmt.Errorf("invalid block spec %q", raw)
			}
			s.Number = &value
			return nil
		}
	}
	var obj struct {
		BlockNumber *hexutil.Uint64 `json:"blockNumber"`
		BlockHash   *common.Hash    `json:"blockHash"`
	}
	if err := json.Unmarshal(input, &obj); err != nil {
		return err
	}
	switch {
	case obj.BlockHash != nil:
		s.Hash = obj.BlockHash
	case obj.BlockNumber != nil:
		value := uint64(*obj.BlockNumber)
		s.Number = &value
	default:
		return fmt.Errorf("invalid block spec: missing blockNumber or blockHash")
	}
	return nil
}

// latestBlockSpec is the default when no spec is supplied.
func latestBlockSpec() *BlockSpec {
	return &BlockSpec{Tag: "latest"}
}

// decodeParam unmarshals the i'th positional parameter into out.
func decodeParam(params []json.RawMessage, i int, out any) error {
	if i >= len(params) {
		return invalidParams("missing parameter %d", i)
	}
	if err := json.Unmarshal(params[i], out); err != nil {
		return invalidParams("invalid parameter %d: %v", i, err)
	}
	return nil
}

// optionalBlockSpec parses the i'th parameter as a block spec, defaulting to
// latest when absent.
func optionalBlockSpec(params []json.RawMessage, i int) (*BlockSpec, error) {
	if i >= len(params) {
		return latestBlockSpec(), nil
	}
	spec := new(BlockSpec)
	if err := json.Unmarshal(params[i], spec); err != nil {
		return nil, invalidParams("invalid block spec: %v", err)
	}
	return spec, nil
}
