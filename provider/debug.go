package provider

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ethforge/devchain/core/types"
)

// traceResult is the opaque interpreter trace of one execution, passed
// through to the caller unmodified.
type traceResult struct {
	Gas         hexutil.Uint64  `json:"gas"`
	Failed      bool            `json:"failed"`
	ReturnValue string          `json:"returnValue"`
	StructLogs  json.RawMessage `json:"structLogs"`
}

// debugTraceTransaction re-executes a mined transaction inside its original
// block context and returns the interpreter's trace.
func (d *providerData) debugTraceTransaction(raw []json.RawMessage) (*traceResult, error) {
	var hash common.Hash
	if err := decodeParam(raw, 0, &hash); err != nil {
		return nil, err
	}
	block, err := d.chain.BlockByTransactionHash(hash)
	if err != nil || block == nil {
		return nil, invalidInput("Unable to find a block containing transaction %s", hash.Hex())
	}
	// Replay the block's prefix on the pre-state so the traced transaction
	// observes the same world it executed in originally.
	st, err := d.chain.StateAtBlockNumber(block.NumberU64()-1, d.irregular)
	if err != nil {
		return nil, err
	}
	st = st.Copy()
	env := blockEnvFromHeader(block.Header())
	signer := d.signer()
	for _, tx := range block.Transactions() {
		sender, err := types.Sender(signer, tx)
		if err != nil {
			return nil, err
		}
		result, diff, err := d.interp.DryRun(st, d.vmConfig(), tx, sender, env, nil)
		if err != nil {
			return nil, err
		}
		if tx.Hash() == hash {
			return newTraceResult(result.GasUsed, !result.Success, result.ReturnData, result.Trace), nil
		}
		if err := st.ApplyDiff(diff); err != nil {
			return nil, err
		}
	}
	return nil, invalidInput("Unable to find transaction %s in block", hash.Hex())
}

// debugTraceCall executes a call against a block's state and returns the
// interpreter's trace.
func (d *providerData) debugTraceCall(raw []json.RawMessage) (*traceResult, error) {
	request := new(TransactionRequest)
	if err := decodeParam(raw, 0, request); err != nil {
		return nil, err
	}
	spec, err := optionalBlockSpec(raw, 1)
	if err != nil {
		return nil, err
	}
	if err := validateTransactionRequest(request, d.config.Hardfork, d.config.AllowUnlimitedContractSize); err != nil {
		return nil, err
	}
	result, err := d.dryRunRequest(request, spec)
	if err != nil {
		return nil, err
	}
	return newTraceResult(result.GasUsed, !result.Success, result.ReturnData, result.Trace), nil
}

func newTraceResult(gasUsed uint64, failed bool, returnData, trace []byte) *traceResult {
	result := &traceResult{
		Gas:         hexutil.Uint64(gasUsed),
		Failed:      failed,
		ReturnValue: common.Bytes2Hex(returnData),
		StructLogs:  json.RawMessage("[]"),
	}
	if len(trace) > 0 {
		result.StructLogs = trace
	}
	return result
}

func (d *providerData) web3Sha3(raw []json.RawMessage) (common.Hash, error) {
	var input hexutil.Bytes
	if err := decodeParam(raw, 0, &input); err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(input), nil
}
