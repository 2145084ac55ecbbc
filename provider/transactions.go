package provider

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/holiman/uint256"

	"github.com/ethforge/devchain/consensus/misc/eip4844"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/core/vm"
	"github.com/ethforge/devchain/params"
)

// defaultPriorityFee is the suggested tip when the caller does not provide
// one.
var defaultPriorityFee = big.NewInt(1_000_000_000)

// nextNonce picks the nonce of a new transaction: the account nonce, unless
// the sender already has pending transactions queued.
func (d *providerData) nextNonce(sender common.Address) (uint64, error) {
	if last, ok := d.pool.LastPendingNonce(sender); ok {
		return last + 1, nil
	}
	return d.st.GetNonce(sender)
}

// suggestedFees derives the (maxFee, maxPriorityFee) defaults from the
// latest block's base fee.
func (d *providerData) suggestedFees() (*big.Int, *big.Int) {
	tip := new(big.Int).Set(defaultPriorityFee)
	head, err := d.chain.LastBlock()
	if err != nil || head.BaseFee() == nil {
		return tip, tip
	}
	maxFee := new(big.Int).Mul(head.BaseFee(), big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return maxFee, tip
}

// gasPriceSuggestion is the legacy-style gas price suggestion: the latest
// block's base fee plus a default tip.
func (d *providerData) gasPriceSuggestion() *big.Int {
	maxFee, tip := d.suggestedFees()
	if maxFee.Cmp(tip) == 0 {
		return tip
	}
	head, _ := d.chain.LastBlock()
	return new(big.Int).Add(head.BaseFee(), tip)
}

// buildTxData converts a validated request into typed transaction data. The
// type is implied by the populated fields; without type-specific fields it
// is an EIP-1559 transaction from London on and a legacy one before.
func (d *providerData) buildTxData(request *TransactionRequest, sender common.Address) (types.TxData, error) {
	nonce, err := d.requestNonce(request, sender)
	if err != nil {
		return nil, err
	}
	gas := d.blockGasLimit
	if request.Gas != nil {
		gas = uint64(*request.Gas)
	}
	value := new(big.Int)
	if request.Value != nil {
		value = request.Value.ToInt()
	}
	payload := request.Payload()

	var accessList types.AccessList
	if request.AccessList != nil {
		accessList = *request.AccessList
	}

	switch {
	case request.AuthorizationList != nil:
		if request.To == nil {
			return nil, invalidInput("EIP-7702 transactions cannot create contracts: missing 'to' parameter")
		}
		maxFee, tip := d.requestDynamicFees(request)
		chainID, _ := uint256.FromBig(d.config.ChainID)
		feeCap, _ := uint256.FromBig(maxFee)
		tipCap, _ := uint256.FromBig(tip)
		amount, overflow := uint256.FromBig(value)
		if overflow {
			return nil, invalidParams("value overflows uint256")
		}
		return &types.SetCodeTx{
			ChainID:    chainID,
			Nonce:      nonce,
			GasTipCap:  tipCap,
			GasFeeCap:  feeCap,
			Gas:        gas,
			To:         *request.To,
			Value:      amount,
			Data:       payload,
			AccessList: accessList,
			AuthList:   request.AuthorizationList,
		}, nil

	case len(request.Blobs) > 0 || len(request.BlobHashes) > 0:
		if request.To == nil {
			return nil, invalidInput("Blob transactions cannot create contracts: missing 'to' parameter")
		}
		maxFee, tip := d.requestDynamicFees(request)
		blobFee := defaultPriorityFee
		if request.MaxFeePerBlobGas != nil {
			blobFee = request.MaxFeePerBlobGas.ToInt()
		}
		sidecar, hashes, err := buildSidecar(request)
		if err != nil {
			return nil, err
		}
		chainID, _ := uint256.FromBig(d.config.ChainID)
		feeCap, _ := uint256.FromBig(maxFee)
		tipCap, _ := uint256.FromBig(tip)
		blobFeeCap, _ := uint256.FromBig(blobFee)
		amount, overflow := uint256.FromBig(value)
		if overflow {
			return nil, invalidParams("value overflows uint256")
		}
		return &types.BlobTx{
			ChainID:    chainID,
			Nonce:      nonce,
			GasTipCap:  tipCap,
			GasFeeCap:  feeCap,
			Gas:        gas,
			To:         *request.To,
			Value:      amount,
			Data:       payload,
			AccessList: accessList,
			BlobFeeCap: blobFeeCap,
			BlobHashes: hashes,
			Sidecar:    sidecar,
		}, nil

	case request.MaxFeePerGas != nil || request.MaxPriorityFeePerGas != nil ||
		(d.config.Hardfork >= params.London && request.GasPrice == nil):
		maxFee, tip := d.requestDynamicFees(request)
		return &types.DynamicFeeTx{
			ChainID:    d.config.ChainID,
			Nonce:      nonce,
			GasTipCap:  tip,
			GasFeeCap:  maxFee,
			Gas:        gas,
			To:         request.To,
			Value:      value,
			Data:       payload,
			AccessList: accessList,
		}, nil

	case request.AccessList != nil:
		gasPrice := d.requestGasPrice(request)
		return &types.AccessListTx{
			ChainID:    d.config.ChainID,
			Nonce:      nonce,
			GasPrice:   gasPrice,
			Gas:        gas,
			To:         request.To,
			Value:      value,
			Data:       payload,
			AccessList: accessList,
		}, nil

	default:
		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: d.requestGasPrice(request),
			Gas:      gas,
			To:       request.To,
			Value:    value,
			Data:     payload,
		}, nil
	}
}

func (d *providerData) requestNonce(request *TransactionRequest, sender common.Address) (uint64, error) {
	if request.Nonce != nil {
		return uint64(*request.Nonce), nil
	}
	return d.nextNonce(sender)
}

func (d *providerData) requestGasPrice(request *TransactionRequest) *big.Int {
	if request.GasPrice != nil {
		return request.GasPrice.ToInt()
	}
	return d.gasPriceSuggestion()
}

func (d *providerData) requestDynamicFees(request *TransactionRequest) (maxFee, tip *big.Int) {
	switch {
	case request.MaxFeePerGas != nil && request.MaxPriorityFeePerGas != nil:
		return request.MaxFeePerGas.ToInt(), request.MaxPriorityFeePerGas.ToInt()
	case request.MaxFeePerGas != nil:
		tip = new(big.Int).Set(defaultPriorityFee)
		if tip.Cmp(request.MaxFeePerGas.ToInt()) > 0 {
			tip = request.MaxFeePerGas.ToInt()
		}
		return request.MaxFeePerGas.ToInt(), tip
	case request.MaxPriorityFeePerGas != nil:
		maxFee, _ = d.suggestedFees()
		tip = request.MaxPriorityFeePerGas.ToInt()
		if maxFee.Cmp(tip) < 0 {
			maxFee = new(big.Int).Set(tip)
		}
		return maxFee, tip
	default:
		return d.suggestedFees()
	}
}

// buildSidecar assembles the pooled blob sidecar from raw blobs, deriving
// commitments, proofs and versioned hashes. When only hashes are given the
// transaction travels without a sidecar.
func buildSidecar(request *TransactionRequest) (*types.BlobTxSidecar, []common.Hash, error) {
	if len(request.Blobs) == 0 {
		return nil, request.BlobHashes, nil
	}
	sidecar := &types.BlobTxSidecar{}
	for i, raw := range request.Blobs {
		if len(raw) != params.BlobTxBytesPerFieldElement*params.BlobTxFieldElementsPerBlob {
			return nil, nil, invalidParams("blob %d has invalid length %d", i, len(raw))
		}
		var blob kzg4844.Blob
		copy(blob[:], raw)
		commitment, err := kzg4844.BlobToCommitment(&blob)
		if err != nil {
			return nil, nil, invalidParams("blob %d is invalid: %v", i, err)
		}
		proof, err := kzg4844.ComputeBlobProof(&blob, commitment)
		if err != nil {
			return nil, nil, invalidParams("blob %d proof computation failed: %v", i, err)
		}
		sidecar.Blobs = append(sidecar.Blobs, blob)
		sidecar.Commitments = append(sidecar.Commitments, commitment)
		sidecar.Proofs = append(sidecar.Proofs, proof)
	}
	hashes := sidecar.BlobHashes()
	if len(request.BlobHashes) > 0 {
		for i, hash := range request.BlobHashes {
			if i >= len(hashes) || hashes[i] != hash {
				return nil, nil, invalidParams("blobVersionedHashes do not match the provided blobs")
			}
		}
	}
	return sidecar, hashes, nil
}

// signRequest turns a validated request into a signed transaction using a
// local key, or wraps the asserted sender for impersonated accounts.
func (d *providerData) signRequest(request *TransactionRequest) (*types.Transaction, error) {
	if request.From == nil {
		return nil, invalidParams("missing 'from' parameter")
	}
	sender := *request.From
	if request.ChainID != nil && request.ChainID.ToInt().Cmp(d.config.ChainID) != 0 {
		return nil, errInvalidChainID(d.config.ChainID, request.ChainID.ToInt())
	}
	txData, err := d.buildTxData(request, sender)
	if err != nil {
		return nil, err
	}
	if key, ok := d.accounts[sender]; ok {
		return types.SignNewTx(key, d.signer(), txData)
	}
	if d.impersonated[sender] {
		return types.NewImpersonatedTransaction(txData, sender), nil
	}
	return nil, errUnknownAddress(sender)
}

// sendSigned admits the transaction and, under automine, mines blocks until
// the pool has no executable transactions left. A reverted automined
// transaction surfaces as an error carrying the revert data; the block is
// kept.
func (d *providerData) sendSigned(tx *types.Transaction) (common.Hash, error) {
	if err := d.pool.AddTransaction(d.st, tx); err != nil {
		return common.Hash{}, err
	}
	hash := tx.Hash()
	d.notifyPendingTransaction(tx)
	if !d.automine {
		return hash, nil
	}
	for d.pool.HasPendingTransactions() {
		result, err := d.mineAndCommit()
		if err != nil {
			return hash, err
		}
		for i, receipt := range result.Build.Receipts {
			if receipt.TxHash != hash || !receipt.Failed() {
				continue
			}
			execResult := result.Build.Results[i]
			message := "Transaction reverted without a reason string"
			if execResult.Reverted() {
				message = fmt.Sprintf("reverted with data %s", hexutil.Encode(execResult.ReturnData))
			}
			return hash, errTransactionFailed(message, hexutil.Encode(execResult.ReturnData))
		}
	}
	return hash, nil
}

// dryRunRequest executes a request against the state at the given block
// without mining, used by eth_call, eth_estimateGas and debug_traceCall.
func (d *providerData) dryRunRequest(request *TransactionRequest, spec *BlockSpec) (*vm.ExecutionResult, error) {
	st, err := d.stateAtSpec(spec)
	if err != nil {
		return nil, err
	}
	var sender common.Address
	if request.From != nil {
		sender = *request.From
	}
	txData, err := d.buildTxData(request, sender)
	if err != nil {
		return nil, err
	}
	tx := types.NewImpersonatedTransaction(txData, sender)

	head, err := d.blockBySpec(spec)
	if err != nil {
		return nil, err
	}
	env := vm.BlockEnv{
		Number:     new(big.Int).Add(head.Number(), common.Big1),
		Coinbase:   d.coinbase,
		Time:       head.Time() + 1,
		GasLimit:   d.blockGasLimit,
		BaseFee:    head.BaseFee(),
		PrevRandao: d.prevRandao,
		Difficulty: head.Difficulty(),
	}
	if excess := head.ExcessBlobGas(); excess != nil {
		env.BlobBaseFee = eip4844.CalcBlobFee(params.BlobScheduleFor(d.config.Hardfork), *excess)
	}
	result, _, err := d.interp.DryRun(st.Copy(), d.vmConfig(), tx, sender, env, nil)
	return result, err
}

// estimateGas binary-searches the smallest gas limit the request succeeds
// with.
func (d *providerData) estimateGas(request *TransactionRequest, spec *BlockSpec) (uint64, error) {
	hi := d.blockGasLimit
	if request.Gas != nil && uint64(*request.Gas) < hi {
		hi = uint64(*request.Gas)
	}
	lo := params.TxGas - 1

	probe := func(gas uint64) (*vm.ExecutionResult, error) {
		probeReq := *request
		probeGas := hexutil.Uint64(gas)
		probeReq.Gas = &probeGas
		return d.dryRunRequest(&probeReq, spec)
	}

	// The request must succeed at the upper bound at all.
	result, err := probe(hi)
	if err != nil {
		return 0, err
	}
	if !result.Success {
		message := "Transaction reverted without a reason string"
		if result.Reverted() {
			message = fmt.Sprintf("reverted with data %s", hexutil.Encode(result.ReturnData))
		}
		return 0, errTransactionFailed(message, hexutil.Encode(result.ReturnData))
	}

	for lo+1 < hi {
		mid := (lo + hi) / 2
		result, err := probe(mid)
		if err != nil || !result.Success {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}
