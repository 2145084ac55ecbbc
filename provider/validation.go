package provider

import (
	"github.com/ethforge/devchain/params"
)

// validateTransactionRequest checks a transaction request against the
// active hardfork before it is turned into a signed transaction. The checks
// mirror the consensus activation schedule; each failure carries a stable
// message naming the offending parameter.
func validateTransactionRequest(request *TransactionRequest, hardfork params.Hardfork, allowUnlimitedInitcode bool) error {
	hasEip1559Fields := request.MaxFeePerGas != nil || request.MaxPriorityFeePerGas != nil
	hasBlobFields := len(request.Blobs) > 0 || len(request.BlobHashes) > 0 || request.MaxFeePerBlobGas != nil
	hasAuthorizations := request.AuthorizationList != nil

	if request.GasPrice != nil {
		if hasEip1559Fields {
			return invalidInput("Cannot send both gasPrice and maxFeePerGas/maxPriorityFeePerGas parameters")
		}
		if hasBlobFields {
			return invalidInput("Cannot send both gasPrice and blob parameters")
		}
		if hasAuthorizations {
			return invalidInput("Cannot send both gasPrice and authorizationList parameters")
		}
	}
	if request.AccessList != nil && hardfork < params.Berlin {
		return errUnmetHardfork("Access list parameters are only supported since the Berlin hardfork", hardfork)
	}
	if hasEip1559Fields && hardfork < params.London {
		return errUnmetHardfork("EIP-1559 style fees are only supported since the London hardfork", hardfork)
	}
	if hasBlobFields {
		if hardfork < params.Cancun {
			return errUnmetHardfork("Blob transactions are only supported since the Cancun hardfork", hardfork)
		}
		if request.To == nil {
			return invalidInput("Blob transactions cannot create contracts: missing 'to' parameter")
		}
	}
	if hasAuthorizations {
		if hardfork < params.Prague {
			return errUnmetHardfork("EIP-7702 authorization lists are only supported since the Prague hardfork", hardfork)
		}
		if request.To == nil {
			return invalidInput("EIP-7702 transactions cannot create contracts: missing 'to' parameter")
		}
		if len(request.AuthorizationList) == 0 {
			return invalidInput("EIP-7702 transactions must have a non-empty authorizationList")
		}
	}
	if request.MaxFeePerGas != nil && request.MaxPriorityFeePerGas != nil {
		if request.MaxPriorityFeePerGas.ToInt().Cmp(request.MaxFeePerGas.ToInt()) > 0 {
			return invalidInput("maxPriorityFeePerGas (%v) is bigger than maxFeePerGas (%v)",
				request.MaxPriorityFeePerGas.ToInt(), request.MaxFeePerGas.ToInt())
		}
	}
	// EIP-3860: bound the initcode of creation transactions.
	if hardfork >= params.Shanghai && request.To == nil && !allowUnlimitedInitcode {
		if len(request.Payload()) > params.MaxInitCodeSize {
			return invalidInput("Transaction data of a create transaction is %d bytes, which exceeds the EIP-3860 limit of %d bytes", len(request.Payload()), params.MaxInitCodeSize)
		}
	}
	return nil
}

// validateBlockSpec rejects the post-merge block tags on pre-merge
// hardforks.
func validateBlockSpec(spec *BlockSpec, hardfork params.Hardfork) error {
	if spec == nil {
		return nil
	}
	if (spec.Tag == "safe" || spec.Tag == "finalized") && !hardfork.IsPostMerge() {
		return errInvalidBlockTag(spec.Tag)
	}
	return nil
}
