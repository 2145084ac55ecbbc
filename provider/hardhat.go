package provider

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/ethforge/devchain/core"
	"github.com/ethforge/devchain/core/state"
)

// hardhatDropTransaction removes a pooled transaction. Dropping an already
// mined transaction is an error.
func (d *providerData) hardhatDropTransaction(raw []json.RawMessage) (bool, error) {
	var hash common.Hash
	if err := decodeParam(raw, 0, &hash); err != nil {
		return false, err
	}
	if d.pool.RemoveTransaction(hash) {
		return true, nil
	}
	if receipt, err := d.chain.ReceiptByTransactionHash(hash); err == nil && receipt != nil {
		return false, errInvalidDropTransactionHash(hash)
	}
	return false, nil
}

func (d *providerData) hardhatImpersonateAccount(raw []json.RawMessage) (bool, error) {
	var addr common.Address
	if err := decodeParam(raw, 0, &addr); err != nil {
		return false, err
	}
	d.impersonated[addr] = true
	return true, nil
}

func (d *providerData) hardhatStopImpersonatingAccount(raw []json.RawMessage) (bool, error) {
	var addr common.Address
	if err := decodeParam(raw, 0, &addr); err != nil {
		return false, err
	}
	if !d.impersonated[addr] {
		return false, nil
	}
	delete(d.impersonated, addr)
	return true, nil
}

// hardhatMine mines a number of blocks at once, optionally spacing their
// timestamps. Once no pending transactions remain, the rest of the count is
// reserved as empty blocks that materialize lazily.
func (d *providerData) hardhatMine(raw []json.RawMessage) (bool, error) {
	count := uint64(1)
	interval := uint64(1)
	if len(raw) > 0 {
		var value hexutil.Uint64
		if err := decodeParam(raw, 0, &value); err != nil {
			return false, err
		}
		count = uint64(value)
	}
	if len(raw) > 1 {
		var value hexutil.Uint64
		if err := decodeParam(raw, 1, &value); err != nil {
			return false, err
		}
		interval = uint64(value)
	}
	if count == 0 {
		return true, nil
	}
	// Mine real blocks while there are pending transactions, then reserve
	// the rest of the gap.
	mined := uint64(0)
	for d.pool.HasPendingTransactions() && mined < count {
		if _, err := d.mineAndCommit(); err != nil {
			return false, err
		}
		mined++
	}
	if mined < count {
		if err := d.chain.ReserveBlocks(count-mined, interval); err != nil {
			return false, err
		}
		st, err := d.chain.StateAtBlockNumber(d.chain.LastBlockNumber(), d.irregular)
		if err != nil {
			return false, err
		}
		d.st = st
	}
	return true, nil
}

func (d *providerData) hardhatSetBalance(raw []json.RawMessage) (bool, error) {
	var (
		addr    common.Address
		balance hexutil.Big
	)
	if err := decodeParam(raw, 0, &addr); err != nil {
		return false, err
	}
	if err := decodeParam(raw, 1, &balance); err != nil {
		return false, err
	}
	value, overflow := uint256.FromBig((*big.Int)(&balance))
	if overflow {
		return false, invalidParams("balance overflows uint256")
	}
	err := d.modifyAccount(addr, func(st state.StateDB) error {
		return st.SetBalance(addr, value)
	})
	return err == nil, err
}

func (d *providerData) hardhatSetCode(raw []json.RawMessage) (bool, error) {
	var (
		addr common.Address
		code hexutil.Bytes
	)
	if err := decodeParam(raw, 0, &addr); err != nil {
		return false, err
	}
	if err := decodeParam(raw, 1, &code); err != nil {
		return false, err
	}
	err := d.modifyAccount(addr, func(st state.StateDB) error {
		return st.SetCode(addr, code)
	})
	return err == nil, err
}

func (d *providerData) hardhatSetCoinbase(raw []json.RawMessage) (bool, error) {
	var addr common.Address
	if err := decodeParam(raw, 0, &addr); err != nil {
		return false, err
	}
	d.coinbase = addr
	return true, nil
}

func (d *providerData) hardhatSetLoggingEnabled(raw []json.RawMessage) (bool, error) {
	var enabled bool
	if err := decodeParam(raw, 0, &enabled); err != nil {
		return false, err
	}
	d.loggingEnabled = enabled
	return true, nil
}

func (d *providerData) hardhatSetMinGasPrice(raw []json.RawMessage) (bool, error) {
	var price hexutil.Big
	if err := decodeParam(raw, 0, &price); err != nil {
		return false, err
	}
	d.minGasPrice = (*big.Int)(&price)
	return true, nil
}

func (d *providerData) hardhatSetNextBlockBaseFeePerGas(raw []json.RawMessage) (bool, error) {
	var baseFee hexutil.Big
	if err := decodeParam(raw, 0, &baseFee); err != nil {
		return false, err
	}
	d.nextBaseFee = (*big.Int)(&baseFee)
	return true, nil
}

func (d *providerData) hardhatSetNonce(raw []json.RawMessage) (bool, error) {
	var (
		addr  common.Address
		nonce hexutil.Uint64
	)
	if err := decodeParam(raw, 0, &addr); err != nil {
		return false, err
	}
	if err := decodeParam(raw, 1, &nonce); err != nil {
		return false, err
	}
	current, err := d.st.GetNonce(addr)
	if err != nil {
		return false, err
	}
	if uint64(nonce) < current {
		return false, invalidInput("New nonce (%d) must not be smaller than the existing nonce (%d)", nonce, current)
	}
	err = d.modifyAccount(addr, func(st state.StateDB) error {
		return st.SetNonce(addr, uint64(nonce))
	})
	return err == nil, err
}

func (d *providerData) hardhatSetPrevRandao(raw []json.RawMessage) (bool, error) {
	var value common.Hash
	if err := decodeParam(raw, 0, &value); err != nil {
		return false, err
	}
	d.prevRandao = value
	return true, nil
}

func (d *providerData) hardhatSetStorageAt(raw []json.RawMessage) (bool, error) {
	var (
		addr  common.Address
		slot  common.Hash
		value common.Hash
	)
	if err := decodeParam(raw, 0, &addr); err != nil {
		return false, err
	}
	if err := decodeParam(raw, 1, &slot); err != nil {
		return false, err
	}
	if err := decodeParam(raw, 2, &value); err != nil {
		return false, err
	}
	if err := d.st.SetStorage(addr, slot, value); err != nil {
		return false, err
	}
	head := d.chain.LastBlockNumber()
	override := d.irregular.StateOverrideAt(head)
	if override == nil {
		override = &state.StateOverride{Diff: state.NewStateDiff()}
		d.irregular.SetStateOverride(head, override)
	}
	override.Diff.SetStorage(addr, slot, value)
	if root, err := d.st.StateRoot(); err == nil {
		override.StateRoot = root
	}
	return true, nil
}

// hardhatMetadataResult mirrors hardhat_metadata.
type hardhatMetadataResult struct {
	ClientVersion        string       `json:"clientVersion"`
	ChainID              *hexutil.Big `json:"chainId"`
	InstanceID           common.Hash  `json:"instanceId"`
	LatestBlockNumber    hexutil.Uint64 `json:"latestBlockNumber"`
	LatestBlockHash      common.Hash  `json:"latestBlockHash"`
	ForkedNetwork        *forkedNetworkMetadata `json:"forkedNetwork,omitempty"`
}

type forkedNetworkMetadata struct {
	ChainID         *hexutil.Big   `json:"chainId"`
	ForkBlockNumber hexutil.Uint64 `json:"forkBlockNumber"`
	ForkBlockHash   common.Hash    `json:"forkBlockHash"`
}

func (d *providerData) hardhatMetadata() (*hardhatMetadataResult, error) {
	head, err := d.chain.LastBlock()
	if err != nil {
		return nil, err
	}
	result := &hardhatMetadataResult{
		ClientVersion:     ClientVersion,
		ChainID:           (*hexutil.Big)(d.chain.ChainID()),
		InstanceID:        d.instanceID,
		LatestBlockNumber: hexutil.Uint64(head.NumberU64()),
		LatestBlockHash:   head.Hash(),
	}
	if forked, ok := d.chain.(*core.ForkedBlockchain); ok {
		forkBlock, err := d.chain.BlockByNumber(forked.ForkBlockNumber())
		if err != nil {
			return nil, err
		}
		result.ForkedNetwork = &forkedNetworkMetadata{
			ChainID:         (*hexutil.Big)(forked.RemoteChainID()),
			ForkBlockNumber: hexutil.Uint64(forked.ForkBlockNumber()),
			ForkBlockHash:   forkBlock.Hash(),
		}
	}
	return result, nil
}
