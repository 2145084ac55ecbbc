package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/params"
)

// BeaconRootsAddress is the EIP-4788 beacon roots contract predeploy.
var BeaconRootsAddress = common.HexToAddress("0x000F3df6D732807Ef1319fB7B8bB8522d0Beac02")

// BeaconRootsCode is the deployed bytecode of the EIP-4788 contract,
// injected as an irregular state override when forking a pre-Cancun remote
// into a Cancun+ local chain.
var BeaconRootsCode = hexutil.MustDecode("0x3373fffffffffffffffffffffffffffffffffffffffe14604d57602036146024575f5ffd5b5f35801560495762001fff810690815414603c575f5ffd5b62001fff01545f5260205ff35b5f5ffd5b62001fff42064281555f359062001fff015500")

// ForkConfig parameterizes a forked blockchain.
type ForkConfig struct {
	// ForkBlockNumber pins the fork point; nil selects the recommended safe
	// block below the remote head.
	ForkBlockNumber *uint64

	// ChainIDOverride replaces the remote chain id for locally mined blocks.
	ChainIDOverride *big.Int

	// HardforkActivationsOverride takes precedence over the built-in
	// chain-id table, keyed by chain id.
	HardforkActivationsOverride map[int64]params.Activations
}

// ForkedBlockchain merges a local chain of blocks numbered above the fork
// point with a remote chain serving everything at or below it.
type ForkedBlockchain struct {
	local  *LocalBlockchain
	remote *RemoteBlockchain

	forkBlockNumber uint64
	chainID         *big.Int
	remoteChainID   *big.Int
	remoteHardforks params.Activations
	localHardfork   params.Hardfork
}

// NewForkedBlockchain pins the fork point, derives the remote hardfork
// schedule and prepares the local overlay chain. When the local hardfork is
// Cancun+ but the remote is not, the beacon roots predeploy is registered
// in irregularState at the fork block.
func NewForkedBlockchain(client RemoteClient, config *ForkConfig, localHardfork params.Hardfork, irregularState *state.IrregularState) (*ForkedBlockchain, error) {
	remoteChainID, err := client.ChainID()
	if err != nil {
		return nil, NewRpcClientCreationError(err)
	}
	latest, err := client.BlockNumber()
	if err != nil {
		return nil, NewRpcClientCreationError(err)
	}

	var forkBlockNumber uint64
	if config != nil && config.ForkBlockNumber != nil {
		forkBlockNumber = *config.ForkBlockNumber
		if forkBlockNumber > latest {
			return nil, NewInvalidBlockNumberError(forkBlockNumber, latest)
		}
		if safe := params.LargestSafeBlockNumber(remoteChainID, latest); latest >= params.SafeBlockDepth(remoteChainID) && forkBlockNumber > safe {
			confirmations := latest - forkBlockNumber + 1
			required := params.SafeBlockDepth(remoteChainID) + 1
			log.Warn("You are forking from a block that has fewer confirmations than the safe depth; the cache might become invalid if the chain reorgs",
				"forkBlock", forkBlockNumber, "confirmations", confirmations, "required", required)
		}
	} else {
		forkBlockNumber = params.RecommendedForkBlockNumber(remoteChainID, latest)
	}

	var activations params.Activations
	if config != nil && config.HardforkActivationsOverride != nil {
		activations = config.HardforkActivationsOverride[remoteChainID.Int64()]
	}
	if activations == nil {
		activations = params.ChainHardforkActivations(remoteChainID)
	}
	if activations == nil {
		return nil, NewInvalidHardforkError(forkBlockNumber, params.ChainName(remoteChainID), params.Frontier)
	}
	remoteHardfork := activations.HardforkAt(forkBlockNumber)
	if remoteHardfork < params.SpuriousDragon {
		return nil, NewInvalidHardforkError(forkBlockNumber, params.ChainName(remoteChainID), remoteHardfork)
	}

	chainID := remoteChainID
	if config != nil && config.ChainIDOverride != nil {
		chainID = config.ChainIDOverride
	}

	if localHardfork >= params.Cancun && remoteHardfork < params.Cancun && irregularState != nil {
		// Make the pre-fork state consistent with the local hardfork by
		// injecting the beacon roots contract at the fork block.
		diff := state.NewStateDiff()
		diff.SetAccount(BeaconRootsAddress, beaconRootsAccount())
		stateRoot, err := client.StateRootAt(forkBlockNumber)
		if err != nil {
			return nil, NewRpcClientCreationError(err)
		}
		irregularState.SetStateOverride(forkBlockNumber, &state.StateOverride{
			Diff:      diff,
			StateRoot: stateRoot,
		})
		log.Debug("Injected beacon roots predeploy at fork block", "block", forkBlockNumber)
	}

	return &ForkedBlockchain{
		local:           newEmptyLocalBlockchain(chainID, localHardfork, forkBlockNumber),
		remote:          NewRemoteBlockchain(client),
		forkBlockNumber: forkBlockNumber,
		chainID:         new(big.Int).Set(chainID),
		remoteChainID:   new(big.Int).Set(remoteChainID),
		remoteHardforks: activations,
		localHardfork:   localHardfork,
	}, nil
}

// ForkBlockNumber returns the pinned fork point.
func (bc *ForkedBlockchain) ForkBlockNumber() uint64 { return bc.forkBlockNumber }

// RemoteChainID returns the chain id reported by the remote node.
func (bc *ForkedBlockchain) RemoteChainID() *big.Int { return new(big.Int).Set(bc.remoteChainID) }

func (bc *ForkedBlockchain) ChainID() *big.Int { return new(big.Int).Set(bc.chainID) }

// ChainIDAt returns the remote chain id for remote blocks and the (possibly
// overridden) local chain id above the fork point.
func (bc *ForkedBlockchain) ChainIDAt(blockNumber uint64) (*big.Int, error) {
	if blockNumber > bc.LastBlockNumber() {
		return nil, ErrUnknownBlockNumber
	}
	if blockNumber <= bc.forkBlockNumber {
		return bc.RemoteChainID(), nil
	}
	return bc.ChainID(), nil
}

func (bc *ForkedBlockchain) Hardfork() params.Hardfork { return bc.localHardfork }

func (bc *ForkedBlockchain) HardforkAt(blockNumber uint64) (params.Hardfork, error) {
	if blockNumber > bc.LastBlockNumber() {
		return 0, ErrUnknownBlockNumber
	}
	if blockNumber <= bc.forkBlockNumber {
		return bc.remoteHardforks.HardforkAt(blockNumber), nil
	}
	return bc.localHardfork, nil
}

func (bc *ForkedBlockchain) LastBlockNumber() uint64 { return bc.local.LastBlockNumber() }

func (bc *ForkedBlockchain) LastBlock() (*types.Block, error) {
	return bc.BlockByNumber(bc.LastBlockNumber())
}

func (bc *ForkedBlockchain) BlockByNumber(number uint64) (*types.Block, error) {
	if number <= bc.forkBlockNumber {
		return bc.remote.BlockByNumber(number)
	}
	return bc.local.BlockByNumber(number)
}

// BlockByHash tries the local index first, then descends to the remote.
func (bc *ForkedBlockchain) BlockByHash(hash common.Hash) (*types.Block, error) {
	if block, err := bc.local.BlockByHash(hash); err == nil {
		return block, nil
	}
	return bc.remote.BlockByHash(hash)
}

func (bc *ForkedBlockchain) BlockByTransactionHash(txHash common.Hash) (*types.Block, error) {
	if block, err := bc.local.BlockByTransactionHash(txHash); err == nil {
		return block, nil
	}
	return bc.remote.BlockByTransactionHash(txHash)
}

func (bc *ForkedBlockchain) ReceiptByTransactionHash(txHash common.Hash) (*types.Receipt, error) {
	receipt, err := bc.local.ReceiptByTransactionHash(txHash)
	if err == nil && receipt != nil {
		return receipt, nil
	}
	return bc.remote.ReceiptByTransactionHash(txHash)
}

func (bc *ForkedBlockchain) TotalDifficultyByHash(hash common.Hash) (*big.Int, error) {
	if td, err := bc.local.TotalDifficultyByHash(hash); err == nil {
		return td, nil
	}
	block, err := bc.remote.BlockByHash(hash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrUnknownBlockHash
	}
	// Remote total difficulty is not tracked; post-merge chains pin it.
	return new(big.Int), nil
}

// Logs splits the queried range at the fork point, querying the remote and
// the local chain separately and concatenating in block order.
func (bc *ForkedBlockchain) Logs(filter LogFilter) ([]*types.Log, error) {
	if filter.FromBlock > filter.ToBlock {
		return nil, nil
	}
	var result []*types.Log
	if filter.FromBlock <= bc.forkBlockNumber {
		remoteFilter := filter
		if remoteFilter.ToBlock > bc.forkBlockNumber {
			remoteFilter.ToBlock = bc.forkBlockNumber
		}
		remoteLogs, err := bc.remote.Logs(remoteFilter)
		if err != nil {
			return nil, err
		}
		result = append(result, remoteLogs...)
		if filter.ToBlock <= bc.forkBlockNumber {
			return result, nil
		}
		filter.FromBlock = bc.forkBlockNumber + 1
	}
	localLogs, err := bc.local.Logs(filter)
	if err != nil {
		return nil, err
	}
	return append(result, localLogs...), nil
}

// StateAtBlockNumber constructs a ForkState rooted at the remote state for
// min(blockNumber, forkBlock), replays the local diffs up to blockNumber and
// overlays the irregular overrides, finally re-declaring the override's
// state root when one applies.
func (bc *ForkedBlockchain) StateAtBlockNumber(blockNumber uint64, overrides *state.IrregularState) (state.StateDB, error) {
	if blockNumber > bc.LastBlockNumber() {
		return nil, ErrUnknownBlockNumber
	}
	remoteNumber := blockNumber
	if remoteNumber > bc.forkBlockNumber {
		remoteNumber = bc.forkBlockNumber
	}
	stateRoot, err := bc.remote.Client().StateRootAt(remoteNumber)
	if err != nil {
		return nil, err
	}
	st := state.NewForkState(bc.remote.Client(), remoteNumber, stateRoot)

	if blockNumber > bc.forkBlockNumber {
		for _, diff := range bc.local.StateDiffsInRange(bc.forkBlockNumber+1, blockNumber) {
			if err := st.ApplyDiff(diff); err != nil {
				return nil, err
			}
		}
		if block, err := bc.local.BlockByNumber(blockNumber); err == nil {
			st.SetStateRoot(block.Root())
		}
	}
	if overrides != nil {
		for _, override := range overrides.OverridesUpTo(0, blockNumber) {
			if err := st.ApplyDiff(override.Diff); err != nil {
				return nil, err
			}
			st.SetStateRoot(override.StateRoot)
		}
	}
	return st, nil
}

func (bc *ForkedBlockchain) InsertBlock(block *types.Block, receipts []*types.Receipt, diff *state.StateDiff) error {
	last, err := bc.LastBlock()
	if err != nil {
		return err
	}
	if block.NumberU64() != last.NumberU64()+1 {
		return ErrInsertInvalidNumber
	}
	if block.ParentHash() != last.Hash() {
		return ErrInsertMissingParent
	}
	return bc.local.InsertBlock(block, receipts, diff)
}

func (bc *ForkedBlockchain) ReserveBlocks(count uint64, interval uint64) error {
	if bc.local.LastBlockNumber() == bc.forkBlockNumber && len(bc.local.entries) == 0 {
		// Seed the local reservation chain with the fork block as parent.
		forkBlock, err := bc.remote.BlockByNumber(bc.forkBlockNumber)
		if err != nil {
			return err
		}
		td := new(big.Int)
		bc.local.reservations = append(bc.local.reservations, &reservation{
			first:          bc.forkBlockNumber + 1,
			last:           bc.forkBlockNumber + count,
			interval:       interval,
			previousHeader: forkBlock.Header(),
			previousTd:     td,
		})
		bc.local.lastNumber = bc.forkBlockNumber + count
		return nil
	}
	return bc.local.ReserveBlocks(count, interval)
}

// RevertToBlock refuses to delete remote blocks, clears all local blocks
// when targeting the fork point exactly, and truncates locally otherwise.
func (bc *ForkedBlockchain) RevertToBlock(blockNumber uint64) error {
	switch {
	case blockNumber < bc.forkBlockNumber:
		return ErrCannotDeleteRemote
	case blockNumber == bc.forkBlockNumber:
		bc.local = newEmptyLocalBlockchain(bc.chainID, bc.localHardfork, bc.forkBlockNumber)
		return nil
	default:
		return bc.local.RevertToBlock(blockNumber)
	}
}

func beaconRootsAccount() *state.Account {
	account := state.NewAccount(new(uint256.Int))
	account.Code = BeaconRootsCode
	account.CodeHash = crypto.Keccak256Hash(BeaconRootsCode)
	account.Nonce = 1
	return account
}
