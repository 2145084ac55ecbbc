package core

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/params"
)

// fakeRemote is an in-memory RemoteClient over a synthetic chain.
type fakeRemote struct {
	chainID *big.Int
	blocks  map[uint64]*types.Block
	byHash  map[common.Hash]*types.Block
	latest  uint64

	accounts map[common.Address]*state.Account
	storage  map[common.Address]map[common.Hash]common.Hash
}

func newFakeRemote(t *testing.T, chainID *big.Int, length uint64) *fakeRemote {
	t.Helper()
	remote := &fakeRemote{
		chainID:  chainID,
		blocks:   make(map[uint64]*types.Block),
		byHash:   make(map[common.Hash]*types.Block),
		latest:   length,
		accounts: make(map[common.Address]*state.Account),
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
	}
	parentHash := common.Hash{}
	for number := uint64(0); number <= length; number++ {
		header := &types.Header{
			ParentHash: parentHash,
			UncleHash:  types.EmptyUncleHash,
			Number:     new(big.Int).SetUint64(number),
			GasLimit:   30_000_000,
			Time:       1_000_000 + number*12,
			Difficulty: new(big.Int),
			BaseFee:    big.NewInt(params.InitialBaseFee),
			Root:       common.HexToHash("0xfeed"),
		}
		block := types.NewBlock(header, nil, nil)
		remote.blocks[number] = block
		remote.byHash[block.Hash()] = block
		parentHash = block.Hash()
	}
	return remote
}

func (f *fakeRemote) ChainID() (*big.Int, error)   { return new(big.Int).Set(f.chainID), nil }
func (f *fakeRemote) BlockNumber() (uint64, error) { return f.latest, nil }

func (f *fakeRemote) BlockByNumber(number uint64) (*types.Block, error) {
	return f.blocks[number], nil
}

func (f *fakeRemote) BlockByHash(hash common.Hash) (*types.Block, error) {
	return f.byHash[hash], nil
}

func (f *fakeRemote) BlockHashByTransaction(common.Hash) (common.Hash, error) {
	return common.Hash{}, nil
}

func (f *fakeRemote) TransactionReceipt(common.Hash) (*types.Receipt, error) {
	return nil, nil
}

func (f *fakeRemote) Logs(fromBlock, toBlock uint64, _ []common.Address, _ [][]common.Hash) ([]*types.Log, error) {
	var logs []*types.Log
	for number := fromBlock; number <= toBlock && number <= f.latest; number++ {
		logs = append(logs, &types.Log{BlockNumber: number})
	}
	return logs, nil
}

func (f *fakeRemote) StateRootAt(blockNumber uint64) (common.Hash, error) {
	block := f.blocks[blockNumber]
	if block == nil {
		return common.Hash{}, fmt.Errorf("no block %d", blockNumber)
	}
	return block.Root(), nil
}

func (f *fakeRemote) AccountAt(addr common.Address, _ uint64) (*state.Account, error) {
	if account, ok := f.accounts[addr]; ok {
		return account.Copy(), nil
	}
	return nil, nil
}

func (f *fakeRemote) StorageAt(addr common.Address, slot common.Hash, _ uint64) (common.Hash, error) {
	if slots, ok := f.storage[addr]; ok {
		return slots[slot], nil
	}
	return common.Hash{}, nil
}

func newForkedChain(t *testing.T, remote *fakeRemote, forkBlock *uint64) *ForkedBlockchain {
	t.Helper()
	chain, err := NewForkedBlockchain(remote, &ForkConfig{ForkBlockNumber: forkBlock}, params.Cancun, state.NewIrregularState())
	require.NoError(t, err)
	return chain
}

func uintPtr(v uint64) *uint64 { return &v }

func TestForkPointSelection(t *testing.T) {
	// Holesky activates the Merge at genesis, so every block is past
	// Spurious Dragon.
	remote := newFakeRemote(t, params.HoleskyChainId, 1000)

	// Explicit fork point beyond the head fails.
	_, err := NewForkedBlockchain(remote, &ForkConfig{ForkBlockNumber: uintPtr(2000)}, params.Cancun, nil)
	var creationErr *CreationError
	require.ErrorAs(t, err, &creationErr)
	require.Equal(t, uint64(2000), creationErr.ForkBlockNumber)
	require.Equal(t, uint64(1000), creationErr.LatestBlockNumber)

	// Without a requested block the recommended safe point is picked.
	chain := newForkedChain(t, remote, nil)
	require.Equal(t, params.RecommendedForkBlockNumber(params.HoleskyChainId, 1000), chain.ForkBlockNumber())

	// An explicit unsafe point is honored (with a warning).
	unsafe := newForkedChain(t, remote, uintPtr(999))
	require.Equal(t, uint64(999), unsafe.ForkBlockNumber())
}

func TestForkRejectsPreSpuriousDragon(t *testing.T) {
	remote := newFakeRemote(t, params.MainnetChainId, 100)
	_, err := NewForkedBlockchain(remote, &ForkConfig{ForkBlockNumber: uintPtr(100)}, params.Cancun, nil)
	var creationErr *CreationError
	require.ErrorAs(t, err, &creationErr)
	require.Contains(t, err.Error(), "Spurious Dragon")
}

func TestForkedReadDispatch(t *testing.T) {
	remote := newFakeRemote(t, params.MainnetChainId, 20_000_000)
	chain := newForkedChain(t, remote, uintPtr(19_999_000))

	// Reads at or below the fork point hit the remote.
	remoteBlock, err := chain.BlockByNumber(12345)
	require.NoError(t, err)
	require.Equal(t, remote.blocks[12345].Hash(), remoteBlock.Hash())

	// The head of a fresh fork is the fork block itself.
	head, err := chain.LastBlock()
	require.NoError(t, err)
	require.Equal(t, uint64(19_999_000), head.NumberU64())

	// Locally mined blocks extend the fork point.
	local := types.NewBlock(&types.Header{
		ParentHash: head.Hash(),
		Number:     new(big.Int).SetUint64(19_999_001),
		GasLimit:   head.GasLimit(),
		Time:       head.Time() + 12,
		Difficulty: new(big.Int),
	}, nil, nil)
	require.NoError(t, chain.InsertBlock(local, nil, nil))

	found, err := chain.BlockByNumber(19_999_001)
	require.NoError(t, err)
	require.Equal(t, local.Hash(), found.Hash())

	// Hash lookups try the local index first, then the remote.
	byHash, err := chain.BlockByHash(local.Hash())
	require.NoError(t, err)
	require.Equal(t, local.Hash(), byHash.Hash())
	byHash, err = chain.BlockByHash(remote.blocks[777].Hash())
	require.NoError(t, err)
	require.Equal(t, uint64(777), byHash.NumberU64())
}

func TestForkedChainIDAt(t *testing.T) {
	remote := newFakeRemote(t, params.MainnetChainId, 20_000_000)
	override := big.NewInt(1337)
	chain, err := NewForkedBlockchain(remote, &ForkConfig{
		ForkBlockNumber: uintPtr(19_999_000),
		ChainIDOverride: override,
	}, params.Cancun, state.NewIrregularState())
	require.NoError(t, err)

	remoteID, err := chain.ChainIDAt(12345)
	require.NoError(t, err)
	require.Equal(t, params.MainnetChainId, remoteID)

	localID, err := chain.ChainIDAt(19_999_000)
	require.NoError(t, err)
	require.Equal(t, params.MainnetChainId, localID)

	require.Equal(t, override, chain.ChainID())
}

func TestForkedRevertPolicy(t *testing.T) {
	remote := newFakeRemote(t, params.MainnetChainId, 20_000_000)
	chain := newForkedChain(t, remote, uintPtr(19_999_000))

	head, err := chain.LastBlock()
	require.NoError(t, err)
	local := types.NewBlock(&types.Header{
		ParentHash: head.Hash(),
		Number:     new(big.Int).SetUint64(19_999_001),
		GasLimit:   head.GasLimit(),
		Time:       head.Time() + 12,
		Difficulty: new(big.Int),
	}, nil, nil)
	require.NoError(t, chain.InsertBlock(local, nil, nil))

	// Remote blocks cannot be deleted.
	require.ErrorIs(t, chain.RevertToBlock(100), ErrCannotDeleteRemote)

	// Reverting to the fork point clears all local storage.
	require.NoError(t, chain.RevertToBlock(19_999_000))
	require.Equal(t, uint64(19_999_000), chain.LastBlockNumber())
	_, err = chain.BlockByHash(local.Hash())
	require.Error(t, err)
}

func TestForkedLogsSplitAtForkPoint(t *testing.T) {
	remote := newFakeRemote(t, params.MainnetChainId, 20_000_000)
	chain := newForkedChain(t, remote, uintPtr(19_999_000))

	head, err := chain.LastBlock()
	require.NoError(t, err)
	receipt := types.NewReceipt(types.LegacyTxType, params.Cancun, nil, false, 21000)
	receipt.Logs = []*types.Log{{BlockNumber: 19_999_001}}
	local := types.NewBlock(&types.Header{
		ParentHash: head.Hash(),
		Number:     new(big.Int).SetUint64(19_999_001),
		GasLimit:   head.GasLimit(),
		Time:       head.Time() + 12,
		Difficulty: new(big.Int),
	}, nil, []*types.Receipt{receipt})
	require.NoError(t, chain.InsertBlock(local, []*types.Receipt{receipt}, nil))

	logs, err := chain.Logs(LogFilter{FromBlock: 19_998_999, ToBlock: 19_999_001})
	require.NoError(t, err)
	// Two remote blocks plus one local log, in block order.
	require.Len(t, logs, 3)
	require.Equal(t, uint64(19_998_999), logs[0].BlockNumber)
	require.Equal(t, uint64(19_999_000), logs[1].BlockNumber)
	require.Equal(t, uint64(19_999_001), logs[2].BlockNumber)
}

func TestForkedStateMaterialization(t *testing.T) {
	remote := newFakeRemote(t, params.MainnetChainId, 20_000_000)
	addr := common.HexToAddress("0xabc")
	remote.accounts[addr] = state.NewAccount(uint256.NewInt(500))

	chain := newForkedChain(t, remote, uintPtr(19_999_000))

	st, err := chain.StateAtBlockNumber(19_999_000, nil)
	require.NoError(t, err)
	balance, err := st.GetBalance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(500), balance.Uint64())

	// Local diffs replay on top of the remote base.
	head, err := chain.LastBlock()
	require.NoError(t, err)
	diff := state.NewStateDiff()
	diff.SetAccount(addr, state.NewAccount(uint256.NewInt(900)))
	local := types.NewBlock(&types.Header{
		ParentHash: head.Hash(),
		Number:     new(big.Int).SetUint64(19_999_001),
		GasLimit:   head.GasLimit(),
		Time:       head.Time() + 12,
		Difficulty: new(big.Int),
		Root:       common.HexToHash("0xbeef"),
	}, nil, nil)
	require.NoError(t, chain.InsertBlock(local, nil, diff))

	st, err = chain.StateAtBlockNumber(19_999_001, nil)
	require.NoError(t, err)
	balance, err = st.GetBalance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(900), balance.Uint64())
	root, err := st.StateRoot()
	require.NoError(t, err)
	require.Equal(t, local.Root(), root)
}

func TestBeaconRootsInjectionOnOldRemote(t *testing.T) {
	// Mainnet block 15m is pre-Cancun; forking it with a Cancun local chain
	// registers the predeploy override at the fork block.
	remote := newFakeRemote(t, params.MainnetChainId, 15_000_000)
	irregular := state.NewIrregularState()
	chain, err := NewForkedBlockchain(remote, &ForkConfig{ForkBlockNumber: uintPtr(15_000_000 - 128)}, params.Cancun, irregular)
	require.NoError(t, err)

	override := irregular.StateOverrideAt(chain.ForkBlockNumber())
	require.NotNil(t, override)
	account := override.Diff.Accounts[BeaconRootsAddress]
	require.NotNil(t, account)
	require.Equal(t, BeaconRootsCode, account.Code)

	st, err := chain.StateAtBlockNumber(chain.ForkBlockNumber(), irregular)
	require.NoError(t, err)
	code, err := st.GetCode(BeaconRootsAddress)
	require.NoError(t, err)
	require.Equal(t, BeaconRootsCode, code)
}
