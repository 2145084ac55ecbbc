package provider

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/ethforge/devchain/core"
	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/txpool"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/core/vm"
	"github.com/ethforge/devchain/ethclient"
	"github.com/ethforge/devchain/miner"
	"github.com/ethforge/devchain/params"
)

// ForkUserConfig requests a forked backend.
type ForkUserConfig struct {
	URL             string
	BlockNumber     *uint64
	CacheDir        string
	ChainIDOverride *big.Int
}

// GenesisAccount funds an address in the genesis state.
type GenesisAccount struct {
	Address common.Address
	Balance *big.Int
}

// Config assembles a provider instance.
type Config struct {
	ChainID       *big.Int
	Hardfork      params.Hardfork
	BlockGasLimit uint64
	Coinbase      common.Address

	// Local signing keys; their addresses are reported by eth_accounts.
	Accounts []*ecdsa.PrivateKey
	// Genesis balances, typically covering the local accounts.
	GenesisAccounts []GenesisAccount

	AutoMine           bool
	MiningInterval     time.Duration // 0 disables interval mining
	MiningIntervalMax  time.Duration // >0 randomizes the interval in [MiningInterval, MiningIntervalMax]
	Ordering           txpool.Ordering
	MinGasPrice        *big.Int
	InitialBaseFee     *big.Int
	InitialDate        *time.Time
	AllowUnlimitedContractSize bool

	Fork *ForkUserConfig

	// Interpreter is the external EVM oracle.
	Interpreter vm.Interpreter
}

// providerData is the single-owner state behind the provider mutex.
type providerData struct {
	config   *Config
	chain    core.Blockchain
	pool     *txpool.MemPool
	st       state.StateDB
	irregular *state.IrregularState
	interp   vm.Interpreter

	accounts     map[common.Address]*ecdsa.PrivateKey
	accountOrder []common.Address
	impersonated map[common.Address]bool

	coinbase       common.Address
	minGasPrice    *big.Int
	blockGasLimit  uint64
	automine       bool
	loggingEnabled bool

	timeOffset         int64
	nextBlockTimestamp uint64
	nextBaseFee        *big.Int
	prevRandao         common.Hash

	snapshots      []*snapshot
	nextSnapshotID uint64

	filters      map[uint64]*filter
	nextFilterID uint64

	// Event feeds for embedding hosts that prefer push notifications over
	// filter polling.
	headFeed event.Feed
	txFeed   event.Feed

	instanceID common.Hash
}

type snapshot struct {
	id                 uint64
	blockNumber        uint64
	timeOffset         int64
	nextBlockTimestamp uint64
	nextBaseFee        *big.Int
	prevRandao         common.Hash
	pooled             []*types.Transaction
	irregular          *state.IrregularState
}

func newProviderData(config *Config) (*providerData, error) {
	if config.BlockGasLimit == 0 {
		config.BlockGasLimit = params.DefaultBlockGasLimit
	}
	if config.Interpreter == nil {
		return nil, errors.New("provider requires an interpreter")
	}

	irregular := state.NewIrregularState()

	var chain core.Blockchain
	if config.Fork != nil {
		client, err := dialForkClient(config.Fork)
		if err != nil {
			return nil, err
		}
		forked, err := core.NewForkedBlockchain(client, &core.ForkConfig{
			ForkBlockNumber: config.Fork.BlockNumber,
			ChainIDOverride: config.Fork.ChainIDOverride,
		}, config.Hardfork, irregular)
		if err != nil {
			return nil, err
		}
		chain = forked
	} else {
		alloc := state.NewStateDiff()
		for _, account := range config.GenesisAccounts {
			balance, overflow := uint256.FromBig(account.Balance)
			if overflow {
				return nil, fmt.Errorf("genesis balance of %s overflows uint256", account.Address)
			}
			alloc.SetAccount(account.Address, state.NewAccount(balance))
		}
		var timestamp uint64
		if config.InitialDate != nil {
			timestamp = uint64(config.InitialDate.Unix())
		}
		local, err := core.NewLocalBlockchain(&core.GenesisConfig{
			ChainID:   config.ChainID,
			Hardfork:  config.Hardfork,
			GasLimit:  config.BlockGasLimit,
			Timestamp: timestamp,
			BaseFee:   config.InitialBaseFee,
			Alloc:     alloc,
		})
		if err != nil {
			return nil, err
		}
		chain = local
	}

	st, err := chain.StateAtBlockNumber(chain.LastBlockNumber(), irregular)
	if err != nil {
		return nil, err
	}

	// Fund genesis accounts on forked chains as a state override at the fork
	// point.
	if config.Fork != nil && len(config.GenesisAccounts) > 0 {
		for _, account := range config.GenesisAccounts {
			balance, overflow := uint256.FromBig(account.Balance)
			if overflow {
				return nil, fmt.Errorf("genesis balance of %s overflows uint256", account.Address)
			}
			if err := st.SetBalance(account.Address, balance); err != nil {
				return nil, err
			}
		}
	}

	signer := types.LatestSigner(config.ChainID, config.Hardfork)
	data := &providerData{
		config:         config,
		chain:          chain,
		pool:           txpool.New(config.BlockGasLimit, signer),
		st:             st,
		irregular:      irregular,
		interp:         config.Interpreter,
		accounts:       make(map[common.Address]*ecdsa.PrivateKey),
		impersonated:   make(map[common.Address]bool),
		coinbase:       config.Coinbase,
		minGasPrice:    config.MinGasPrice,
		blockGasLimit:  config.BlockGasLimit,
		automine:       config.AutoMine,
		loggingEnabled: true,
		filters:        make(map[uint64]*filter),
		prevRandao:     crypto.Keccak256Hash([]byte("devchain.prevrandao.seed")),
		instanceID:     crypto.Keccak256Hash(new(big.Int).SetInt64(time.Now().UnixNano()).Bytes()),
	}
	if data.minGasPrice == nil {
		data.minGasPrice = new(big.Int)
	}
	for _, key := range config.Accounts {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		data.accounts[addr] = key
		data.accountOrder = append(data.accountOrder, addr)
	}
	return data, nil
}

func dialForkClient(config *ForkUserConfig) (core.RemoteClient, error) {
	if config.CacheDir != "" {
		return ethclient.DialWithCache(config.URL, config.CacheDir)
	}
	return ethclient.Dial(config.URL)
}

func (d *providerData) signer() types.Signer {
	return types.LatestSigner(d.config.ChainID, d.config.Hardfork)
}

func (d *providerData) vmConfig() vm.Config {
	return vm.Config{
		ChainID:                    d.config.ChainID,
		Hardfork:                   d.config.Hardfork,
		AllowUnlimitedContractSize: d.config.AllowUnlimitedContractSize,
	}
}

// blockEnvFromHeader rebuilds the execution environment of an existing
// block, used when re-running its transactions for tracing.
func blockEnvFromHeader(header *types.Header) vm.BlockEnv {
	return vm.BlockEnv{
		Number:     new(big.Int).Set(header.Number),
		Coinbase:   header.Coinbase,
		Time:       header.Time,
		GasLimit:   header.GasLimit,
		BaseFee:    header.BaseFee,
		PrevRandao: header.MixDigest,
		Difficulty: header.Difficulty,
	}
}

func (d *providerData) blockInputs() miner.BlockInputs {
	inputs := miner.BlockInputs{}
	if d.config.Hardfork >= params.Shanghai {
		inputs.Withdrawals = types.Withdrawals{}
	}
	return inputs
}

// nextBlockTime computes the timestamp of the next mined block. An explicit
// next-block timestamp is returned as given; otherwise the clock plus the
// accumulated offset is used, raised to one above the parent's time if needed.
func (d *providerData) nextBlockTime(parent *types.Header) uint64 {
	if d.nextBlockTimestamp != 0 {
		return d.nextBlockTimestamp
	}
	timestamp := uint64(time.Now().Unix() + d.timeOffset)
	if timestamp <= parent.Time {
		timestamp = parent.Time + 1
	}
	return timestamp
}

// headerOverrides assembles the per-block mining overrides.
func (d *providerData) headerOverrides(parent *types.Header) *miner.HeaderOverrides {
	overrides := &miner.HeaderOverrides{
		Coinbase: &d.coinbase,
		GasLimit: &d.blockGasLimit,
	}
	timestamp := d.nextBlockTime(parent)
	overrides.Timestamp = &timestamp
	if d.config.Hardfork.IsPostMerge() {
		randao := d.prevRandao
		overrides.MixDigest = &randao
	}
	if d.nextBaseFee != nil {
		overrides.BaseFee = new(big.Int).Set(d.nextBaseFee)
	}
	return overrides
}

// mineAndCommit mines one block out of the mempool and appends it to the
// chain, refreshing the dependent caches and notifying filters.
func (d *providerData) mineAndCommit() (*miner.MineResult, error) {
	lastBlock, err := d.chain.LastBlock()
	if err != nil {
		return nil, err
	}
	result, err := miner.MineBlock(
		d.chain,
		d.st.Copy(),
		d.pool,
		d.interp,
		d.vmConfig(),
		d.blockInputs(),
		d.headerOverrides(lastBlock.Header()),
		miner.MineConfig{Ordering: d.config.Ordering, MinGasPrice: d.minGasPrice},
		nil,
	)
	if err != nil {
		return nil, err
	}
	if err := d.commitBlock(result.Build); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *providerData) commitBlock(build *miner.BuildResult) error {
	if err := d.chain.InsertBlock(build.Block, build.Receipts, build.Diff); err != nil {
		return err
	}
	d.st = build.State
	d.nextBlockTimestamp = 0
	d.nextBaseFee = nil
	d.prevRandao = crypto.Keccak256Hash(d.prevRandao.Bytes())
	if err := d.pool.Update(d.st); err != nil {
		return err
	}
	d.notifyNewBlock(build.Block, build.Receipts)
	if d.loggingEnabled {
		log.Info("Mined block", "number", build.Block.NumberU64(), "hash", build.Block.Hash(), "txs", len(build.Block.Transactions()))
	}
	return nil
}

// resolveBlockNumber maps a block spec to a concrete local number.
func (d *providerData) resolveBlockNumber(spec *BlockSpec) (uint64, error) {
	if spec == nil {
		spec = latestBlockSpec()
	}
	if err := validateBlockSpec(spec, d.config.Hardfork); err != nil {
		return 0, err
	}
	switch {
	case spec.Hash != nil:
		block, err := d.chain.BlockByHash(*spec.Hash)
		if err != nil {
			return 0, errUnknownBlockNumber()
		}
		return block.NumberU64(), nil
	case spec.Number != nil:
		if *spec.Number > d.chain.LastBlockNumber() {
			return 0, errUnknownBlockNumber()
		}
		return *spec.Number, nil
	case spec.Tag == "earliest":
		return 0, nil
	default:
		// latest, pending, safe, finalized all map to the chain head.
		return d.chain.LastBlockNumber(), nil
	}
}

// blockBySpec resolves a spec to a block.
func (d *providerData) blockBySpec(spec *BlockSpec) (*types.Block, error) {
	number, err := d.resolveBlockNumber(spec)
	if err != nil {
		return nil, err
	}
	return d.chain.BlockByNumber(number)
}

// stateAtSpec materializes the state a read or call executes against.
// The chain head resolves to the live state.
func (d *providerData) stateAtSpec(spec *BlockSpec) (state.StateDB, error) {
	number, err := d.resolveBlockNumber(spec)
	if err != nil {
		return nil, err
	}
	if number == d.chain.LastBlockNumber() {
		return d.st, nil
	}
	return d.chain.StateAtBlockNumber(number, d.irregular)
}

// makeSnapshot captures everything evm_revert needs to restore.
func (d *providerData) makeSnapshot() uint64 {
	d.nextSnapshotID++
	snap := &snapshot{
		id:                 d.nextSnapshotID,
		blockNumber:        d.chain.LastBlockNumber(),
		timeOffset:         d.timeOffset,
		nextBlockTimestamp: d.nextBlockTimestamp,
		prevRandao:         d.prevRandao,
		pooled:             d.pool.Transactions(),
		irregular:          d.irregular.Copy(),
	}
	if d.nextBaseFee != nil {
		snap.nextBaseFee = new(big.Int).Set(d.nextBaseFee)
	}
	d.snapshots = append(d.snapshots, snap)
	return snap.id
}

// revertToSnapshot restores the chain, mempool and timing state captured by
// the snapshot id. All later snapshots are invalidated.
func (d *providerData) revertToSnapshot(id uint64) (bool, error) {
	index := -1
	for i, snap := range d.snapshots {
		if snap.id == id {
			index = i
			break
		}
	}
	if index < 0 {
		return false, nil
	}
	snap := d.snapshots[index]
	if err := d.chain.RevertToBlock(snap.blockNumber); err != nil {
		return false, err
	}
	d.irregular = snap.irregular
	st, err := d.chain.StateAtBlockNumber(snap.blockNumber, d.irregular)
	if err != nil {
		return false, err
	}
	d.st = st
	d.timeOffset = snap.timeOffset
	d.nextBlockTimestamp = snap.nextBlockTimestamp
	d.nextBaseFee = snap.nextBaseFee
	d.prevRandao = snap.prevRandao

	d.pool = txpool.New(d.blockGasLimit, d.signer())
	for _, tx := range snap.pooled {
		if err := d.pool.AddTransaction(d.st, tx); err != nil {
			log.Trace("Dropping pooled transaction on snapshot revert", "tx", tx.Hash(), "err", err)
		}
	}
	d.snapshots = d.snapshots[:index]
	return true, nil
}

// modifyAccount mutates live state and mirrors the change as an irregular
// override at the current head so historical materialization stays
// consistent.
func (d *providerData) modifyAccount(addr common.Address, mutate func(st state.StateDB) error) error {
	if err := mutate(d.st); err != nil {
		return err
	}
	account, err := d.st.GetAccount(addr)
	if err != nil {
		return err
	}
	head := d.chain.LastBlockNumber()
	override := d.irregular.StateOverrideAt(head)
	if override == nil {
		root, err := d.st.StateRoot()
		if err != nil {
			return err
		}
		override = &state.StateOverride{Diff: state.NewStateDiff(), StateRoot: root}
		d.irregular.SetStateOverride(head, override)
	}
	override.Diff.SetAccount(addr, account)
	if root, err := d.st.StateRoot(); err == nil {
		override.StateRoot = root
	}
	return d.pool.Update(d.st)
}
