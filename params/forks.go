package params

import (
	"math/big"
	"time"
)

// Well-known chain ids with built-in hardfork activation tables.
var (
	MainnetChainId = big.NewInt(1)
	RopstenChainId = big.NewInt(3)
	GoerliChainId  = big.NewInt(5)
	HoleskyChainId = big.NewInt(17000)
	SepoliaChainId = big.NewInt(11155111)
)

// Activation marks the first block number at which a hardfork is in effect.
type Activation struct {
	Block    uint64
	Hardfork Hardfork
}

// Activations is an ordered list of hardfork activations for one chain.
type Activations []Activation

// HardforkAt returns the hardfork active at the given block number, or
// Frontier when the table is empty or starts later.
func (a Activations) HardforkAt(number uint64) Hardfork {
	active := Frontier
	for _, entry := range a {
		if entry.Block > number {
			break
		}
		active = entry.Hardfork
	}
	return active
}

var (
	MainnetActivations = Activations{
		{0, Frontier},
		{200_000, FrontierThawing},
		{1_150_000, Homestead},
		{1_920_000, DAOFork},
		{2_463_000, Tangerine},
		{2_675_000, SpuriousDragon},
		{4_370_000, Byzantium},
		{7_280_000, Constantinople},
		{7_280_000, Petersburg},
		{9_069_000, Istanbul},
		{9_200_000, MuirGlacier},
		{12_244_000, Berlin},
		{12_965_000, London},
		{13_773_000, ArrowGlacier},
		{15_050_000, GrayGlacier},
		{15_537_394, Merge},
		{17_034_870, Shanghai},
		{19_426_587, Cancun},
		{22_431_084, Prague},
	}
	RopstenActivations = Activations{
		{0, Frontier},
		{1_700_000, Byzantium},
		{4_230_000, Constantinople},
		{4_939_394, Petersburg},
		{6_485_846, Istanbul},
		{7_117_117, MuirGlacier},
		{9_812_189, Berlin},
		{10_499_401, London},
	}
	GoerliActivations = Activations{
		{0, Petersburg},
		{1_561_651, Istanbul},
		{4_460_644, Berlin},
		{5_062_605, London},
		{7_382_818, Merge},
		{8_656_123, Shanghai},
		{10_388_176, Cancun},
	}
	HoleskyActivations = Activations{
		{0, Merge},
		{6_698, Shanghai},
		{894_733, Cancun},
		{3_419_704, Prague},
	}
	SepoliaActivations = Activations{
		{0, London},
		{1_450_409, Merge},
		{2_990_908, Shanghai},
		{5_187_023, Cancun},
		{7_118_848, Prague},
	}
)

var chainActivations = map[int64]Activations{
	MainnetChainId.Int64(): MainnetActivations,
	RopstenChainId.Int64(): RopstenActivations,
	GoerliChainId.Int64():  GoerliActivations,
	HoleskyChainId.Int64(): HoleskyActivations,
	SepoliaChainId.Int64(): SepoliaActivations,
}

var chainNames = map[int64]string{
	MainnetChainId.Int64(): "mainnet",
	RopstenChainId.Int64(): "ropsten",
	GoerliChainId.Int64():  "goerli",
	HoleskyChainId.Int64(): "holesky",
	SepoliaChainId.Int64(): "sepolia",
}

// ChainHardforkActivations returns the built-in activation table for a chain
// id, or nil when the chain is unknown.
func ChainHardforkActivations(chainID *big.Int) Activations {
	if chainID == nil {
		return nil
	}
	return chainActivations[chainID.Int64()]
}

// ChainName returns a human readable name for well-known chain ids.
func ChainName(chainID *big.Int) string {
	if chainID != nil {
		if name, ok := chainNames[chainID.Int64()]; ok {
			return name
		}
	}
	return "unknown"
}

// The default depth after which a remote block is assumed to be immune to
// reorgs. Chains with fast or instant finality get shallower depths.
const DefaultSafeBlockDepth uint64 = 32

var chainSafeBlockDepths = map[int64]uint64{
	MainnetChainId.Int64(): 32,
	RopstenChainId.Int64(): 3,
	GoerliChainId.Int64():  32,
	HoleskyChainId.Int64(): 32,
	SepoliaChainId.Int64(): 32,
	100:                    38, // gnosis
	10:                     0,  // optimism: sequenced, no reorgs beyond L1
	42161:                  0,  // arbitrum one
}

// SafeBlockDepth returns the number of confirmations after which a block of
// the given chain is considered cacheable.
func SafeBlockDepth(chainID *big.Int) uint64 {
	if chainID != nil {
		if depth, ok := chainSafeBlockDepths[chainID.Int64()]; ok {
			return depth
		}
	}
	return DefaultSafeBlockDepth
}

var chainBlockTimes = map[int64]time.Duration{
	MainnetChainId.Int64(): 12 * time.Second,
	SepoliaChainId.Int64(): 12 * time.Second,
	HoleskyChainId.Int64(): 12 * time.Second,
	100:                    5 * time.Second,
	10:                     2 * time.Second,
	42161:                  time.Second,
}

// BlockTime returns the expected block interval of a chain. It bounds how
// long a cached eth_blockNumber result stays fresh.
func BlockTime(chainID *big.Int) time.Duration {
	if chainID != nil {
		if d, ok := chainBlockTimes[chainID.Int64()]; ok {
			return d
		}
	}
	return time.Second
}

// IsSafeBlockNumber reports whether the block is deep enough below the chain
// head to be immune to reorg invalidation.
func IsSafeBlockNumber(chainID *big.Int, number, latest uint64) bool {
	depth := SafeBlockDepth(chainID)
	return number+depth <= latest
}

// LargestSafeBlockNumber returns the highest block number considered safe
// for the chain. The result may underflow-wrap for very young chains; use
// RecommendedForkBlockNumber for fork-point selection.
func LargestSafeBlockNumber(chainID *big.Int, latest uint64) uint64 {
	return latest - SafeBlockDepth(chainID)
}

// RecommendedForkBlockNumber picks the fork point for a chain whose head is
// at latest. When the chain is younger than its safe depth, every block has
// a reorg risk and the head itself is the only sensible anchor.
func RecommendedForkBlockNumber(chainID *big.Int, latest uint64) uint64 {
	if depth := SafeBlockDepth(chainID); latest > depth {
		return latest - depth
	}
	return latest
}
