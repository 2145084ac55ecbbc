package params

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHardforkAt(t *testing.T) {
	require.Equal(t, Frontier, MainnetActivations.HardforkAt(0))
	require.Equal(t, Homestead, MainnetActivations.HardforkAt(1_150_000))
	require.Equal(t, SpuriousDragon, MainnetActivations.HardforkAt(2_675_000))
	require.Equal(t, Byzantium, MainnetActivations.HardforkAt(4_370_000))
	require.Equal(t, London, MainnetActivations.HardforkAt(12_965_000))
	require.Equal(t, London, MainnetActivations.HardforkAt(13_000_000))
	require.Equal(t, Cancun, MainnetActivations.HardforkAt(20_000_000))
	require.Equal(t, Prague, MainnetActivations.HardforkAt(23_000_000))
}

func TestRecommendedForkBlockNumberWithSafeBlocks(t *testing.T) {
	const latestBlockNumber = 1_000

	depth := SafeBlockDepth(RopstenChainId)
	require.Equal(t, latestBlockNumber-depth, RecommendedForkBlockNumber(RopstenChainId, latestBlockNumber))
	require.Equal(t, uint64(997), RecommendedForkBlockNumber(RopstenChainId, latestBlockNumber))
}

func TestRecommendedForkBlockNumberAllBlocksUnsafe(t *testing.T) {
	// A chain younger than its safe depth anchors at the head itself.
	depth := SafeBlockDepth(MainnetChainId)
	latest := depth - 1
	require.Equal(t, latest, RecommendedForkBlockNumber(MainnetChainId, latest))
}

func TestIsSafeBlockNumber(t *testing.T) {
	require.True(t, IsSafeBlockNumber(MainnetChainId, 0, 32))
	require.True(t, IsSafeBlockNumber(MainnetChainId, 968, 1_000))
	require.False(t, IsSafeBlockNumber(MainnetChainId, 969, 1_000))
	// Unknown chains use the default depth.
	unknown := big.NewInt(424242)
	require.Equal(t, DefaultSafeBlockDepth, SafeBlockDepth(unknown))
}

func TestBlobSchedule(t *testing.T) {
	require.Nil(t, BlobScheduleFor(Shanghai))

	cancun := BlobScheduleFor(Cancun)
	require.NotNil(t, cancun)
	require.Equal(t, uint64(6)*BlobTxBlobGasPerBlob, cancun.MaxBlobGasPerBlock())
	require.Equal(t, uint64(3)*BlobTxBlobGasPerBlob, cancun.TargetBlobGasPerBlock())

	prague := BlobScheduleFor(Prague)
	require.NotNil(t, prague)
	require.Equal(t, uint64(9)*BlobTxBlobGasPerBlob, prague.MaxBlobGasPerBlock())
}

func TestChainName(t *testing.T) {
	require.Equal(t, "mainnet", ChainName(MainnetChainId))
	require.Equal(t, "sepolia", ChainName(SepoliaChainId))
	require.Equal(t, "unknown", ChainName(big.NewInt(999_999)))
}
