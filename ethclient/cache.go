package ethclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethforge/devchain/params"
)

// ReadCacheKey addresses a cached response whose inputs fully determine the
// response.
type ReadCacheKey string

// WriteCacheKey is a cache key whose validity may still depend on the block
// depth or on resolving a symbolic block tag.
type WriteCacheKey struct {
	key ReadCacheKey

	// needsSafetyCheck carries the referenced block number when the entry may
	// only be written once that block is safely below the chain head.
	needsSafetyCheck *uint64

	// needsBlockTagResolution marks keys built from a symbolic tag such as
	// "latest"; these must be re-keyed on the resolved number first.
	needsBlockTagResolution bool
}

// Resolved reports whether the key may be written as-is.
func (k *WriteCacheKey) Resolved() bool {
	return k.needsSafetyCheck == nil && !k.needsBlockTagResolution
}

// NeedsSafetyCheck returns the gating block number, if any.
func (k *WriteCacheKey) NeedsSafetyCheck() (uint64, bool) {
	if k.needsSafetyCheck == nil {
		return 0, false
	}
	return *k.needsSafetyCheck, true
}

// NeedsBlockTagResolution reports whether a symbolic tag must be resolved.
func (k *WriteCacheKey) NeedsBlockTagResolution() bool {
	return k.needsBlockTagResolution
}

// makeCacheKey derives the content address of a method invocation.
func makeCacheKey(method string, args []any) (ReadCacheKey, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256([]byte(method), encoded)
	return ReadCacheKey(fmt.Sprintf("%x", hash)), nil
}

// diskCache is a chain-id-partitioned content-addressed store of remote
// JSON-RPC responses.
type diskCache struct {
	root      string // <cache_dir>/rpc_cache
	remoteDir string // <host>[_<port>]
	chainID   string
}

// newDiskCache derives the per-remote cache directory from the endpoint URL.
// The chain id partition is attached later, once known.
func newDiskCache(cacheDir, rawurl string) (*diskCache, error) {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	remoteDir := parsed.Hostname()
	if remoteDir == "" {
		remoteDir = "unknown"
	}
	if port := parsed.Port(); port != "" {
		remoteDir = remoteDir + "_" + port
	}
	return &diskCache{
		root:      filepath.Join(cacheDir, "rpc_cache"),
		remoteDir: remoteDir,
	}, nil
}

func (c *diskCache) setChainID(chainID *big.Int) {
	c.chainID = chainID.String()
}

func (c *diskCache) entryPath(key ReadCacheKey) string {
	return filepath.Join(c.root, c.remoteDir, c.chainID, string(key)+".json")
}

func (c *diskCache) tmpDir() string {
	return filepath.Join(c.root, "tmp")
}

// read returns the cached response, or nil on a miss. A file that fails to
// deserialize is deleted and treated as a miss.
func (c *diskCache) read(key ReadCacheKey) json.RawMessage {
	if c.chainID == "" {
		return nil
	}
	path := c.entryPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var result json.RawMessage
	if err := json.Unmarshal(data, &result); err != nil {
		log.Warn("Removing corrupted cache entry", "path", path, "err", err)
		_ = os.Remove(path)
		return nil
	}
	return result
}

// write lands the response in a temp file first, then atomically renames it
// into place. Concurrent writers race benignly: entries are content
// addressed, so the last writer wins with identical content.
func (c *diskCache) write(key ReadCacheKey, response json.RawMessage) error {
	if c.chainID == "" {
		return errors.New("cache chain id not resolved")
	}
	encoded, err := json.Marshal(response)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.tmpDir(), 0o755); err != nil {
		return err
	}
	final := c.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(c.tmpDir(), uuid.NewString()+".json")
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		if runtime.GOOS == "windows" {
			// Another process may hold the destination open; drop the temp
			// file and accept the miss.
			_ = os.Remove(tmp)
			return nil
		}
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// isSafeToCache gates a write on the referenced block being deep enough
// below the chain head.
func isSafeToCache(chainID *big.Int, blockNumber, latest uint64) bool {
	return params.IsSafeBlockNumber(chainID, blockNumber, latest)
}
