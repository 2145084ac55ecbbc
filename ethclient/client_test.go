package ethclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// fakeNode is a minimal JSON-RPC endpoint backed by canned responses.
type fakeNode struct {
	chainID string
	latest  string

	calls atomic.Int64 // counts eth_getBlockByNumber requests
}

func (n *fakeNode) handler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var result string
	switch request.Method {
	case "eth_chainId":
		result = fmt.Sprintf("%q", n.chainID)
	case "eth_blockNumber":
		result = fmt.Sprintf("%q", n.latest)
	case "eth_getBlockByNumber":
		n.calls.Add(1)
		var number string
		json.Unmarshal(request.Params[0], &number)
		result = fmt.Sprintf(`{
			"hash": "0x00000000000000000000000000000000000000000000000000000000000000aa",
			"parentHash": "0x0000000000000000000000000000000000000000000000000000000000000001",
			"sha3Uncles": "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
			"miner": "0x0000000000000000000000000000000000000000",
			"stateRoot": "0x00000000000000000000000000000000000000000000000000000000000000bb",
			"transactionsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
			"receiptsRoot": "0x56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421",
			"logsBloom": "0x%0512x",
			"difficulty": "0x0",
			"number": "%s",
			"gasLimit": "0x1c9c380",
			"gasUsed": "0x0",
			"timestamp": "0x64",
			"extraData": "0x",
			"mixHash": "0x0000000000000000000000000000000000000000000000000000000000000000",
			"nonce": "0x0000000000000000",
			"transactions": []
		}`, 0, number)
	default:
		http.Error(w, "unsupported method", http.StatusBadRequest)
		return
	}
	fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, request.ID, result)
}

func TestMakeCacheKeyDeterministic(t *testing.T) {
	key1, err := makeCacheKey("eth_getBlockByNumber", []any{"0x10", true})
	require.NoError(t, err)
	key2, err := makeCacheKey("eth_getBlockByNumber", []any{"0x10", true})
	require.NoError(t, err)
	require.Equal(t, key1, key2)

	other, err := makeCacheKey("eth_getBlockByNumber", []any{"0x11", true})
	require.NoError(t, err)
	require.NotEqual(t, key1, other)

	method, err := makeCacheKey("eth_getBlockByHash", []any{"0x10", true})
	require.NoError(t, err)
	require.NotEqual(t, key1, method)
}

func TestWriteCacheKeyResolution(t *testing.T) {
	resolved, err := resolvedKey("eth_getBlockByHash", []any{"0xabc", true})
	require.NoError(t, err)
	require.True(t, resolved.Resolved())
	require.False(t, resolved.NeedsBlockTagResolution())

	numbered, err := numberedKey("eth_getBalance", []any{"0xabc", "0x10"}, 16)
	require.NoError(t, err)
	require.False(t, numbered.Resolved())
	blockNumber, ok := numbered.NeedsSafetyCheck()
	require.True(t, ok)
	require.Equal(t, uint64(16), blockNumber)

	tagged := taggedKey()
	require.True(t, tagged.NeedsBlockTagResolution())
	require.False(t, tagged.Resolved())
}

func TestSafeDepthGatesCaching(t *testing.T) {
	node := &fakeNode{chainID: "0x1", latest: "0x3e8"} // mainnet, latest 1000
	server := httptest.NewServer(http.HandlerFunc(node.handler))
	defer server.Close()

	cacheDir := t.TempDir()
	client, err := DialWithCache(server.URL, cacheDir)
	require.NoError(t, err)
	_, err = client.ChainID()
	require.NoError(t, err)

	// A deep block is cached: the second read is served from disk.
	_, err = client.BlockByNumber(500)
	require.NoError(t, err)
	require.Equal(t, int64(1), node.calls.Load())
	_, err = client.BlockByNumber(500)
	require.NoError(t, err)
	require.Equal(t, int64(1), node.calls.Load())

	// A block within the safe depth is re-fetched every time.
	_, err = client.BlockByNumber(990)
	require.NoError(t, err)
	_, err = client.BlockByNumber(990)
	require.NoError(t, err)
	require.Equal(t, int64(3), node.calls.Load())

	// The cache lands under <dir>/rpc_cache/<host_port>/<chain_id>/.
	entries, err := filepath.Glob(filepath.Join(cacheDir, "rpc_cache", "*", "1", "*.json"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCorruptedCacheEntryIsDeleted(t *testing.T) {
	node := &fakeNode{chainID: "0x1", latest: "0x3e8"}
	server := httptest.NewServer(http.HandlerFunc(node.handler))
	defer server.Close()

	cacheDir := t.TempDir()
	client, err := DialWithCache(server.URL, cacheDir)
	require.NoError(t, err)
	_, err = client.ChainID()
	require.NoError(t, err)

	_, err = client.BlockByNumber(500)
	require.NoError(t, err)
	entries, err := filepath.Glob(filepath.Join(cacheDir, "rpc_cache", "*", "1", "*.json"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Corrupt the entry: the next read deletes it and refetches.
	require.NoError(t, os.WriteFile(entries[0], []byte("{not json"), 0o644))
	_, err = client.BlockByNumber(500)
	require.NoError(t, err)
	require.Equal(t, int64(2), node.calls.Load())

	data, err := os.ReadFile(entries[0])
	require.NoError(t, err)
	var decoded json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
}

func TestBlockNumberIsMemoized(t *testing.T) {
	node := &fakeNode{chainID: "0x1", latest: "0x64"}
	server := httptest.NewServer(http.HandlerFunc(node.handler))
	defer server.Close()

	client, err := Dial(server.URL)
	require.NoError(t, err)
	first, err := client.BlockNumber()
	require.NoError(t, err)
	require.Equal(t, uint64(100), first)

	// A raised remote head is invisible until the block-time TTL expires.
	node.latest = "0x65"
	second, err := client.BlockNumber()
	require.NoError(t, err)
	require.Equal(t, uint64(100), second)
}

func TestMissingTrieNodeDetection(t *testing.T) {
	require.True(t, isMissingTrieNode(&JsonRpcError{Code: -32000, Message: "missing trie node deadbeef"}))
	require.False(t, isMissingTrieNode(&JsonRpcError{Code: -32000, Message: "out of gas"}))
	require.False(t, isMissingTrieNode(&JsonRpcError{Code: -32602, Message: "missing trie node"}))
}

func TestRemoteBlockKeepsReportedHash(t *testing.T) {
	node := &fakeNode{chainID: "0x1", latest: "0x3e8"}
	server := httptest.NewServer(http.HandlerFunc(node.handler))
	defer server.Close()

	client, err := Dial(server.URL)
	require.NoError(t, err)
	block, err := client.BlockByNumber(500)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xaa"), block.Hash())
	require.Equal(t, uint64(500), block.NumberU64())
	require.Equal(t, common.HexToHash("0xbb"), block.Root())
}