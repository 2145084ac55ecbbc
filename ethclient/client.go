// Package ethclient implements the JSON-RPC client used to back forked
// chains, wrapping every remote call with retry, response caching on disk
// and safe-depth gating.
package ethclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/ethforge/devchain/core/state"
	"github.com/ethforge/devchain/core/types"
	"github.com/ethforge/devchain/params"
)

const (
	retryBaseInterval = time.Second
	retryMaxInterval  = 32 * time.Second
	retryMaxAttempts  = 9
)

// JsonRpcError is an error reported by the remote endpoint.
type JsonRpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// HttpStatusError is a non-2xx HTTP response.
type HttpStatusError struct {
	StatusCode int
	Status     string
}

func (e *HttpStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %s", e.Status)
}

type jsonrpcRequest struct {
	Version string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonrpcResponse struct {
	Version string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *JsonRpcError   `json:"error"`
}

// Client is a caching JSON-RPC client over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	cache      *diskCache // nil when caching is disabled

	mu            sync.Mutex
	nextID        uint64
	chainID       *big.Int
	latest        uint64
	latestFetched time.Time
}

// Dial creates an uncached client for the given HTTP(S) endpoint.
func Dial(rawurl string) (*Client, error) {
	return &Client{url: rawurl, httpClient: &http.Client{Timeout: 30 * time.Second}}, nil
}

// DialWithCache creates a client persisting cacheable responses beneath
// cacheDir, partitioned by remote host and chain id.
func DialWithCache(rawurl, cacheDir string) (*Client, error) {
	client, err := Dial(rawurl)
	if err != nil {
		return nil, err
	}
	cache, err := newDiskCache(cacheDir, rawurl)
	if err != nil {
		return nil, err
	}
	client.cache = cache
	return client, nil
}

// do performs one JSON-RPC exchange without retry.
func (c *Client) do(method string, args []any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	payload, err := json.Marshal(&jsonrpcRequest{Version: "2.0", ID: id, Method: method, Params: args})
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Post(c.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HttpStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var decoded jsonrpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}

// retryable reports whether an exchange failure is worth repeating:
// transport errors, 5xx and rate limiting.
func retryable(err error) bool {
	var httpErr *HttpStatusError
	if ok := asError(err, &httpErr); ok {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var rpcErr *JsonRpcError
	if ok := asError(err, &rpcErr); ok {
		return false
	}
	return true // network-level failure
}

func asError[T error](err error, target *T) bool {
	if e, ok := err.(T); ok {
		*target = e
		return true
	}
	return false
}

// isMissingTrieNode matches the known Alchemy transient: a -32000 JSON-RPC
// error whose message mentions a missing trie node.
func isMissingTrieNode(err error) bool {
	var rpcErr *JsonRpcError
	return asError(err, &rpcErr) && rpcErr.Code == -32000 && strings.Contains(rpcErr.Message, "missing trie node")
}

// doWithRetry wraps do in exponential backoff, plus a final application
// retry on the missing-trie-node transient.
func (c *Client) doWithRetry(method string, args []any) (json.RawMessage, error) {
	var result json.RawMessage
	operation := func() error {
		var err error
		result, err = c.do(method, args)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseInterval
	policy.MaxInterval = retryMaxInterval
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithMaxRetries(policy, retryMaxAttempts))
	if err != nil && isMissingTrieNode(err) {
		log.Debug("Retrying request after missing trie node response", "method", method)
		result, err = c.do(method, args)
	}
	return result, err
}

// call performs an uncached request and decodes the result.
func (c *Client) call(result any, method string, args ...any) error {
	raw, err := c.doWithRetry(method, args)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(raw, result)
}

// callCached performs a request whose response is cacheable. The write key
// resolves through the safe-depth gate when the invocation references a
// block number; hash-addressed invocations pass resolved == true.
func (c *Client) callCached(result any, writeKey *WriteCacheKey, method string, args ...any) error {
	if c.cache == nil {
		return c.call(result, method, args...)
	}
	cacheable := writeKey.Resolved()
	if blockNumber, ok := writeKey.NeedsSafetyCheck(); ok {
		latest, err := c.BlockNumber()
		if err != nil {
			return err
		}
		c.mu.Lock()
		chainID := c.chainID
		c.mu.Unlock()
		cacheable = chainID != nil && isSafeToCache(chainID, blockNumber, latest)
	}
	if !cacheable {
		return c.call(result, method, args...)
	}
	if cached := c.cache.read(writeKey.key); cached != nil {
		return json.Unmarshal(cached, result)
	}
	raw, err := c.doWithRetry(method, args)
	if err != nil {
		return err
	}
	if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := c.cache.write(writeKey.key, raw); err != nil {
			log.Warn("Failed to write RPC cache entry", "method", method, "err", err)
		}
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(raw, result)
}

// resolvedKey builds a write key for a hash-addressed invocation.
func resolvedKey(method string, args []any) (*WriteCacheKey, error) {
	key, err := makeCacheKey(method, args)
	if err != nil {
		return nil, err
	}
	return &WriteCacheKey{key: key}, nil
}

// numberedKey builds a write key gated on the given block number's depth.
func numberedKey(method string, args []any, blockNumber uint64) (*WriteCacheKey, error) {
	key, err := makeCacheKey(method, args)
	if err != nil {
		return nil, err
	}
	n := blockNumber
	return &WriteCacheKey{key: key, needsSafetyCheck: &n}, nil
}

// taggedKey marks an invocation keyed on a symbolic block tag; the caller
// must resolve the tag to a concrete number and re-key before caching.
func taggedKey() *WriteCacheKey {
	return &WriteCacheKey{needsBlockTagResolution: true}
}

// ResolveBlockTag maps a symbolic tag to a concrete block number so the
// invocation can be re-keyed for caching.
func (c *Client) ResolveBlockTag(tag string) (uint64, error) {
	switch tag {
	case "earliest":
		return 0, nil
	case "latest", "pending", "safe", "finalized":
		return c.BlockNumber()
	default:
		value, err := hexutil.DecodeUint64(tag)
		if err != nil {
			return 0, fmt.Errorf("invalid block tag %q", tag)
		}
		return value, nil
	}
}

// ChainID returns the remote chain id, fetched once and cached in memory.
// The disk cache partition is bound to it.
func (c *Client) ChainID() (*big.Int, error) {
	c.mu.Lock()
	if c.chainID != nil {
		defer c.mu.Unlock()
		return new(big.Int).Set(c.chainID), nil
	}
	c.mu.Unlock()

	var result hexutil.Big
	if err := c.call(&result, "eth_chainId"); err != nil {
		return nil, err
	}
	chainID := (*big.Int)(&result)

	c.mu.Lock()
	c.chainID = new(big.Int).Set(chainID)
	c.mu.Unlock()
	if c.cache != nil {
		c.cache.setChainID(chainID)
	}
	return chainID, nil
}

// BlockNumber returns the remote head number. The result is cached in
// memory for the chain's block time, amortizing safe-depth checks.
func (c *Client) BlockNumber() (uint64, error) {
	c.mu.Lock()
	chainID := c.chainID
	if !c.latestFetched.IsZero() && time.Since(c.latestFetched) < params.BlockTime(chainID) {
		defer c.mu.Unlock()
		return c.latest, nil
	}
	c.mu.Unlock()

	var result hexutil.Uint64
	if err := c.call(&result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.latest = uint64(result)
	c.latestFetched = time.Now()
	c.mu.Unlock()
	return uint64(result), nil
}

// BlockByNumber fetches a block with full transaction bodies.
func (c *Client) BlockByNumber(number uint64) (*types.Block, error) {
	args := []any{hexutil.EncodeUint64(number), true}
	key, err := numberedKey("eth_getBlockByNumber", args, number)
	if err != nil {
		return nil, err
	}
	var raw *rpcBlock
	if err := c.callCached(&raw, key, "eth_getBlockByNumber", args...); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return raw.toBlock(), nil
}

// BlockByHash fetches a block by hash; hash-addressed responses are always
// cacheable.
func (c *Client) BlockByHash(hash common.Hash) (*types.Block, error) {
	args := []any{hash, true}
	key, err := resolvedKey("eth_getBlockByHash", args)
	if err != nil {
		return nil, err
	}
	var raw *rpcBlock
	if err := c.callCached(&raw, key, "eth_getBlockByHash", args...); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return raw.toBlock(), nil
}

// BlockHashByTransaction resolves the including block of a transaction.
// Pending transactions resolve to the zero hash. The response is not cached:
// it changes as the transaction is mined.
func (c *Client) BlockHashByTransaction(txHash common.Hash) (common.Hash, error) {
	var raw *rpcTransaction
	if err := c.call(&raw, "eth_getTransactionByHash", txHash); err != nil {
		return common.Hash{}, err
	}
	if raw == nil || raw.BlockHash == nil {
		return common.Hash{}, nil
	}
	return *raw.BlockHash, nil
}

// TransactionReceipt fetches the receipt of a mined transaction, or nil.
func (c *Client) TransactionReceipt(txHash common.Hash) (*types.Receipt, error) {
	var raw *rpcReceipt
	if err := c.call(&raw, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return raw.toReceipt(), nil
}

// Logs queries logs in a concrete block range.
func (c *Client) Logs(fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]*types.Log, error) {
	query := logFilterQuery{
		FromBlock: hexutil.EncodeUint64(fromBlock),
		ToBlock:   hexutil.EncodeUint64(toBlock),
		Address:   addresses,
		Topics:    topics,
	}
	args := []any{query}
	key, err := numberedKey("eth_getLogs", args, toBlock)
	if err != nil {
		return nil, err
	}
	var logs []*types.Log
	if err := c.callCached(&logs, key, "eth_getLogs", args...); err != nil {
		return nil, err
	}
	return logs, nil
}

// AccountAt assembles the remote account record at a block number.
func (c *Client) AccountAt(addr common.Address, blockNumber uint64) (*state.Account, error) {
	tag := hexutil.EncodeUint64(blockNumber)

	var balance hexutil.Big
	args := []any{addr, tag}
	key, err := numberedKey("eth_getBalance", args, blockNumber)
	if err != nil {
		return nil, err
	}
	if err := c.callCached(&balance, key, "eth_getBalance", args...); err != nil {
		return nil, err
	}

	var nonce hexutil.Uint64
	if key, err = numberedKey("eth_getTransactionCount", args, blockNumber); err != nil {
		return nil, err
	}
	if err := c.callCached(&nonce, key, "eth_getTransactionCount", args...); err != nil {
		return nil, err
	}

	var code hexutil.Bytes
	if key, err = numberedKey("eth_getCode", args, blockNumber); err != nil {
		return nil, err
	}
	if err := c.callCached(&code, key, "eth_getCode", args...); err != nil {
		return nil, err
	}

	balanceInt, overflow := uint256.FromBig((*big.Int)(&balance))
	if overflow {
		return nil, fmt.Errorf("remote balance of %s overflows uint256", addr)
	}
	account := state.NewAccount(balanceInt)
	account.Nonce = uint64(nonce)
	if len(code) > 0 {
		account.Code = code
		account.CodeHash = crypto.Keccak256Hash(code)
	}
	return account, nil
}

// StorageAt reads one storage slot at a block number.
func (c *Client) StorageAt(addr common.Address, slot common.Hash, blockNumber uint64) (common.Hash, error) {
	tag := hexutil.EncodeUint64(blockNumber)
	args := []any{addr, slot, tag}
	key, err := numberedKey("eth_getStorageAt", args, blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	var value common.Hash
	if err := c.callCached(&value, key, "eth_getStorageAt", args...); err != nil {
		return common.Hash{}, err
	}
	return value, nil
}

// StateRootAt returns the declared state root of the block at the number.
func (c *Client) StateRootAt(blockNumber uint64) (common.Hash, error) {
	block, err := c.BlockByNumber(blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	if block == nil {
		return common.Hash{}, fmt.Errorf("remote block %d not found", blockNumber)
	}
	return block.Root(), nil
}
