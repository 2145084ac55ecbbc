// Package provider implements the single-writer JSON-RPC dispatcher of the
// development chain. Every method — reads included — runs under one mutex,
// making requests submitted to the same provider linearizable. An optional
// interval miner shares the same lock and therefore cannot race handlers.
package provider

import (
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethforge/devchain/core"
)

// ClientVersion is reported by web3_clientVersion.
const ClientVersion = "devchain/v1.0.0"

// Provider owns the chain, mempool and state behind a single mutex and
// dispatches JSON-RPC methods to handlers.
type Provider struct {
	mu   sync.Mutex
	data *providerData

	closed       atomic.Bool
	intervalStop chan struct{}
	intervalDone chan struct{}
}

// NewProvider constructs a provider and, when configured, starts the
// interval miner.
func NewProvider(config *Config) (*Provider, error) {
	data, err := newProviderData(config)
	if err != nil {
		return nil, err
	}
	p := &Provider{data: data}
	if config.MiningInterval > 0 {
		p.startIntervalMining(config.MiningInterval, config.MiningIntervalMax)
	}
	return p, nil
}

// Close tears the provider down. The interval miner observes the teardown
// flag at its next lock acquisition and terminates.
func (p *Provider) Close() {
	if p.closed.Swap(true) {
		return
	}
	if p.intervalStop != nil {
		close(p.intervalStop)
		<-p.intervalDone
	}
}

// startIntervalMining launches the background miner. The goroutine
// re-checks the teardown flag after every lock acquisition so shutdown can
// never deadlock against a held mutex.
func (p *Provider) startIntervalMining(interval, intervalMax time.Duration) {
	p.intervalStop = make(chan struct{})
	p.intervalDone = make(chan struct{})
	go func() {
		defer close(p.intervalDone)
		for {
			wait := interval
			if intervalMax > interval {
				wait = interval + time.Duration(rand.Int63n(int64(intervalMax-interval)))
			}
			select {
			case <-p.intervalStop:
				return
			case <-time.After(wait):
			}
			p.mu.Lock()
			if p.closed.Load() {
				p.mu.Unlock()
				return
			}
			if _, err := p.data.mineAndCommit(); err != nil {
				log.Error("Interval mining failed", "err", err)
			}
			p.mu.Unlock()
		}
	}()
}

// SubscribeChainHead delivers a core.ChainHeadEvent for every mined block.
func (p *Provider) SubscribeChainHead(ch chan<- core.ChainHeadEvent) event.Subscription {
	return p.data.headFeed.Subscribe(ch)
}

// SubscribeNewTxs delivers a core.NewTxsEvent for every pooled transaction.
func (p *Provider) SubscribeNewTxs(ch chan<- core.NewTxsEvent) event.Subscription {
	return p.data.txFeed.Subscribe(ch)
}

// HandleRequest dispatches a single method invocation under the provider
// lock.
func (p *Provider) HandleRequest(method string, params []json.RawMessage) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dispatch(method, params)
}

// HandleBatch executes the requests in submission order; element i observes
// all state changes of elements before it. The first failure aborts the
// batch.
func (p *Provider) HandleBatch(requests []Request) ([]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make([]any, 0, len(requests))
	for _, request := range requests {
		result, err := p.dispatch(request.Method, request.Params)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// HandleJSON decodes a raw single request and produces the matching raw
// response; transport layers embed the provider through this entry point.
func (p *Provider) HandleJSON(data []byte) []byte {
	var request Request
	response := Response{JSONRPC: "2.0"}
	if err := json.Unmarshal(data, &request); err != nil {
		response.Error = invalidParams("invalid request: %v", err)
	} else {
		response.ID = request.ID
		result, err := p.HandleRequest(request.Method, request.Params)
		if err != nil {
			response.Error = toRpcError(err)
		} else {
			response.Result = result
		}
	}
	encoded, err := json.Marshal(&response)
	if err != nil {
		encoded, _ = json.Marshal(&Response{JSONRPC: "2.0", ID: request.ID, Error: internalError(err)})
	}
	return encoded
}

// dispatch routes a method to its handler. Callers must hold p.mu.
func (p *Provider) dispatch(method string, params []json.RawMessage) (result any, err error) {
	d := p.data
	if d.loggingEnabled {
		log.Debug("Handling request", "method", method)
	}
	defer func() {
		if err != nil {
			err = toRpcError(err)
		}
	}()

	switch method {
	// eth_ namespace
	case "eth_accounts":
		return d.ethAccounts()
	case "eth_blockNumber":
		return d.ethBlockNumber()
	case "eth_chainId":
		return d.ethChainID()
	case "eth_coinbase":
		return d.ethCoinbase()
	case "eth_call":
		return d.ethCall(params)
	case "eth_estimateGas":
		return d.ethEstimateGas(params)
	case "eth_gasPrice":
		return d.ethGasPrice()
	case "eth_maxPriorityFeePerGas":
		return d.ethMaxPriorityFeePerGas()
	case "eth_blobBaseFee":
		return d.ethBlobBaseFee()
	case "eth_feeHistory":
		return d.ethFeeHistory(params)
	case "eth_getBalance":
		return d.ethGetBalance(params)
	case "eth_getCode":
		return d.ethGetCode(params)
	case "eth_getStorageAt":
		return d.ethGetStorageAt(params)
	case "eth_getTransactionCount":
		return d.ethGetTransactionCount(params)
	case "eth_getBlockByNumber":
		return d.ethGetBlockByNumber(params)
	case "eth_getBlockByHash":
		return d.ethGetBlockByHash(params)
	case "eth_getBlockTransactionCountByNumber":
		return d.ethGetBlockTransactionCountByNumber(params)
	case "eth_getBlockTransactionCountByHash":
		return d.ethGetBlockTransactionCountByHash(params)
	case "eth_getTransactionByHash":
		return d.ethGetTransactionByHash(params)
	case "eth_getTransactionReceipt":
		return d.ethGetTransactionReceipt(params)
	case "eth_getLogs":
		return d.ethGetLogs(params)
	case "eth_sendTransaction":
		return d.ethSendTransaction(params)
	case "eth_sendRawTransaction":
		return d.ethSendRawTransaction(params)
	case "eth_pendingTransactions":
		return d.ethPendingTransactions()
	case "eth_newFilter":
		return d.ethNewFilter(params)
	case "eth_newBlockFilter":
		return d.ethNewBlockFilter()
	case "eth_newPendingTransactionFilter":
		return d.ethNewPendingTransactionFilter()
	case "eth_getFilterChanges":
		return d.ethGetFilterChanges(params)
	case "eth_getFilterLogs":
		return d.ethGetFilterLogs(params)
	case "eth_uninstallFilter":
		return d.ethUninstallFilter(params)
	case "eth_subscribe":
		return d.ethSubscribe(params)
	case "eth_unsubscribe":
		return d.ethUninstallFilter(params)
	case "eth_syncing":
		return false, nil

	// evm_ namespace
	case "evm_increaseTime":
		return d.evmIncreaseTime(params)
	case "evm_mine":
		return d.evmMine(params)
	case "evm_revert":
		return d.evmRevert(params)
	case "evm_setAutomine":
		return d.evmSetAutomine(params)
	case "evm_setBlockGasLimit":
		return d.evmSetBlockGasLimit(params)
	case "evm_setIntervalMining":
		return p.evmSetIntervalMining(params)
	case "evm_setNextBlockTimestamp":
		return d.evmSetNextBlockTimestamp(params)
	case "evm_snapshot":
		return d.evmSnapshot()

	// hardhat_ namespace
	case "hardhat_dropTransaction":
		return d.hardhatDropTransaction(params)
	case "hardhat_getAutomine":
		return d.automine, nil
	case "hardhat_impersonateAccount":
		return d.hardhatImpersonateAccount(params)
	case "hardhat_stopImpersonatingAccount":
		return d.hardhatStopImpersonatingAccount(params)
	case "hardhat_mine":
		return d.hardhatMine(params)
	case "hardhat_setBalance":
		return d.hardhatSetBalance(params)
	case "hardhat_setCode":
		return d.hardhatSetCode(params)
	case "hardhat_setCoinbase":
		return d.hardhatSetCoinbase(params)
	case "hardhat_setLoggingEnabled":
		return d.hardhatSetLoggingEnabled(params)
	case "hardhat_setMinGasPrice":
		return d.hardhatSetMinGasPrice(params)
	case "hardhat_setNextBlockBaseFeePerGas":
		return d.hardhatSetNextBlockBaseFeePerGas(params)
	case "hardhat_setNonce":
		return d.hardhatSetNonce(params)
	case "hardhat_setPrevRandao":
		return d.hardhatSetPrevRandao(params)
	case "hardhat_setStorageAt":
		return d.hardhatSetStorageAt(params)
	case "hardhat_metadata":
		return d.hardhatMetadata()

	// debug_ namespace
	case "debug_traceTransaction":
		return d.debugTraceTransaction(params)
	case "debug_traceCall":
		return d.debugTraceCall(params)

	// web3_ namespace
	case "web3_clientVersion":
		return ClientVersion, nil
	case "web3_sha3":
		return d.web3Sha3(params)

	default:
		return nil, methodNotFound(method)
	}
}
