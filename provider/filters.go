package provider

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethforge/devchain/core"
	"github.com/ethforge/devchain/core/types"
)

type filterKind int

const (
	blockFilter filterKind = iota
	logsFilter
	pendingTransactionsFilter
)

// filter is one installed poll-based filter. Subscriptions share the same
// machinery: an embeddable host polls changes instead of receiving pushes.
type filter struct {
	id   uint64
	kind filterKind

	criteria *filterCriteria

	hashes []common.Hash
	logs   []*types.Log
}

// filterCriteria is the JSON argument of eth_newFilter / eth_getLogs.
type filterCriteria struct {
	FromBlock *BlockSpec      `json:"fromBlock"`
	ToBlock   *BlockSpec      `json:"toBlock"`
	Address   addressOrList   `json:"address"`
	Topics    [][]common.Hash `json:"topics"`
}

// addressOrList accepts a single address or an address array.
type addressOrList []common.Address

func (a *addressOrList) UnmarshalJSON(input []byte) error {
	var single common.Address
	if err := json.Unmarshal(input, &single); err == nil {
		*a = addressOrList{single}
		return nil
	}
	var list []common.Address
	if err := json.Unmarshal(input, &list); err != nil {
		return err
	}
	*a = list
	return nil
}

// UnmarshalJSON tolerates topic entries that are a single hash, a hash
// list, or null (positional wildcard).
func (c *filterCriteria) UnmarshalJSON(input []byte) error {
	type raw struct {
		FromBlock *BlockSpec        `json:"fromBlock"`
		ToBlock   *BlockSpec        `json:"toBlock"`
		Address   addressOrList     `json:"address"`
		Topics    []json.RawMessage `json:"topics"`
	}
	var decoded raw
	if err := json.Unmarshal(input, &decoded); err != nil {
		return err
	}
	c.FromBlock = decoded.FromBlock
	c.ToBlock = decoded.ToBlock
	c.Address = decoded.Address
	c.Topics = nil
	for _, entry := range decoded.Topics {
		if string(entry) == "null" {
			c.Topics = append(c.Topics, nil)
			continue
		}
		var single common.Hash
		if err := json.Unmarshal(entry, &single); err == nil {
			c.Topics = append(c.Topics, []common.Hash{single})
			continue
		}
		var list []common.Hash
		if err := json.Unmarshal(entry, &list); err != nil {
			return err
		}
		c.Topics = append(c.Topics, list)
	}
	return nil
}

// toLogFilter resolves the criteria's block specs against the chain.
func (d *providerData) toLogFilter(criteria *filterCriteria) (core.LogFilter, error) {
	from := uint64(0)
	if criteria.FromBlock != nil {
		number, err := d.resolveBlockNumber(criteria.FromBlock)
		if err != nil {
			return core.LogFilter{}, err
		}
		from = number
	} else {
		from = d.chain.LastBlockNumber()
	}
	to := d.chain.LastBlockNumber()
	if criteria.ToBlock != nil {
		number, err := d.resolveBlockNumber(criteria.ToBlock)
		if err != nil {
			return core.LogFilter{}, err
		}
		to = number
	}
	return core.LogFilter{
		FromBlock: from,
		ToBlock:   to,
		Addresses: criteria.Address,
		Topics:    criteria.Topics,
	}, nil
}

func (d *providerData) installFilter(kind filterKind, criteria *filterCriteria) uint64 {
	d.nextFilterID++
	d.filters[d.nextFilterID] = &filter{id: d.nextFilterID, kind: kind, criteria: criteria}
	return d.nextFilterID
}

func (d *providerData) uninstallFilter(id uint64) bool {
	if _, ok := d.filters[id]; !ok {
		return false
	}
	delete(d.filters, id)
	return true
}

// notifyNewBlock feeds the new head and its logs into the installed
// filters and the head event feed.
func (d *providerData) notifyNewBlock(block *types.Block, receipts []*types.Receipt) {
	d.headFeed.Send(core.ChainHeadEvent{Block: block, Receipts: receipts})
	for _, f := range d.filters {
		switch f.kind {
		case blockFilter:
			f.hashes = append(f.hashes, block.Hash())
		case logsFilter:
			matcher := core.LogFilter{FromBlock: 0, ToBlock: ^uint64(0)}
			if f.criteria != nil {
				matcher.Addresses = f.criteria.Address
				matcher.Topics = f.criteria.Topics
			}
			for _, receipt := range receipts {
				for _, lg := range receipt.Logs {
					if logMatches(&matcher, lg) {
						f.logs = append(f.logs, lg)
					}
				}
			}
		}
	}
}

func (d *providerData) notifyPendingTransaction(tx *types.Transaction) {
	d.txFeed.Send(core.NewTxsEvent{Txs: []*types.Transaction{tx}})
	for _, f := range d.filters {
		if f.kind == pendingTransactionsFilter {
			f.hashes = append(f.hashes, tx.Hash())
		}
	}
}

// logMatches applies the address/topic criteria of a filter to one log.
func logMatches(f *core.LogFilter, lg *types.Log) bool {
	if len(f.Addresses) > 0 {
		found := false
		for _, addr := range f.Addresses {
			if addr == lg.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Topics) > len(lg.Topics) {
		return false
	}
	for i, alternatives := range f.Topics {
		if len(alternatives) == 0 {
			continue
		}
		found := false
		for _, topic := range alternatives {
			if lg.Topics[i] == topic {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
