package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

func (d *providerData) evmIncreaseTime(raw []json.RawMessage) (string, error) {
	var seconds hexutil.Uint64
	if err := decodeParam(raw, 0, &seconds); err != nil {
		// Accept plain decimal numbers too, matching mainline tooling.
		var plain int64
		if err2 := decodeParam(raw, 0, &plain); err2 != nil {
			return "", err
		}
		d.timeOffset += plain
		return fmt.Sprintf("%d", d.timeOffset), nil
	}
	d.timeOffset += int64(seconds)
	return fmt.Sprintf("%d", d.timeOffset), nil
}

func (d *providerData) evmMine(raw []json.RawMessage) (string, error) {
	if len(raw) > 0 {
		var timestamp hexutil.Uint64
		if err := decodeParam(raw, 0, &timestamp); err == nil && timestamp > 0 {
			d.nextBlockTimestamp = uint64(timestamp)
		}
	}
	if _, err := d.mineAndCommit(); err != nil {
		return "", err
	}
	return "0", nil
}

func (d *providerData) evmRevert(raw []json.RawMessage) (bool, error) {
	var id hexutil.Uint64
	if err := decodeParam(raw, 0, &id); err != nil {
		return false, err
	}
	return d.revertToSnapshot(uint64(id))
}

func (d *providerData) evmSetAutomine(raw []json.RawMessage) (bool, error) {
	var enabled bool
	if err := decodeParam(raw, 0, &enabled); err != nil {
		return false, err
	}
	d.automine = enabled
	return true, nil
}

func (d *providerData) evmSetBlockGasLimit(raw []json.RawMessage) (bool, error) {
	var limit hexutil.Uint64
	if err := decodeParam(raw, 0, &limit); err != nil {
		return false, err
	}
	if limit == 0 {
		return false, invalidParams("block gas limit must be greater than zero")
	}
	d.blockGasLimit = uint64(limit)
	if err := d.pool.SetBlockGasLimit(uint64(limit), d.st); err != nil {
		return false, err
	}
	return true, nil
}

// evmSetIntervalMining reconfigures the background miner. This is the one
// evm_ handler living on the Provider rather than the data: it owns the
// goroutine.
func (p *Provider) evmSetIntervalMining(raw []json.RawMessage) (bool, error) {
	var interval int64
	if err := decodeParam(raw, 0, &interval); err != nil {
		// The parameter may also be a [min, max] pair.
		var bounds [2]int64
		if err2 := decodeParam(raw, 0, &bounds); err2 != nil {
			return false, err
		}
		p.restartIntervalMining(time.Duration(bounds[0])*time.Millisecond, time.Duration(bounds[1])*time.Millisecond)
		return true, nil
	}
	p.restartIntervalMining(time.Duration(interval)*time.Millisecond, 0)
	return true, nil
}

func (p *Provider) restartIntervalMining(interval, intervalMax time.Duration) {
	if p.intervalStop != nil {
		close(p.intervalStop)
		p.intervalStop = nil
	}
	if interval > 0 {
		p.startIntervalMining(interval, intervalMax)
	}
}

func (d *providerData) evmSetNextBlockTimestamp(raw []json.RawMessage) (string, error) {
	var timestamp hexutil.Uint64
	if err := decodeParam(raw, 0, &timestamp); err != nil {
		var plain uint64
		if err2 := decodeParam(raw, 0, &plain); err2 != nil {
			return "", err
		}
		timestamp = hexutil.Uint64(plain)
	}
	head, err := d.chain.LastBlock()
	if err != nil {
		return "", err
	}
	if uint64(timestamp) <= head.Time() {
		return "", invalidInput("Timestamp %d is lower than or equal to the previous block's timestamp %d", timestamp, head.Time())
	}
	d.nextBlockTimestamp = uint64(timestamp)
	return fmt.Sprintf("%d", timestamp), nil
}

func (d *providerData) evmSnapshot() (hexutil.Uint64, error) {
	return hexutil.Uint64(d.makeSnapshot()), nil
}
