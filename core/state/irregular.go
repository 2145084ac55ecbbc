package state

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// StateOverride is a per-block state change that is not derivable from
// transaction execution, e.g. a predeploy injected at the fork block.
type StateOverride struct {
	Diff      *StateDiff
	StateRoot common.Hash
}

// IrregularState tracks state overrides keyed by block number. State
// materialization replays these on top of the executed diffs.
type IrregularState struct {
	overrides map[uint64]*StateOverride
}

// NewIrregularState creates an empty override set.
func NewIrregularState() *IrregularState {
	return &IrregularState{overrides: make(map[uint64]*StateOverride)}
}

// StateOverrideAt returns the override registered for the block, or nil.
func (s *IrregularState) StateOverrideAt(blockNumber uint64) *StateOverride {
	return s.overrides[blockNumber]
}

// SetStateOverride registers (or replaces) the override for a block.
func (s *IrregularState) SetStateOverride(blockNumber uint64, override *StateOverride) {
	s.overrides[blockNumber] = override
}

// OverridesUpTo returns the overrides for blocks in [from, to], ordered by
// block number.
func (s *IrregularState) OverridesUpTo(from, to uint64) []*StateOverride {
	numbers := make([]uint64, 0, len(s.overrides))
	for number := range s.overrides {
		if number >= from && number <= to {
			numbers = append(numbers, number)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	result := make([]*StateOverride, len(numbers))
	for i, number := range numbers {
		result[i] = s.overrides[number]
	}
	return result
}

// RemoveAfter drops overrides for blocks with number > n, used on revert.
func (s *IrregularState) RemoveAfter(n uint64) {
	for number := range s.overrides {
		if number > n {
			delete(s.overrides, number)
		}
	}
}

// Copy returns a deep copy of the irregular state.
func (s *IrregularState) Copy() *IrregularState {
	cpy := NewIrregularState()
	for number, override := range s.overrides {
		cpy.overrides[number] = &StateOverride{
			Diff:      override.Diff.Copy(),
			StateRoot: override.StateRoot,
		}
	}
	return cpy
}
