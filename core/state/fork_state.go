package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// RemoteReader supplies account and storage data of a remote chain at a
// pinned historical block number.
type RemoteReader interface {
	AccountAt(addr common.Address, blockNumber uint64) (*Account, error)
	StorageAt(addr common.Address, slot common.Hash, blockNumber uint64) (common.Hash, error)
}

// ForkState overlays local modifications on a remote chain's state at a
// fixed block number. Reads fall through to the remote node unless the
// account or slot was touched locally; the state root is declared rather
// than derived, because the full remote state is unknowable.
type ForkState struct {
	remote      RemoteReader
	blockNumber uint64

	overlay *MemoryState
	// touched marks accounts whose full account record is local; their reads
	// never fall through.
	touched map[common.Address]bool
	// touchedSlots marks individually overridden storage slots.
	touchedSlots map[common.Address]map[common.Hash]bool

	stateRoot common.Hash
}

// NewForkState creates a state rooted in the remote chain at blockNumber,
// declaring the given state root.
func NewForkState(remote RemoteReader, blockNumber uint64, stateRoot common.Hash) *ForkState {
	return &ForkState{
		remote:       remote,
		blockNumber:  blockNumber,
		overlay:      NewMemoryState(),
		touched:      make(map[common.Address]bool),
		touchedSlots: make(map[common.Address]map[common.Hash]bool),
		stateRoot:    stateRoot,
	}
}

func (s *ForkState) GetAccount(addr common.Address) (*Account, error) {
	if s.touched[addr] {
		return s.overlay.GetAccount(addr)
	}
	return s.remote.AccountAt(addr, s.blockNumber)
}

func (s *ForkState) GetNonce(addr common.Address) (uint64, error) {
	account, err := s.GetAccount(addr)
	if err != nil || account == nil {
		return 0, err
	}
	return account.Nonce, nil
}

func (s *ForkState) GetBalance(addr common.Address) (*uint256.Int, error) {
	account, err := s.GetAccount(addr)
	if err != nil || account == nil {
		return new(uint256.Int), err
	}
	return new(uint256.Int).Set(account.Balance), nil
}

func (s *ForkState) GetCode(addr common.Address) ([]byte, error) {
	account, err := s.GetAccount(addr)
	if err != nil || account == nil {
		return nil, err
	}
	return account.Code, nil
}

func (s *ForkState) GetStorage(addr common.Address, slot common.Hash) (common.Hash, error) {
	if slots, ok := s.touchedSlots[addr]; ok && slots[slot] {
		return s.overlay.GetStorage(addr, slot)
	}
	if s.touched[addr] && s.remote == nil {
		return s.overlay.GetStorage(addr, slot)
	}
	return s.remote.StorageAt(addr, slot, s.blockNumber)
}

// materialize copies the remote account into the overlay so subsequent
// mutations are purely local.
func (s *ForkState) materialize(addr common.Address) (*Account, error) {
	if s.touched[addr] {
		account, _ := s.overlay.GetAccount(addr)
		if account == nil {
			account = NewAccount(new(uint256.Int))
			s.overlay.SetAccount(addr, account)
		}
		return account, nil
	}
	account, err := s.remote.AccountAt(addr, s.blockNumber)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = NewAccount(new(uint256.Int))
	}
	s.overlay.SetAccount(addr, account)
	s.touched[addr] = true
	return account, nil
}

func (s *ForkState) SetAccount(addr common.Address, account *Account) error {
	s.touched[addr] = true
	return s.overlay.SetAccount(addr, account)
}

func (s *ForkState) SetNonce(addr common.Address, nonce uint64) error {
	account, err := s.materialize(addr)
	if err != nil {
		return err
	}
	account.Nonce = nonce
	return s.overlay.SetAccount(addr, account)
}

func (s *ForkState) SetBalance(addr common.Address, balance *uint256.Int) error {
	account, err := s.materialize(addr)
	if err != nil {
		return err
	}
	account.Balance = new(uint256.Int).Set(balance)
	return s.overlay.SetAccount(addr, account)
}

func (s *ForkState) AddBalance(addr common.Address, amount *uint256.Int) error {
	account, err := s.materialize(addr)
	if err != nil {
		return err
	}
	account.Balance = new(uint256.Int).Add(account.Balance, amount)
	return s.overlay.SetAccount(addr, account)
}

func (s *ForkState) SetCode(addr common.Address, code []byte) error {
	account, err := s.materialize(addr)
	if err != nil {
		return err
	}
	account.Code = common.CopyBytes(code)
	account.CodeHash = crypto.Keccak256Hash(code)
	return s.overlay.SetAccount(addr, account)
}

func (s *ForkState) SetStorage(addr common.Address, slot, value common.Hash) error {
	slots, ok := s.touchedSlots[addr]
	if !ok {
		slots = make(map[common.Hash]bool)
		s.touchedSlots[addr] = slots
	}
	slots[slot] = true
	return s.overlay.SetStorage(addr, slot, value)
}

func (s *ForkState) ApplyDiff(diff *StateDiff) error {
	if diff == nil {
		return nil
	}
	for addr, account := range diff.Accounts {
		if err := s.SetAccount(addr, account); err != nil {
			return err
		}
	}
	for addr, slots := range diff.Storage {
		for slot, value := range slots {
			if err := s.SetStorage(addr, slot, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// StateRoot returns the declared root. A fork state cannot derive a true
// root without the complete remote state.
func (s *ForkState) StateRoot() (common.Hash, error) {
	return s.stateRoot, nil
}

// SetStateRoot declares a new state root after replaying diffs.
func (s *ForkState) SetStateRoot(root common.Hash) {
	s.stateRoot = root
}

func (s *ForkState) Copy() StateDB {
	cpy := NewForkState(s.remote, s.blockNumber, s.stateRoot)
	cpy.overlay = s.overlay.Copy().(*MemoryState)
	for addr := range s.touched {
		cpy.touched[addr] = true
	}
	for addr, slots := range s.touchedSlots {
		dst := make(map[common.Hash]bool, len(slots))
		for slot := range slots {
			dst[slot] = true
		}
		cpy.touchedSlots[addr] = dst
	}
	return cpy
}
