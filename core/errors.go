package core

import (
	"errors"
	"fmt"

	"github.com/ethforge/devchain/params"
)

var (
	// ErrUnknownBlockNumber is returned when a block lookup by number misses.
	ErrUnknownBlockNumber = errors.New("unknown block number")

	// ErrUnknownBlockHash is returned when a block lookup by hash misses.
	ErrUnknownBlockHash = errors.New("unknown block hash")

	// ErrCannotDeleteRemote is returned when a revert would have to delete
	// remote blocks.
	ErrCannotDeleteRemote = errors.New("cannot delete remote block")

	// ErrInsertMissingParent is returned when an inserted block does not
	// extend the chain head.
	ErrInsertMissingParent = errors.New("block parent hash does not match the chain head")

	// ErrInsertInvalidNumber is returned when an inserted block's number is
	// not head+1.
	ErrInsertInvalidNumber = errors.New("block number does not extend the chain head")

	// ErrReservationTooLarge is returned when a block reservation exceeds the
	// configured cap.
	ErrReservationTooLarge = errors.New("block reservation too large")
)

// CreationError is returned when a forked blockchain cannot be constructed.
type CreationError struct {
	// InvalidBlockNumber context
	ForkBlockNumber   uint64
	LatestBlockNumber uint64

	// InvalidHardfork context
	ChainName string
	Hardfork  params.Hardfork

	kind creationErrorKind
	err  error
}

type creationErrorKind int

const (
	creationErrRpcClient creationErrorKind = iota
	creationErrInvalidBlockNumber
	creationErrInvalidHardfork
)

// NewRpcClientCreationError wraps a remote client failure.
func NewRpcClientCreationError(err error) *CreationError {
	return &CreationError{kind: creationErrRpcClient, err: err}
}

// NewInvalidBlockNumberError reports a fork block beyond the remote head.
func NewInvalidBlockNumberError(forkBlock, latest uint64) *CreationError {
	return &CreationError{kind: creationErrInvalidBlockNumber, ForkBlockNumber: forkBlock, LatestBlockNumber: latest}
}

// NewInvalidHardforkError reports a fork point before Spurious Dragon.
func NewInvalidHardforkError(forkBlock uint64, chainName string, hf params.Hardfork) *CreationError {
	return &CreationError{kind: creationErrInvalidHardfork, ForkBlockNumber: forkBlock, ChainName: chainName, Hardfork: hf}
}

func (e *CreationError) Error() string {
	switch e.kind {
	case creationErrInvalidBlockNumber:
		return fmt.Sprintf("Trying to initialize a provider with block %d but the current block is %d", e.ForkBlockNumber, e.LatestBlockNumber)
	case creationErrInvalidHardfork:
		return fmt.Sprintf("Cannot fork %s from block %d. The hardfork must be at least Spurious Dragon, but %s was detected.", e.ChainName, e.ForkBlockNumber, e.Hardfork)
	default:
		return e.err.Error()
	}
}

func (e *CreationError) Unwrap() error { return e.err }
