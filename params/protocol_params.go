// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package params

const (
	TxGas                 uint64 = 21000 // Per transaction not creating a contract.
	TxGasContractCreation uint64 = 53000 // Per transaction that creates a contract.

	MaxCodeSize     = 24576           // Maximum bytecode to permit for a contract (EIP-170)
	MaxInitCodeSize = 2 * MaxCodeSize // Maximum initcode to permit in a creation transaction (EIP-3860)

	GasLimitBoundDivisor uint64 = 1024    // The bound divisor of the gas limit, used in update calculations.
	MinGasLimit          uint64 = 5000    // Minimum the gas limit may ever be.
	DefaultBlockGasLimit uint64 = 30_000_000

	BaseFeeChangeDenominator = 8          // Bounds the amount the base fee can change between blocks.
	ElasticityMultiplier     = 2          // Bounds the maximum gas limit an EIP-1559 block may have.
	InitialBaseFee           = 1000000000 // Initial base fee for EIP-1559 blocks.

	BlobTxBytesPerFieldElement       = 32      // Size in bytes of a field element
	BlobTxFieldElementsPerBlob       = 4096    // Number of field elements stored in a single data blob
	BlobTxBlobGasPerBlob      uint64 = 1 << 17 // Gas consumption of a single data blob (== blob byte size)
	BlobTxMinBlobGasprice     uint64 = 1       // Minimum gas price for data blobs

	MaxBlocksPerReservation uint64 = 1_000_000 // Cap on a single reserve-blocks gap
)

// Maximum RLP-encoded block size accepted by the builder: the devp2p 10 MiB
// message cap minus a 2 MiB margin for the enclosing message.
const MaxBlockRlpSize uint64 = 10*1024*1024 - 2*1024*1024

// BlockReward is the reward in wei credited to the beneficiary of a mined
// block. Post-merge development chains keep it at zero.
const BlockReward uint64 = 0

// BlobParams holds the per-fork blob count schedule.
type BlobParams struct {
	Target                uint64
	Max                   uint64
	UpdateFraction        uint64
}

// Blob schedules by fork; Cancun values, with the Prague (EIP-7691) raise.
var (
	CancunBlobParams = BlobParams{Target: 3, Max: 6, UpdateFraction: 3338477}
	PragueBlobParams = BlobParams{Target: 6, Max: 9, UpdateFraction: 5007716}
)

// BlobScheduleFor returns the blob parameters active at the given hardfork,
// or nil before Cancun.
func BlobScheduleFor(hf Hardfork) *BlobParams {
	switch {
	case hf >= Prague:
		p := PragueBlobParams
		return &p
	case hf >= Cancun:
		p := CancunBlobParams
		return &p
	default:
		return nil
	}
}

// MaxBlobGasPerBlock returns the blob gas ceiling for one block under these
// blob parameters.
func (p *BlobParams) MaxBlobGasPerBlock() uint64 {
	return p.Max * BlobTxBlobGasPerBlob
}

// TargetBlobGasPerBlock returns the 1559-style pricing target.
func (p *BlobParams) TargetBlobGasPerBlock() uint64 {
	return p.Target * BlobTxBlobGasPerBlob
}
