// Package genesis maintains the deterministic first block of the chain.
// Every node must produce a byte-identical genesis so the chain has a
// single root hash across implementations.
package genesis

import (
	"github.com/holiman/uint256"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/crypt"
)

// The fixed genesis constants. Changing any of these forks the network.
const (
	// Timestamp is the fixed creation time of the chain.
	Timestamp uint32 = 1583789617

	// Recipient is the base58 address granted the entire supply.
	Recipient = "49cfqVfB1gTGw5XZSu6nZDrntLr1"
)

// Block constructs the genesis block: depth zero, zero previous hash,
// null coinbase, and a single unsigned transaction moving the full
// 256 bit supply from the null address to the fixed recipient.
func Block() database.Block {
	to, err := database.ToAddress(Recipient)
	if err != nil {
		// The recipient is a compile-time constant; a decode failure is
		// a build defect, not a runtime condition.
		panic(err)
	}

	var supply uint256.Int
	supply.Not(&supply)

	tx := database.Tx{
		From:      database.NullAddress(),
		To:        to,
		Amount:    supply,
		Fee:       0,
		Timestamp: Timestamp,
	}

	return database.Block{
		Depth:     0,
		PrevHash:  crypt.Hash{},
		Timestamp: Timestamp,
		Coinbase:  database.NullAddress(),
		Nonce:     0,
		Trans:     []database.Tx{tx},
	}
}

// Hash returns the hash of the genesis block.
func Hash() crypt.Hash {
	return Block().Hash()
}
