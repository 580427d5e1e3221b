package database

import (
	"github.com/tidechain/tide/foundation/crypt"
)

// AccountType tells a plain balance-holding account from a deployed
// contract.
type AccountType uint8

// The set of account types.
const (
	AccountClient AccountType = iota
	AccountContract
)

// String implements the fmt.Stringer interface for logging.
func (t AccountType) String() string {
	switch t {
	case AccountClient:
		return "CLIENT"
	case AccountContract:
		return "CONTRACT"
	}
	return "UNKNOWN"
}

// =============================================================================

// StorageValue is one 32 byte cell of contract storage. The modified flag
// is set whenever the cell is written; nothing in the node reads it.
type StorageValue struct {
	Data        [32]byte
	WasModified bool
}

// AccountState is everything the chain knows about one account. A client
// account carries a balance and the hashes of transactions it has sent.
// A contract account additionally carries its runtime code, the hash of
// its deployment code, and its storage cells.
type AccountState struct {
	Type        AccountType
	Balance     Balance
	TxHashes    []crypt.Hash
	CodeHash    crypt.Hash
	RuntimeCode []byte
	Storage     map[crypt.Hash]StorageValue
}

// newClientAccount returns an empty client account.
func newClientAccount() *AccountState {
	return &AccountState{
		Type:    AccountClient,
		Storage: make(map[crypt.Hash]StorageValue),
	}
}

// newContractAccount returns a contract account shell for the specified
// deployment code hash. Runtime code is attached after the deploy call
// returns.
func newContractAccount(codeHash crypt.Hash) *AccountState {
	return &AccountState{
		Type:     AccountContract,
		CodeHash: codeHash,
		Storage:  make(map[crypt.Hash]StorageValue),
	}
}

// copy performs the deep clone used when an account migrates from the
// canonical state into a speculative snapshot.
func (as *AccountState) copy() *AccountState {
	cp := AccountState{
		Type:     as.Type,
		Balance:  as.Balance,
		CodeHash: as.CodeHash,
		Storage:  make(map[crypt.Hash]StorageValue, len(as.Storage)),
	}

	cp.TxHashes = append(cp.TxHashes, as.TxHashes...)
	cp.RuntimeCode = append(cp.RuntimeCode, as.RuntimeCode...)
	for k, v := range as.Storage {
		cp.Storage[k] = v
	}

	return &cp
}

// =============================================================================

// AccountInfo is the query answer for one account, safe to hand out
// without exposing internal state.
type AccountInfo struct {
	Type     AccountType
	Address  Address
	Balance  Balance
	TxHashes []crypt.Hash
	CodeHash crypt.Hash
}
