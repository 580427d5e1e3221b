package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tidechain/tide/foundation/crypt"
)

// Sentinel errors produced by state mutation.
var (
	ErrNotEnoughBalance = errors.New("not enough balance")
	ErrBalanceOverflow  = errors.New("balance overflow")
	ErrAlreadyExists    = errors.New("account already exists")
)

// StorageSetStatus reports how a storage write changed the cell, for the
// VM's gas accounting.
type StorageSetStatus uint8

// The set of storage write outcomes.
const (
	StorageUnchanged StorageSetStatus = iota
	StorageAdded
	StorageModified
	StorageDeleted
)

// =============================================================================

// StateManager owns the canonical account state: balances, contract code,
// and per-contract storage. Reads take a shared lock. The only writes are
// ApplyChanges, which merges a completed speculative snapshot in, and
// UpdateFromGenesis during startup. Every transaction executes against a
// Snapshot so a failure never leaks partial effects.
type StateManager struct {
	mu       sync.RWMutex
	accounts map[Address]*AccountState
}

// NewStateManager constructs an empty state.
func NewStateManager() *StateManager {
	return &StateManager{
		accounts: make(map[Address]*AccountState),
	}
}

// HasAccount reports whether the address has a record.
func (sm *StateManager) HasAccount(addr Address) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, exists := sm.accounts[addr]
	return exists
}

// Balance returns the balance of the address, zero for unknown accounts.
func (sm *StateManager) Balance(addr Address) Balance {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if as, exists := sm.accounts[addr]; exists {
		return as.Balance
	}
	return Balance{}
}

// AccountType returns the type recorded for the address. Unknown
// addresses read as client accounts.
func (sm *StateManager) AccountType(addr Address) AccountType {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if as, exists := sm.accounts[addr]; exists {
		return as.Type
	}
	return AccountClient
}

// CheckTransaction reports whether the sender holds amount + fee.
func (sm *StateManager) CheckTransaction(tx Tx) bool {
	cost, err := tx.Cost()
	if err != nil {
		return false
	}

	balance := sm.Balance(tx.From)
	return balance.Cmp(&cost) >= 0
}

// AccountInfo returns the query view of one account.
func (sm *StateManager) AccountInfo(addr Address) AccountInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	info := AccountInfo{Type: AccountClient, Address: addr}
	if as, exists := sm.accounts[addr]; exists {
		info.Type = as.Type
		info.Balance = as.Balance
		info.TxHashes = append(info.TxHashes, as.TxHashes...)
		info.CodeHash = as.CodeHash
	}
	return info
}

// RuntimeCode returns a copy of the contract code stored at the address.
func (sm *StateManager) RuntimeCode(addr Address) []byte {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if as, exists := sm.accounts[addr]; exists {
		return append([]byte(nil), as.RuntimeCode...)
	}
	return nil
}

// UpdateFromGenesis seeds the initial balances from the genesis block's
// single transaction: the full monetary supply moves from the null
// address to the genesis recipient.
func (sm *StateManager) UpdateFromGenesis(genesis Block) error {
	if len(genesis.Trans) != 1 {
		return fmt.Errorf("genesis must carry exactly one transaction, has %d", len(genesis.Trans))
	}

	tx := genesis.Trans[0]
	if !tx.From.IsNull() {
		return errors.New("genesis transaction must originate from the null address")
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	as := newClientAccount()
	as.Balance = tx.Amount
	as.TxHashes = append(as.TxHashes, tx.Hash())
	sm.accounts[tx.To] = as
	return nil
}

// CreateCopy returns a speculative snapshot for executing one
// transaction. The snapshot copies accounts lazily as they are touched;
// nothing reaches the canonical state until ApplyChanges.
func (sm *StateManager) CreateCopy() *Snapshot {
	return &Snapshot{
		base:    sm,
		touched: make(map[Address]*AccountState),
		deleted: make(map[Address]struct{}),
	}
}

// ApplyChanges merges a completed snapshot in: deletions first, then a
// total replace of every touched entry, all under the writer lock.
func (sm *StateManager) ApplyChanges(snap *Snapshot) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for addr := range snap.deleted {
		delete(sm.accounts, addr)
	}
	for addr, as := range snap.touched {
		sm.accounts[addr] = as
	}
}

// TotalAccounts returns the number of account records.
func (sm *StateManager) TotalAccounts() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.accounts)
}

// =============================================================================

// Snapshot is the copy-on-write overlay a single transaction executes
// against. It is not safe for concurrent use; each execution owns its
// snapshot exclusively.
type Snapshot struct {
	base    *StateManager
	touched map[Address]*AccountState
	deleted map[Address]struct{}
}

// account returns the overlay entry for the address, pulling a deep copy
// from the canonical state on first touch. A previously unknown address
// materializes as an empty client account.
func (s *Snapshot) account(addr Address) *AccountState {
	if as, exists := s.touched[addr]; exists {
		return as
	}

	if _, wasDeleted := s.deleted[addr]; !wasDeleted {
		s.base.mu.RLock()
		base, exists := s.base.accounts[addr]
		s.base.mu.RUnlock()

		if exists {
			cp := base.copy()
			s.touched[addr] = cp
			return cp
		}
	}

	as := newClientAccount()
	s.touched[addr] = as
	delete(s.deleted, addr)
	return as
}

// HasAccount reports whether the address has a record in the overlay or
// underneath it.
func (s *Snapshot) HasAccount(addr Address) bool {
	if _, exists := s.touched[addr]; exists {
		return true
	}
	if _, wasDeleted := s.deleted[addr]; wasDeleted {
		return false
	}
	return s.base.HasAccount(addr)
}

// Balance returns the address balance as seen by this snapshot.
func (s *Snapshot) Balance(addr Address) Balance {
	if as, exists := s.touched[addr]; exists {
		return as.Balance
	}
	if _, wasDeleted := s.deleted[addr]; wasDeleted {
		return Balance{}
	}
	return s.base.Balance(addr)
}

// AccountType returns the account type as seen by this snapshot.
func (s *Snapshot) AccountType(addr Address) AccountType {
	if as, exists := s.touched[addr]; exists {
		return as.Type
	}
	if _, wasDeleted := s.deleted[addr]; wasDeleted {
		return AccountClient
	}
	return s.base.AccountType(addr)
}

// AddBalance credits the address, failing on 256 bit overflow.
func (s *Snapshot) AddBalance(addr Address, amount Balance) error {
	as := s.account(addr)

	var sum Balance
	if _, overflow := sum.AddOverflow(&as.Balance, &amount); overflow {
		return ErrBalanceOverflow
	}
	as.Balance = sum
	return nil
}

// SubBalance debits the address, failing when the balance is short.
func (s *Snapshot) SubBalance(addr Address, amount Balance) error {
	as := s.account(addr)

	var diff Balance
	if _, underflow := diff.SubOverflow(&as.Balance, &amount); underflow {
		return ErrNotEnoughBalance
	}
	as.Balance = diff
	return nil
}

// TryTransfer atomically moves amount between two accounts. It reports
// false when the sender's balance is short; the snapshot is unchanged in
// that case.
func (s *Snapshot) TryTransfer(from Address, to Address, amount Balance) bool {
	fromBalance := s.Balance(from)
	if fromBalance.Cmp(&amount) < 0 {
		return false
	}

	if err := s.SubBalance(from, amount); err != nil {
		return false
	}
	if err := s.AddBalance(to, amount); err != nil {
		// Roll the debit back so a receiver overflow can't burn funds.
		fromAcct := s.account(from)
		fromAcct.Balance = fromBalance
		return false
	}
	return true
}

// AddTransactionHash appends a sent-transaction hash to the account
// record.
func (s *Snapshot) AddTransactionHash(addr Address, hash crypt.Hash) {
	as := s.account(addr)
	as.TxHashes = append(as.TxHashes, hash)
}

// CreateContractAccount derives the deterministic contract address
// RIPEMD160(SHA256(creator || code_hash)) and installs an empty contract
// account there.
func (s *Snapshot) CreateContractAccount(creator Address, codeHash crypt.Hash) (Address, error) {
	seed := make([]byte, 0, AddressLength+crypt.HashSize)
	seed = append(seed, creator.Bytes()...)
	seed = append(seed, codeHash.Bytes()...)
	addr := Address(crypt.Ripemd160(crypt.Sha256(seed).Bytes()))

	if s.HasAccount(addr) {
		return Address{}, fmt.Errorf("contract address %s: %w", addr, ErrAlreadyExists)
	}

	s.touched[addr] = newContractAccount(codeHash)
	delete(s.deleted, addr)
	return addr, nil
}

// SetRuntimeCode attaches the deployed code to a contract account.
func (s *Snapshot) SetRuntimeCode(addr Address, code []byte) {
	as := s.account(addr)
	as.RuntimeCode = append([]byte(nil), code...)
}

// RuntimeCode returns the contract code as seen by this snapshot.
func (s *Snapshot) RuntimeCode(addr Address) []byte {
	if as, exists := s.touched[addr]; exists {
		return as.RuntimeCode
	}
	if _, wasDeleted := s.deleted[addr]; wasDeleted {
		return nil
	}
	return s.base.RuntimeCode(addr)
}

// CodeHash returns the deployment code hash of the account.
func (s *Snapshot) CodeHash(addr Address) crypt.Hash {
	if as, exists := s.touched[addr]; exists {
		return as.CodeHash
	}
	if _, wasDeleted := s.deleted[addr]; wasDeleted {
		return crypt.Hash{}
	}

	s.base.mu.RLock()
	defer s.base.mu.RUnlock()
	if as, exists := s.base.accounts[addr]; exists {
		return as.CodeHash
	}
	return crypt.Hash{}
}

// HasStorageValue reports whether the cell has ever been written.
func (s *Snapshot) HasStorageValue(addr Address, key crypt.Hash) bool {
	_, exists := s.storageValue(addr, key)
	return exists
}

// StorageValue returns the current cell value, the zero word when the
// cell is absent.
func (s *Snapshot) StorageValue(addr Address, key crypt.Hash) [32]byte {
	v, _ := s.storageValue(addr, key)
	return v
}

func (s *Snapshot) storageValue(addr Address, key crypt.Hash) ([32]byte, bool) {
	if as, exists := s.touched[addr]; exists {
		v, ok := as.Storage[key]
		return v.Data, ok
	}
	if _, wasDeleted := s.deleted[addr]; wasDeleted {
		return [32]byte{}, false
	}

	s.base.mu.RLock()
	defer s.base.mu.RUnlock()
	if as, exists := s.base.accounts[addr]; exists {
		v, ok := as.Storage[key]
		return v.Data, ok
	}
	return [32]byte{}, false
}

// SetStorageValue writes one cell and classifies the write against the
// cell's prior state.
func (s *Snapshot) SetStorageValue(addr Address, key crypt.Hash, value [32]byte) StorageSetStatus {
	var zero [32]byte
	old, existed := s.storageValue(addr, key)

	as := s.account(addr)
	if !existed {
		if value == zero {
			return StorageUnchanged
		}
		as.Storage[key] = StorageValue{Data: value, WasModified: true}
		return StorageAdded
	}

	as.Storage[key] = StorageValue{Data: value, WasModified: true}
	switch {
	case old == value:
		return StorageUnchanged
	case value == zero:
		return StorageDeleted
	}
	return StorageModified
}

// DeleteAccount removes the account, used by contract self-destruct.
func (s *Snapshot) DeleteAccount(addr Address) {
	delete(s.touched, addr)
	s.deleted[addr] = struct{}{}
}

// Touched returns the number of accounts this snapshot has pulled into
// its overlay.
func (s *Snapshot) Touched() int {
	return len(s.touched) + len(s.deleted)
}
