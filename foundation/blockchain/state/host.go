package state

import (
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/vm"
	"github.com/tidechain/tide/foundation/crypt"
)

// ethHost is the transient VM host constructed for one evaluator
// invocation. It borrows the core for chain queries and the speculative
// snapshot the transaction executes against, and it is gone when the
// evaluator returns. Every callback is total: an internal failure
// produces the zero result, never a panic across the VM boundary.
type ethHost struct {
	core  *Core
	snap  *database.Snapshot
	block database.Block
	tx    database.Tx
}

// guard converts a panic inside a callback into the zero result.
func guard() {
	_ = recover()
}

// AccountExists implements the vm.Host interface.
func (h *ethHost) AccountExists(addr database.Address) bool {
	defer guard()
	return h.snap.HasAccount(addr)
}

// GetStorage implements the vm.Host interface.
func (h *ethHost) GetStorage(addr database.Address, key crypt.Hash) [32]byte {
	defer guard()
	return h.snap.StorageValue(addr, key)
}

// SetStorage implements the vm.Host interface.
func (h *ethHost) SetStorage(addr database.Address, key crypt.Hash, value [32]byte) vm.StorageStatus {
	defer guard()

	switch h.snap.SetStorageValue(addr, key, value) {
	case database.StorageAdded:
		return vm.StorageAdded
	case database.StorageModified:
		return vm.StorageModified
	case database.StorageDeleted:
		return vm.StorageDeleted
	}
	return vm.StorageUnchanged
}

// GetBalance implements the vm.Host interface.
func (h *ethHost) GetBalance(addr database.Address) database.Balance {
	defer guard()
	return h.snap.Balance(addr)
}

// GetCodeSize implements the vm.Host interface.
func (h *ethHost) GetCodeSize(addr database.Address) int {
	defer guard()
	return len(h.snap.RuntimeCode(addr))
}

// GetCodeHash implements the vm.Host interface.
func (h *ethHost) GetCodeHash(addr database.Address) crypt.Hash {
	defer guard()
	return h.snap.CodeHash(addr)
}

// CopyCode implements the vm.Host interface.
func (h *ethHost) CopyCode(addr database.Address, offset int, buf []byte) int {
	defer guard()

	code := h.snap.RuntimeCode(addr)
	if offset < 0 || offset >= len(code) {
		return 0
	}
	return copy(buf, code[offset:])
}

// SelfDestruct implements the vm.Host interface: the remaining balance
// moves to the beneficiary and the account is removed, freeing its
// storage.
func (h *ethHost) SelfDestruct(addr database.Address, beneficiary database.Address) {
	defer guard()

	balance := h.snap.Balance(addr)
	h.snap.TryTransfer(addr, beneficiary, balance)
	h.snap.DeleteAccount(addr)
}

// Call implements the vm.Host interface. A call into a contract account
// recurses into the evaluator with that contract's code; a call into
// anything else is a plain transfer that succeeds with the gas intact.
func (h *ethHost) Call(msg vm.Message) vm.Result {
	defer guard()

	if h.snap.HasAccount(msg.Destination) && h.snap.AccountType(msg.Destination) == database.AccountContract {
		code := h.snap.RuntimeCode(msg.Destination)
		msg.Depth++
		return h.core.evaluator.Execute(h, msg, code)
	}

	h.snap.TryTransfer(msg.Sender, msg.Destination, msg.Value)
	return vm.Result{Status: vm.Success, GasLeft: msg.Gas}
}

// TxContext implements the vm.Host interface.
func (h *ethHost) TxContext() vm.TxContext {
	defer guard()

	ctx := vm.TxContext{
		Origin:    h.tx.From,
		Coinbase:  h.block.Coinbase,
		Number:    h.block.Depth,
		Timestamp: h.block.Timestamp,
	}
	ctx.Difficulty[2] = 0x28
	return ctx
}

// GetBlockHash implements the vm.Host interface.
func (h *ethHost) GetBlockHash(number uint64) crypt.Hash {
	defer guard()

	hash, found := h.core.FindBlockHash(number)
	if !found {
		return crypt.Hash{}
	}
	return hash
}

// EmitLog implements the vm.Host interface. Log emission is denied in
// the current design.
func (h *ethHost) EmitLog(addr database.Address, data []byte, topics []crypt.Hash) {
	h.core.evHandler("state: EmitLog: denied for %s", addr)
}
