package state

import (
	"math"

	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/vm"
	"github.com/tidechain/tide/foundation/crypt"
)

// applyBlockTransactions credits the block emission and runs every
// transaction through the executor in order. The caller holds the chain
// lock.
func (c *Core) applyBlockTransactions(block database.Block) {
	snap := c.stateMgr.CreateCopy()
	if err := snap.AddBalance(block.Coinbase, database.NewBalance(EmissionValue)); err != nil {
		c.evHandler("state: applyBlockTransactions: emission: ERROR: %s", err)
	}
	c.stateMgr.ApplyChanges(snap)

	for _, tx := range block.Trans {
		c.tryPerform(tx, block)
	}
}

// tryPerform executes one transaction against a speculative snapshot of
// the account state. On success the snapshot's delta merges into the
// canonical state; any failure discards the snapshot so the transaction
// has no effect beyond its recorded verdict, the sender's hash history
// and the fee rules.
func (c *Core) tryPerform(tx database.Tx, block database.Block) (status database.TransactionStatus) {
	hash := tx.Hash()
	c.evHandler("state: tryPerform: tx[%s]", hash)

	action := database.ActionTransfer
	switch {
	case tx.To.IsNull():
		action = database.ActionContractCreation
	case c.stateMgr.AccountType(tx.To) == database.AccountContract:
		action = database.ActionContractCall
	}

	// Nothing thrown below may escape the executor. A failure that is
	// not one of the modeled verdicts records as Failed with no gas
	// returned.
	defer func() {
		if r := recover(); r != nil {
			c.evHandler("state: tryPerform: tx[%s]: PANIC: %v", hash, r)
			status = c.storeOutput(hash, database.NewStatus(database.StatusFailed, action, 0, ""))
		}
	}()

	// The sender's record keeps the hash of every transaction it sent.
	{
		history := c.stateMgr.CreateCopy()
		history.AddTransactionHash(tx.From, hash)
		c.stateMgr.ApplyChanges(history)
	}

	snap := c.stateMgr.CreateCopy()
	if err := snap.SubBalance(tx.From, database.NewBalance(tx.Fee)); err != nil {
		return c.storeOutput(hash, database.NewStatus(database.StatusFailed, action, 0, err.Error()))
	}

	switch action {
	case database.ActionContractCreation:
		return c.performContractCreation(snap, tx, block, hash)
	case database.ActionContractCall:
		return c.performContractCall(snap, tx, block, hash)
	}
	return c.performTransfer(snap, tx, block, hash)
}

// performContractCreation deploys the code carried in the transaction
// data to a deterministically derived address.
func (c *Core) performContractCreation(snap *database.Snapshot, tx database.Tx, block database.Block, hash crypt.Hash) database.TransactionStatus {
	codeHash := crypt.Sha256(tx.Data)
	contractAddr, err := snap.CreateContractAccount(tx.From, codeHash)
	if err != nil {
		return c.storeOutput(hash, database.NewStatus(database.StatusFailed, database.ActionContractCreation, 0, err.Error()))
	}

	if !snap.TryTransfer(tx.From, contractAddr, tx.Amount) {
		return c.storeOutput(hash, database.NewStatus(database.StatusNotEnoughBalance, database.ActionContractCreation, tx.Fee, ""))
	}

	result := c.callVM(snap, block, tx, vm.Message{
		Kind:        vm.Call,
		Depth:       0,
		Gas:         gasLimit(tx.Fee),
		Sender:      tx.From,
		Destination: contractAddr,
		Value:       tx.Amount,
	}, tx.Data)

	if result.Status == vm.Success {
		snap.SetRuntimeCode(contractAddr, result.Output)
		c.evHandler("state: tryPerform: deployed contract to %s", contractAddr)
		status := database.NewStatus(database.StatusSuccess, database.ActionContractCreation, gasLeft(result), contractAddr.String())
		c.settleAndCommit(snap, tx, block, result)
		return c.storeOutput(hash, status)
	}

	return c.storeOutput(hash, c.settleVMFailure(tx, block, result, database.ActionContractCreation))
}

// performContractCall executes a message against a deployed contract.
func (c *Core) performContractCall(snap *database.Snapshot, tx database.Tx, block database.Block, hash crypt.Hash) database.TransactionStatus {
	if len(tx.Data) == 0 {
		return c.storeOutput(hash, database.NewStatus(database.StatusBadQueryForm, database.ActionContractCall, tx.Fee, ""))
	}

	if !tx.Amount.IsZero() && !snap.TryTransfer(tx.From, tx.To, tx.Amount) {
		return c.storeOutput(hash, database.NewStatus(database.StatusNotEnoughBalance, database.ActionContractCall, tx.Fee, ""))
	}

	code := snap.RuntimeCode(tx.To)
	result := c.callVM(snap, block, tx, vm.Message{
		Kind:        vm.Call,
		Depth:       0,
		Gas:         gasLimit(tx.Fee),
		Sender:      tx.From,
		Destination: tx.To,
		Value:       tx.Amount,
		Input:       tx.Data,
	}, code)

	if result.Status == vm.Success {
		status := database.NewStatus(database.StatusSuccess, database.ActionContractCall, gasLeft(result), crypt.Base64Encode(result.Output))
		c.settleAndCommit(snap, tx, block, result)
		return c.storeOutput(hash, status)
	}

	return c.storeOutput(hash, c.settleVMFailure(tx, block, result, database.ActionContractCall))
}

// performTransfer moves plain value between two client accounts.
func (c *Core) performTransfer(snap *database.Snapshot, tx database.Tx, block database.Block, hash crypt.Hash) database.TransactionStatus {
	if !snap.TryTransfer(tx.From, tx.To, tx.Amount) {
		return c.storeOutput(hash, database.NewStatus(database.StatusNotEnoughBalance, database.ActionTransfer, tx.Fee, ""))
	}

	if err := snap.AddBalance(block.Coinbase, database.NewBalance(tx.Fee)); err != nil {
		return c.storeOutput(hash, database.NewStatus(database.StatusFailed, database.ActionTransfer, 0, err.Error()))
	}

	c.stateMgr.ApplyChanges(snap)
	return c.storeOutput(hash, database.NewStatus(database.StatusSuccess, database.ActionTransfer, 0, ""))
}

// =============================================================================

// settleAndCommit distributes the consumed fee to the coinbase, refunds
// the remaining gas to the sender, and merges the snapshot into the
// canonical state. Used on VM success only.
func (c *Core) settleAndCommit(snap *database.Snapshot, tx database.Tx, block database.Block, result vm.Result) {
	left := gasLeft(result)
	if left > tx.Fee {
		left = tx.Fee
	}
	if err := snap.AddBalance(block.Coinbase, database.NewBalance(tx.Fee-left)); err != nil {
		c.evHandler("state: settleAndCommit: coinbase: ERROR: %s", err)
	}
	if err := snap.AddBalance(tx.From, database.NewBalance(left)); err != nil {
		c.evHandler("state: settleAndCommit: refund: ERROR: %s", err)
	}
	c.stateMgr.ApplyChanges(snap)
}

// settleVMFailure handles REVERT and every other non-success VM code:
// the speculative snapshot is discarded so state stays as it was before
// the transaction, but the consumed portion of the fee still moves from
// the sender to the coinbase.
func (c *Core) settleVMFailure(tx database.Tx, block database.Block, result vm.Result, action database.ActionType) database.TransactionStatus {
	left := gasLeft(result)
	if left > tx.Fee {
		left = tx.Fee
	}
	consumed := database.NewBalance(tx.Fee - left)

	settle := c.stateMgr.CreateCopy()
	if err := settle.SubBalance(tx.From, consumed); err != nil {
		c.evHandler("state: settleVMFailure: charge: ERROR: %s", err)
	}
	if err := settle.AddBalance(block.Coinbase, consumed); err != nil {
		c.evHandler("state: settleVMFailure: coinbase: ERROR: %s", err)
	}
	c.stateMgr.ApplyChanges(settle)

	if result.Status == vm.Revert {
		return database.NewStatus(database.StatusRevert, action, left, "")
	}
	return database.NewStatus(database.StatusBadQueryForm, action, left, "")
}

// callVM runs the evaluator with a transient host bound to this
// transaction's snapshot.
func (c *Core) callVM(snap *database.Snapshot, block database.Block, tx database.Tx, msg vm.Message, code []byte) vm.Result {
	host := ethHost{
		core:  c,
		snap:  snap,
		block: block,
		tx:    tx,
	}
	return c.evaluator.Execute(&host, msg, code)
}

// gasLimit converts a fee into the VM gas budget.
func gasLimit(fee uint64) int64 {
	if fee > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(fee)
}

// gasLeft normalizes the evaluator's remaining gas.
func gasLeft(result vm.Result) uint64 {
	if result.GasLeft < 0 {
		return 0
	}
	return uint64(result.GasLeft)
}
