// Package state is the core API for the blockchain node. It owns the
// canonical chain and account state, admits and executes transactions,
// and publishes the events the gossip layer fans out to peers.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/genesis"
	"github.com/tidechain/tide/foundation/blockchain/mempool"
	"github.com/tidechain/tide/foundation/blockchain/storage"
	"github.com/tidechain/tide/foundation/blockchain/vm"
	"github.com/tidechain/tide/foundation/crypt"
)

// EmissionValue is the reward credited to the coinbase for every
// accepted block.
const EmissionValue = 21_000_000

// Topics published on the core event bus.
const (
	topicBlockAdded   = "core:block-added"
	topicNewPendingTx = "core:new-pending-transaction"
)

// EventHandler defines a function that is called when events occur in
// the processing of the chain.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to construct the core.
// Genesis defaults to the network's fixed genesis block; a private
// network can inject its own.
type Config struct {
	NodeAddress database.Address
	Store       *storage.BlockStore
	Evaluator   vm.Evaluator
	Genesis     *database.Block
	EvHandler   EventHandler
}

// Core manages the blockchain: ingest, validate, execute, persist,
// broadcast. The chain lock makes the block store, the canonical state
// manager, and the chain top one atomic region.
type Core struct {
	evHandler   EventHandler
	nodeAddress database.Address
	evaluator   vm.Evaluator

	chainMu  sync.RWMutex
	store    *storage.BlockStore
	stateMgr *database.StateManager

	pendingMu sync.RWMutex
	pending   *mempool.TransactionsSet

	outMu     sync.RWMutex
	txOutputs map[crypt.Hash]database.TransactionStatus

	bus EventBus.Bus
}

// New constructs the core, seeds genesis, verifies the persisted chain,
// and replays every block from depth 1 upward to rebuild account state.
func New(cfg Config) (*Core, error) {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = vm.Load()
	}

	c := Core{
		evHandler:   ev,
		nodeAddress: cfg.NodeAddress,
		evaluator:   evaluator,
		store:       cfg.Store,
		stateMgr:    database.NewStateManager(),
		pending:     mempool.NewTransactionsSet(),
		txOutputs:   make(map[crypt.Hash]database.TransactionStatus),
		bus:         EventBus.New(),
	}

	gen := genesis.Block()
	if cfg.Genesis != nil {
		gen = *cfg.Genesis
	}
	if err := c.store.AddBlock(gen.Hash(), gen); err != nil {
		return nil, fmt.Errorf("seeding genesis: %w", err)
	}
	if err := c.stateMgr.UpdateFromGenesis(gen); err != nil {
		return nil, err
	}

	if err := c.store.Load(); err != nil {
		return nil, err
	}

	// Replay the persisted chain so the account state reflects every
	// block, not just genesis. The replay path is the live path: emission
	// plus executor, block by block.
	top := c.store.TopBlock()
	for depth := uint64(1); depth <= top.Depth; depth++ {
		hash, found, err := c.store.FindBlockHashByDepth(depth)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: no block at depth %d during replay", storage.ErrCorruptStore, depth)
		}

		block, found, err := c.store.FindBlock(hash)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: block %s vanished during replay", storage.ErrCorruptStore, hash)
		}

		c.applyBlockTransactions(block)
	}

	ev("state: New: chain ready: top[%s] depth[%d] accounts[%d]", c.store.TopHash(), top.Depth, c.stateMgr.TotalAccounts())
	return &c, nil
}

// NodeAddress returns the address that receives this node's mining
// rewards.
func (c *Core) NodeAddress() database.Address {
	return c.nodeAddress
}

// =============================================================================

// AddPendingTransaction admits a transaction into the pending pool. The
// checks run in a fixed order and the first failing check's verdict is
// stored and returned.
func (c *Core) AddPendingTransaction(tx database.Tx) database.TransactionStatus {
	hash := tx.Hash()

	if !tx.CheckSign() {
		c.evHandler("state: AddPendingTransaction: tx[%s]: failed signature verification", hash)
		return c.storeOutput(hash, database.NewStatus(database.StatusBadSign, database.ActionNone, tx.Fee, ""))
	}

	if err := tx.Validate(); err != nil {
		return c.storeOutput(hash, database.NewStatus(database.StatusBadQueryForm, database.ActionNone, tx.Fee, err.Error()))
	}

	// A transaction already mined keeps its recorded verdict.
	if _, _, found, err := c.store.FindTransaction(hash); err == nil && found {
		if status, ok := c.TransactionOutput(hash); ok {
			return status
		}
		return c.storeOutput(hash, database.NewStatus(database.StatusFailed, database.ActionNone, tx.Fee, ""))
	}

	var pendingCost map[database.Address]database.Balance
	{
		c.pendingMu.RLock()
		if c.pending.Find(tx) {
			c.pendingMu.RUnlock()
			return c.storeOutput(hash, database.NewStatus(database.StatusPending, database.ActionNone, tx.Fee, ""))
		}

		var err error
		pendingCost, err = mempool.CalcSetCost(c.pending)
		c.pendingMu.RUnlock()
		if err != nil {
			return c.storeOutput(hash, database.NewStatus(database.StatusFailed, database.ActionNone, 0, err.Error()))
		}
	}

	// The sender must cover everything already pending plus this
	// transaction out of the current balance.
	cost, err := tx.Cost()
	if err != nil {
		return c.storeOutput(hash, database.NewStatus(database.StatusNotEnoughBalance, database.ActionNone, 0, err.Error()))
	}
	if inPool, exists := pendingCost[tx.From]; exists && c.stateMgr.HasAccount(tx.From) {
		var need database.Balance
		_, overflow := need.AddOverflow(&inPool, &cost)
		balance := c.stateMgr.Balance(tx.From)
		if overflow || balance.Cmp(&need) < 0 {
			return c.storeOutput(hash, database.NewStatus(database.StatusNotEnoughBalance, database.ActionNone, 0, ""))
		}
	}

	if !c.stateMgr.CheckTransaction(tx) {
		return c.storeOutput(hash, database.NewStatus(database.StatusNotEnoughBalance, database.ActionNone, 0, ""))
	}

	c.evHandler("state: AddPendingTransaction: adding tx[%s] to pending", hash)
	{
		c.pendingMu.Lock()
		c.pending.Add(tx)
		c.pendingMu.Unlock()
	}

	c.bus.Publish(topicNewPendingTx, tx)
	return c.storeOutput(hash, database.NewStatus(database.StatusPending, database.ActionNone, tx.Fee, ""))
}

// PendingTransactions returns a copy of the pool.
func (c *Core) PendingTransactions() []database.Tx {
	c.pendingMu.RLock()
	defer c.pendingMu.RUnlock()

	return c.pending.Values()
}

// =============================================================================

// TryAddBlock validates the block against the current top and, when it
// holds up, persists it, removes its transactions from the pending pool,
// credits the emission, and executes every transaction in order. Adding
// a block that is already in the store reports success without any
// side effects.
func (c *Core) TryAddBlock(b database.Block) bool {
	hash := b.Hash()

	c.chainMu.Lock()

	if exists, err := c.store.HasBlock(hash); err == nil && exists {
		c.chainMu.Unlock()
		return true
	}

	if err := c.checkBlock(b); err != nil {
		c.chainMu.Unlock()
		c.evHandler("state: TryAddBlock: blk[%d] hash[%s] rejected: %s", b.Depth, hash, err)
		return false
	}

	if err := c.store.AddBlock(hash, b); err != nil {
		c.chainMu.Unlock()
		c.evHandler("state: TryAddBlock: blk[%d] hash[%s] persist failed: %s", b.Depth, hash, err)
		return false
	}

	{
		c.pendingMu.Lock()
		c.pending.RemoveAll(b.Trans)
		c.pendingMu.Unlock()
	}

	c.evHandler("state: TryAddBlock: applying transactions from blk[%d]", b.Depth)
	c.applyBlockTransactions(b)

	c.chainMu.Unlock()

	c.bus.Publish(topicBlockAdded, hash, b)
	return true
}

// checkBlock applies the acceptance rules. The caller holds the chain
// lock.
func (c *Core) checkBlock(b database.Block) error {
	top := c.store.TopBlock()

	if b.Depth != top.Depth+1 {
		return fmt.Errorf("depth %d does not extend top depth %d", b.Depth, top.Depth)
	}
	if b.PrevHash != c.store.TopHash() {
		return errors.New("previous hash does not match the chain top")
	}
	if b.Timestamp <= top.Timestamp {
		return errors.New("timestamp does not advance past the parent")
	}
	if len(b.Trans) == 0 || len(b.Trans) > database.MaxTxPerBlock {
		return fmt.Errorf("transaction count %d out of range", len(b.Trans))
	}

	costs, err := mempool.CalcCost(b.Trans)
	if err != nil {
		return err
	}

	for _, tx := range b.Trans {
		if !tx.CheckSign() {
			return fmt.Errorf("tx[%s] failed signature verification", tx.Hash())
		}
		if !c.stateMgr.HasAccount(tx.From) {
			return fmt.Errorf("tx[%s] sender has no account", tx.Hash())
		}

		need := costs[tx.From]
		balance := c.stateMgr.Balance(tx.From)
		if balance.Cmp(&need) < 0 {
			return fmt.Errorf("sender %s cannot cover the block's spend", tx.From)
		}
	}

	return nil
}

// =============================================================================

// GetMiningData returns a candidate block extending the current top with
// the best-paying pending transactions, plus the complexity scalar a
// miner has to satisfy.
func (c *Core) GetMiningData() (database.Block, database.Complexity) {
	c.chainMu.RLock()
	top := c.store.TopBlock()
	topHash := c.store.TopHash()
	c.chainMu.RUnlock()

	var pending *mempool.TransactionsSet
	{
		c.pendingMu.RLock()
		pending = c.pending.Copy()
		c.pendingMu.RUnlock()
	}

	if pending.Size() > database.MaxTxPerBlock {
		pending.SelectBestByFee(database.MaxTxPerBlock)
	}

	candidate := database.Block{
		Depth:     top.Depth + 1,
		PrevHash:  topHash,
		Timestamp: uint32(time.Now().UTC().Unix()),
		Coinbase:  c.nodeAddress,
		Trans:     pending.Values(),
	}

	return candidate, database.Complexity(candidate.Depth)
}

// =============================================================================

// FindBlock returns the block stored under the hash.
func (c *Core) FindBlock(hash crypt.Hash) (database.Block, bool) {
	block, found, err := c.store.FindBlock(hash)
	if err != nil {
		c.evHandler("state: FindBlock: ERROR: %s", err)
		return database.Block{}, false
	}
	return block, found
}

// FindBlockHash returns the canonical hash at the specified depth.
func (c *Core) FindBlockHash(depth uint64) (crypt.Hash, bool) {
	hash, found, err := c.store.FindBlockHashByDepth(depth)
	if err != nil {
		c.evHandler("state: FindBlockHash: ERROR: %s", err)
		return crypt.Hash{}, false
	}
	return hash, found
}

// FindTransaction returns the mined transaction with the specified hash
// along with the block that carries it.
func (c *Core) FindTransaction(hash crypt.Hash) (database.Tx, database.Block, bool) {
	block, index, found, err := c.store.FindTransaction(hash)
	if err != nil {
		c.evHandler("state: FindTransaction: ERROR: %s", err)
		return database.Tx{}, database.Block{}, false
	}
	if !found {
		return database.Tx{}, database.Block{}, false
	}
	return block.Trans[index], block, true
}

// GetAccountInfo returns the query view of the account. Unknown
// addresses read as empty client accounts.
func (c *Core) GetAccountInfo(addr database.Address) database.AccountInfo {
	c.chainMu.RLock()
	defer c.chainMu.RUnlock()

	return c.stateMgr.AccountInfo(addr)
}

// GetTopBlock returns the current chain top.
func (c *Core) GetTopBlock() database.Block {
	c.chainMu.RLock()
	defer c.chainMu.RUnlock()

	return c.store.TopBlock()
}

// GetTopBlockHash returns the hash of the current chain top.
func (c *Core) GetTopBlockHash() crypt.Hash {
	c.chainMu.RLock()
	defer c.chainMu.RUnlock()

	return c.store.TopHash()
}

// TransactionOutput returns the recorded verdict for a transaction.
func (c *Core) TransactionOutput(hash crypt.Hash) (database.TransactionStatus, bool) {
	c.outMu.RLock()
	defer c.outMu.RUnlock()

	status, found := c.txOutputs[hash]
	return status, found
}

// storeOutput records the verdict for a transaction hash so repeated
// queries return the same answer, then hands the status back.
func (c *Core) storeOutput(hash crypt.Hash, status database.TransactionStatus) database.TransactionStatus {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.txOutputs[hash] = status
	return status
}

// =============================================================================

// SubscribeToBlockAddition registers a callback invoked after a block
// commits. Callbacks run synchronously in registration order and must
// not take the chain lock.
func (c *Core) SubscribeToBlockAddition(fn func(hash crypt.Hash, block database.Block)) {
	if err := c.bus.Subscribe(topicBlockAdded, fn); err != nil {
		c.evHandler("state: SubscribeToBlockAddition: ERROR: %s", err)
	}
}

// SubscribeToNewPendingTransaction registers a callback invoked after a
// transaction enters the pending pool.
func (c *Core) SubscribeToNewPendingTransaction(fn func(tx database.Tx)) {
	if err := c.bus.Subscribe(topicNewPendingTx, fn); err != nil {
		c.evHandler("state: SubscribeToNewPendingTransaction: ERROR: %s", err)
	}
}
