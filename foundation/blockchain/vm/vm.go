// Package vm defines the ABI between the node and the embedded
// EVM-compatible interpreter. The interpreter itself is a pluggable
// evaluator; the node supplies a Host with the state callbacks the
// evaluator needs. Host implementations must be total: they never
// panic across the VM boundary.
package vm

import (
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/crypt"
)

// CallKind selects the call semantics of a message.
type CallKind uint8

// The supported call kinds.
const (
	Call CallKind = iota
)

// StatusCode is the outcome the evaluator reports for one execution.
type StatusCode int32

// The evaluator outcomes the node distinguishes. Anything other than
// Success and Revert is treated as a malformed query.
const (
	Success StatusCode = iota
	Revert
	Failure
)

// String implements the fmt.Stringer interface for logging.
func (s StatusCode) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case Revert:
		return "REVERT"
	case Failure:
		return "FAILURE"
	}
	return "UNKNOWN"
}

// StorageStatus classifies a storage write for gas accounting.
type StorageStatus uint8

// The storage write classifications.
const (
	StorageUnchanged StorageStatus = iota
	StorageAdded
	StorageModified
	StorageDeleted
)

// =============================================================================

// Message is one call frame entering the evaluator.
type Message struct {
	Kind        CallKind
	Depth       int32
	Gas         int64
	Sender      database.Address
	Destination database.Address
	Value       database.Balance
	Input       []byte
}

// Result is what the evaluator hands back for one message.
type Result struct {
	Status  StatusCode
	GasLeft int64
	Output  []byte
}

// TxContext is the fixed per-transaction context the evaluator can
// query through the host.
type TxContext struct {
	GasPrice   database.Balance
	Origin     database.Address
	Coinbase   database.Address
	Number     uint64
	Timestamp  uint32
	Difficulty [32]byte
}

// =============================================================================

// Host is the callback surface the node exposes to the evaluator.
// Implementations are total functions: on any internal failure they
// return the zero/empty result rather than propagate.
type Host interface {
	AccountExists(addr database.Address) bool
	GetStorage(addr database.Address, key crypt.Hash) [32]byte
	SetStorage(addr database.Address, key crypt.Hash, value [32]byte) StorageStatus
	GetBalance(addr database.Address) database.Balance
	GetCodeSize(addr database.Address) int
	GetCodeHash(addr database.Address) crypt.Hash
	CopyCode(addr database.Address, offset int, buf []byte) int
	SelfDestruct(addr database.Address, beneficiary database.Address)
	Call(msg Message) Result
	TxContext() TxContext
	GetBlockHash(number uint64) crypt.Hash
	EmitLog(addr database.Address, data []byte, topics []crypt.Hash)
}

// Evaluator is the pluggable interpreter. Execute runs the code against
// the message, using the host for all state access.
type Evaluator interface {
	Execute(host Host, msg Message, code []byte) Result
}

// =============================================================================

// evaluator holds the interpreter registered at build/startup time.
var evaluator Evaluator

// Register installs the interpreter implementation. Call once during
// startup before any execution.
func Register(ev Evaluator) {
	evaluator = ev
}

// Load returns the registered interpreter. Without a registration it
// returns an evaluator that fails every execution, which keeps a node
// without contract support able to process plain transfers.
func Load() Evaluator {
	if evaluator != nil {
		return evaluator
	}
	return unavailableEvaluator{}
}

// unavailableEvaluator fails every call with the gas returned, so a
// missing interpreter degrades to "contracts unsupported" instead of
// burning fees.
type unavailableEvaluator struct{}

// Execute implements the Evaluator interface.
func (unavailableEvaluator) Execute(host Host, msg Message, code []byte) Result {
	return Result{Status: Failure, GasLeft: msg.Gas}
}
