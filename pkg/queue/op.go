// Package queue implements the operation queue and coalescer: the
// scheduler that turns a stream of concurrent requests into a minimal,
// correctness-preserving sequence of batched operations.
package queue

import "github.com/reactiveui/akavache-go/pkg/model"

// Kind identifies an operation's shape.
type Kind int

const (
	BulkInsert Kind = iota
	BulkSelectByKey
	BulkSelectByType
	BulkInvalidateByKey
	BulkInvalidateByType
	InvalidateAll
	DeleteExpired
	GetKeys
	Vacuum
)

// String renders a Kind for logging.
func (k Kind) String() string {
	switch k {
	case BulkInsert:
		return "BulkInsert"
	case BulkSelectByKey:
		return "BulkSelectByKey"
	case BulkSelectByType:
		return "BulkSelectByType"
	case BulkInvalidateByKey:
		return "BulkInvalidateByKey"
	case BulkInvalidateByType:
		return "BulkInvalidateByType"
	case InvalidateAll:
		return "InvalidateAll"
	case DeleteExpired:
		return "DeleteExpired"
	case GetKeys:
		return "GetKeys"
	case Vacuum:
		return "Vacuum"
	default:
		return "Unknown"
	}
}

// isSelectable reports whether k participates in select coalescing.
func (k Kind) isSelectable() bool {
	return k == BulkSelectByKey || k == BulkSelectByType
}

// isInvalidatable reports whether k participates in invalidate coalescing.
func (k Kind) isInvalidatable() bool {
	return k == BulkInvalidateByKey || k == BulkInvalidateByType
}

// Result is what a single emitted (post-coalescing) operation produced.
type Result struct {
	// Elements holds rows for BulkSelect* operations.
	Elements []model.CacheElement
	// Keys holds live keys for GetKeys.
	Keys []string
	// Err is set if the whole drain's transaction failed: every source
	// sink in a failed transaction receives the same error. A Vacuum
	// group's sinks also receive an error when the defrag that follows
	// the committed transaction fails.
	Err error
}

// Op is one pending request, as submitted by a caller.
type Op struct {
	Kind Kind

	// Keys is the key parameter for BulkSelectByKey / BulkInvalidateByKey.
	Keys []string
	// Types is the type parameter for BulkSelectByType / BulkInvalidateByType.
	Types []string
	// Elements is the payload for BulkInsert.
	Elements []model.CacheElement

	Sink *Sink
}

// NewOp builds an Op with a fresh Sink.
func NewOp(kind Kind) *Op {
	return &Op{Kind: kind, Sink: NewSink()}
}
