// Package kv defines the ordered key-value store contract that backends
// such as [github.com/jacentio/dynadown/store] implement.
//
// Keys are strings compared byte-wise. Values are dynamically typed: nil,
// string, []byte, bool, numbers, lists ([]any) and string-keyed maps.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no stored value.
var ErrNotFound = errors.New("dynadown: key not found")

// OpType is the kind of a batch operation.
type OpType string

const (
	OpPut OpType = "put"
	OpDel OpType = "del"
)

// BatchOp is a single put or delete inside a batch.
type BatchOp struct {
	Type  OpType
	Key   string
	Value any
}

// Put returns a put operation.
func Put(key string, value any) BatchOp {
	return BatchOp{Type: OpPut, Key: key, Value: value}
}

// Del returns a delete operation.
func Del(key string) BatchOp {
	return BatchOp{Type: OpDel, Key: key}
}

// ReadOptions configures Get.
type ReadOptions struct {
	// AsBuffer decodes strings and the empty value as []byte.
	// Default: true
	AsBuffer bool
}

// DefaultReadOptions returns the read options used when nil is passed.
func DefaultReadOptions() *ReadOptions {
	return &ReadOptions{AsBuffer: true}
}

// IteratorOptions configures a range scan.
//
// An empty bound is treated as absent. Gt and Lt are exclusive and win over
// Gte and Lte in query planning.
type IteratorOptions struct {
	Gt  string
	Gte string
	Lt  string
	Lte string

	// Reverse walks keys in descending order.
	Reverse bool

	// Limit caps the number of entries. Negative means unbounded and
	// zero yields nothing.
	// Default: -1
	Limit int

	// KeyAsBuffer returns keys as []byte instead of string.
	// Default: true
	KeyAsBuffer bool

	// ValueAsBuffer decodes string values and the empty value as []byte.
	// Default: true
	ValueAsBuffer bool
}

// DefaultIteratorOptions returns an unbounded ascending full-range scan.
func DefaultIteratorOptions() IteratorOptions {
	return IteratorOptions{
		Limit:         -1,
		KeyAsBuffer:   true,
		ValueAsBuffer: true,
	}
}

// Iterator is a pull-based ordered sequence of entries.
//
//	it := db.Iterator(ctx, opts)
//	defer it.Close()
//	for it.Next() {
//	    use(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	// Next advances to the next entry, reporting whether one exists.
	Next() bool

	// Key returns the current key ([]byte or string, per KeyAsBuffer).
	Key() any

	// Value returns the current decoded value.
	Value() any

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close stops the iteration. No further requests are issued after
	// Close returns.
	Close() error
}

// Store is an ordered key-value store.
type Store interface {
	Get(ctx context.Context, key string, opts *ReadOptions) (any, error)
	Put(ctx context.Context, key string, value any) error
	Del(ctx context.Context, key string) error
	Batch(ctx context.Context, ops []BatchOp) error
	Iterator(ctx context.Context, opts IteratorOptions) Iterator
	Close() error
}
