// Package store exposes a DynamoDB table as an ordered key-value store.
//
// Each store is bound to a location of the form "table" or
// "table/partition". Every row it writes carries the partition in the
// "hkey" attribute and the user key in "rkey", so many independent stores
// can share one table. A location without a partition uses [DefaultPartition].
//
// # Key Features
//
//   - Get, Put and Del map onto single-item DynamoDB calls
//   - Range iteration with gt/gte/lt/lte bounds, reverse order and limits
//   - Lazy, page-by-page iteration that stops issuing queries on Close
//   - Batches deduplicated per key and sent 25 requests at a time, with
//     unprocessed items resubmitted until accepted
//   - Table provisioning on Open and destruction through a [Registry]
//   - Optional Prometheus metrics via [Metrics]
//
// # Values
//
// Values are strings, []byte, bool, numbers, nil, []any and string-keyed
// maps, nested freely. DynamoDB cannot hold an empty string or empty
// binary, so nil, "" and []byte{} are all stored as NULL and read back as
// []byte{} or nil depending on the decode mode. Numbers read back as float64;
// a number beyond the float64 range reads back as +Inf or -Inf.
//
// # Usage
//
//	cfg := store.DefaultConfig()
//	cfg.Region = "eu-west-1"
//	db, err := store.Open(ctx, "app/users", cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	_ = db.Put(ctx, "alice", map[string]any{"age": 30})
//
//	opts := kv.DefaultIteratorOptions()
//	opts.Gte = "a"
//	it := db.Iterator(ctx, opts)
//	defer it.Close()
//	for it.Next() {
//	    fmt.Println(string(it.Key().([]byte)))
//	}
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - Get on a key with no stored value
//   - [ErrUnsupportedType] - value cannot be represented
//   - [ErrDecode] - stored attribute cannot be read back
//   - [ErrClosed] - operation on a closed store
//   - [ErrInvalidLocation] - location names no table
//   - [ErrAlreadyExists] - table exists and ErrorIfExists is set
//   - [ErrNotRegistered] - destroy of an unknown location
//   - [ErrInvalidBatchOp] - batch operation other than put or del
//
// DynamoDB errors are returned unmodified, except that a missing table
// during iteration yields an empty result.
package store
