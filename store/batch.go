package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/dynadown/internal/record"
	"github.com/jacentio/dynadown/kv"
)

// MaxBatchSize is the most write requests a single BatchWriteItem accepts.
const MaxBatchSize = 25

// Batch applies ops as a sequence of BatchWriteItem calls. When a key
// appears more than once only its last operation is sent. Requests DynamoDB
// returns unprocessed are resubmitted ahead of the remaining ops until
// everything is accepted or a call fails.
//
// Batch is not atomic: on error, some ops may already be applied.
func (s *Store) Batch(ctx context.Context, ops []kv.BatchOp) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	reqs, err := s.writeRequests(dedupe(ops))
	if err != nil {
		return err
	}
	return s.writeBatches(ctx, reqs)
}

// dedupe keeps the last op per key, ordered by that last occurrence.
func dedupe(ops []kv.BatchOp) []kv.BatchOp {
	last := make(map[string]int, len(ops))
	for i, op := range ops {
		last[op.Key] = i
	}
	if len(last) == len(ops) {
		return ops
	}

	out := make([]kv.BatchOp, 0, len(last))
	for i, op := range ops {
		if last[op.Key] == i {
			out = append(out, op)
		}
	}
	return out
}

func (s *Store) writeRequests(ops []kv.BatchOp) ([]types.WriteRequest, error) {
	reqs := make([]types.WriteRequest, 0, len(ops))
	for _, op := range ops {
		var (
			req types.WriteRequest
			err error
		)
		switch op.Type {
		case kv.OpPut:
			req, err = record.PutRequest(s.partition, op.Key, op.Value)
		case kv.OpDel:
			req, err = record.DeleteRequest(s.partition, op.Key)
		default:
			err = fmt.Errorf("%w: %q", ErrInvalidBatchOp, op.Type)
		}
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// writeBatches sends reqs in chunks of at most MaxBatchSize, filling each
// chunk with leftovers from the previous call first.
func (s *Store) writeBatches(ctx context.Context, pending []types.WriteRequest) error {
	var unprocessed []types.WriteRequest
	for {
		n := min(max(MaxBatchSize-len(unprocessed), 0), len(pending))
		chunk := make([]types.WriteRequest, 0, len(unprocessed)+n)
		chunk = append(chunk, unprocessed...)
		chunk = append(chunk, pending[:n]...)
		pending = pending[n:]
		if len(chunk) == 0 {
			return nil
		}

		start := time.Now()
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.table: chunk},
		})
		s.metrics.observe(opBatchWrite, start, err)
		if err != nil {
			return err
		}

		unprocessed = out.UnprocessedItems[s.table]
		if len(unprocessed) > 0 {
			s.metrics.retried(len(unprocessed))
			s.logger.Debug("resubmitting unprocessed items",
				"table", s.table,
				"count", len(unprocessed),
				"pending", len(pending),
			)
		}
	}
}

// WriteBatch accumulates operations for a single Batch call.
type WriteBatch struct {
	store *Store
	ops   []kv.BatchOp
}

// NewWriteBatch starts an empty chained batch.
func (s *Store) NewWriteBatch() *WriteBatch {
	return &WriteBatch{store: s}
}

// Put queues a put.
func (b *WriteBatch) Put(key string, value any) *WriteBatch {
	b.ops = append(b.ops, kv.Put(key, value))
	return b
}

// Del queues a delete.
func (b *WriteBatch) Del(key string) *WriteBatch {
	b.ops = append(b.ops, kv.Del(key))
	return b
}

// Len returns the number of queued operations, duplicates included.
func (b *WriteBatch) Len() int { return len(b.ops) }

// Reset drops all queued operations.
func (b *WriteBatch) Reset() { b.ops = b.ops[:0] }

// Write sends the queued operations. The batch is left untouched so it can
// be retried on error.
func (b *WriteBatch) Write(ctx context.Context) error {
	return b.store.Batch(ctx, b.ops)
}
