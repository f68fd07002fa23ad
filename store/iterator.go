package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/dynadown/internal/query"
	"github.com/jacentio/dynadown/internal/record"
	"github.com/jacentio/dynadown/kv"
)

type iterState int

const (
	stateIdle iterState = iota
	stateFetching
	stateDelivering
	stateDraining
	stateDone
	stateError
)

func (st iterState) String() string {
	switch st {
	case stateIdle:
		return "idle"
	case stateFetching:
		return "fetching"
	case stateDelivering:
		return "delivering"
	case stateDraining:
		return "draining"
	case stateDone:
		return "done"
	case stateError:
		return "error"
	}
	return "unknown"
}

// Iterator walks a key range of one partition page by page.
//
// Pages are fetched only when the buffered page is exhausted, and rows are
// decoded as they are pulled. Next, Key, Value and Err must be called from
// one goroutine; Close may be called from any.
type Iterator struct {
	client    API
	table     string
	partition string
	pageSize  int32
	logger    loggerFunc
	metrics   *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	rng           query.Range
	plan          query.Plan
	limit         int
	keyAsBuffer   bool
	valueAsBuffer bool

	state     iterState
	pager     *dynamodb.QueryPaginator
	page      []map[string]types.AttributeValue
	delivered int
	entry     record.Entry
	err       error
}

// loggerFunc is the debug logger of the owning store.
type loggerFunc func(msg string, args ...any)

var _ kv.Iterator = (*Iterator)(nil)

// Iterator returns an iterator over the range described by opts. No request
// is made until the first call to Next.
func (s *Store) Iterator(ctx context.Context, opts kv.IteratorOptions) kv.Iterator {
	return s.newIterator(ctx, opts)
}

func (s *Store) newIterator(ctx context.Context, opts kv.IteratorOptions) *Iterator {
	ctx, cancel := context.WithCancel(ctx)
	rng := query.Range{
		Gt:      opts.Gt,
		Gte:     opts.Gte,
		Lt:      opts.Lt,
		Lte:     opts.Lte,
		Reverse: opts.Reverse,
	}
	it := &Iterator{
		client:        s.client,
		table:         s.table,
		partition:     s.partition,
		pageSize:      s.config.PageSize,
		logger:        s.logger.Debug,
		metrics:       s.metrics,
		ctx:           ctx,
		cancel:        cancel,
		rng:           rng,
		plan:          query.NewPlan(rng),
		limit:         opts.Limit,
		keyAsBuffer:   opts.KeyAsBuffer,
		valueAsBuffer: opts.ValueAsBuffer,
		state:         stateIdle,
	}
	if err := s.checkOpen(); err != nil {
		it.fail(err)
	}
	return it
}

// Next advances to the next entry.
func (it *Iterator) Next() bool {
	for {
		if it.closed.Load() && it.state != stateDone && it.state != stateError {
			it.state = stateDraining
		}

		switch it.state {
		case stateIdle:
			if it.plan.Empty || it.limit == 0 {
				it.state = stateDraining
			} else {
				it.pager = dynamodb.NewQueryPaginator(it.client, it.queryInput())
				it.state = stateFetching
			}

		case stateFetching:
			it.fetch()

		case stateDelivering:
			if it.limit > 0 && it.delivered >= it.limit {
				it.state = stateDraining
				continue
			}
			if len(it.page) > 0 {
				item := it.page[0]
				it.page = it.page[1:]
				entry, err := record.Decode(item, it.keyAsBuffer, it.valueAsBuffer)
				if err != nil {
					it.fail(err)
					return false
				}
				it.entry = entry
				it.delivered++
				return true
			}
			if it.pager != nil && it.pager.HasMorePages() {
				it.state = stateFetching
			} else {
				it.state = stateDraining
			}

		case stateDraining:
			it.finish()

		default:
			return false
		}
	}
}

// queryInput builds the Query shared by every page of the walk. The page
// Limit is fixed when the paginator is built; rows past the caller's limit
// are cut off in Next.
func (it *Iterator) queryInput() *dynamodb.QueryInput {
	input := &dynamodb.QueryInput{
		TableName: aws.String(it.table),
		KeyConditions: map[string]types.Condition{
			record.AttrPartition: {
				ComparisonOperator: types.ComparisonOperatorEq,
				AttributeValueList: []types.AttributeValue{
					&types.AttributeValueMemberS{Value: it.partition},
				},
			},
			record.AttrSort: it.plan.Condition(),
		},
		ScanIndexForward: aws.Bool(it.plan.ScanForward),
	}
	if n := it.pageLimit(); n > 0 {
		input.Limit = aws.Int32(n)
	}
	return input
}

// fetch reads the next page and buffers the rows that pass the range
// post-filter.
func (it *Iterator) fetch() {
	start := time.Now()
	out, err := it.pager.NextPage(it.ctx)
	it.metrics.observe(opQuery, start, err)

	// Closed while the request was in flight: drop whatever came back.
	if it.closed.Load() {
		it.finish()
		return
	}
	if err != nil {
		if isResourceNotFound(err) {
			it.logger("scan of missing table treated as empty", "table", it.table, "partition", it.partition)
			it.finish()
			return
		}
		it.fail(err)
		return
	}

	filtered := 0
	it.page = make([]map[string]types.AttributeValue, 0, len(out.Items))
	for _, item := range out.Items {
		if !it.rng.Contains(record.SortKey(item)) {
			filtered++
			continue
		}
		it.page = append(it.page, item)
	}
	it.metrics.pageFetched(filtered)
	it.state = stateDelivering
}

// pageLimit returns the per-page Limit, or 0 for none.
func (it *Iterator) pageLimit() int32 {
	size := it.pageSize
	if it.limit > 0 && it.limit < 1<<31-1 && (size == 0 || int32(it.limit) < size) {
		size = int32(it.limit)
	}
	return size
}

func (it *Iterator) finish() {
	it.page = nil
	it.pager = nil
	it.entry = record.Entry{}
	it.cancel()
	it.state = stateDone
}

func (it *Iterator) fail(err error) {
	it.finish()
	it.err = err
	it.state = stateError
}

// Key returns the current key.
func (it *Iterator) Key() any { return it.entry.Key }

// Value returns the current value.
func (it *Iterator) Value() any { return it.entry.Value }

// Err returns the error that ended the iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Close ends the iteration and aborts any request in flight.
func (it *Iterator) Close() error {
	it.closed.Store(true)
	it.cancel()
	return nil
}
