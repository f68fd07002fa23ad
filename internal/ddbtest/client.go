// Package ddbtest provides an in-memory DynamoDB double for tests.
//
// It understands the subset of the API that dynadown uses: tables with a
// string hash key and a string range key, item CRUD, legacy KeyConditions
// queries with Limit/ExclusiveStartKey/ScanIndexForward, and BatchWriteItem
// with injectable unprocessed items.
package ddbtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// MaxBatchWriteItems is the DynamoDB limit on requests per BatchWriteItem.
const MaxBatchWriteItems = 25

// UnprocessedFunc selects which requests of a BatchWriteItem call are
// reported back as unprocessed instead of being applied. call is 1-based.
type UnprocessedFunc func(call int, reqs []types.WriteRequest) []types.WriteRequest

type table struct {
	name      string
	hashKey   string
	rangeKey  string
	partition map[string]map[string]map[string]types.AttributeValue
}

// Client is an in-memory stand-in for *dynamodb.Client.
type Client struct {
	mu     sync.Mutex
	tables map[string]*table

	// PageSize caps the items returned per Query when the request has no
	// smaller Limit. Zero means unlimited.
	PageSize int

	// Unprocessed, when set, is consulted on every BatchWriteItem call.
	Unprocessed UnprocessedFunc

	// QueryErr and BatchErr, when set, are returned by the next calls.
	QueryErr error
	BatchErr error

	// OnQuery runs after every Query call has been counted.
	OnQuery func(call int)

	queryCalls      int
	batchCalls      int
	batchSizes      []int
	queryInputs     []*dynamodb.QueryInput
	createdTables   []*dynamodb.CreateTableInput
	deleteTableCall int
}

// New returns an empty client.
func New() *Client {
	return &Client{tables: make(map[string]*table)}
}

// AddTable creates an active hkey/rkey table without going through CreateTable.
func (c *Client) AddTable(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = newTable(name, "hkey", "rkey")
}

func newTable(name, hashKey, rangeKey string) *table {
	return &table{
		name:      name,
		hashKey:   hashKey,
		rangeKey:  rangeKey,
		partition: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

// QueryCalls returns the number of Query calls made.
func (c *Client) QueryCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryCalls
}

// QueryInputs returns every Query input received, in order.
func (c *Client) QueryInputs() []*dynamodb.QueryInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*dynamodb.QueryInput(nil), c.queryInputs...)
}

// BatchCalls returns the number of BatchWriteItem calls made.
func (c *Client) BatchCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batchCalls
}

// BatchSizes returns the request count of each BatchWriteItem call.
func (c *Client) BatchSizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.batchSizes...)
}

// CreatedTables returns every CreateTable input received.
func (c *Client) CreatedTables() []*dynamodb.CreateTableInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*dynamodb.CreateTableInput(nil), c.createdTables...)
}

// DeleteTableCalls returns the number of DeleteTable calls made.
func (c *Client) DeleteTableCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteTableCall
}

// Keys returns the sorted range keys stored under a partition.
func (c *Client) Keys(tableName, partition string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[tableName]
	if !ok {
		return nil
	}
	return sortedKeys(t.partition[partition])
}

// Item returns a stored item, or nil.
func (c *Client) Item(tableName, partition, key string) map[string]types.AttributeValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[tableName]
	if !ok {
		return nil
	}
	return t.partition[partition][key]
}

func (c *Client) table(name *string) (*table, error) {
	t, ok := c.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String("Requested resource not found: Table: " + aws.ToString(name) + " not found"),
		}
	}
	return t, nil
}

func validation(format string, args ...any) error {
	return &smithy.GenericAPIError{
		Code:    "ValidationException",
		Message: fmt.Sprintf(format, args...),
		Fault:   smithy.FaultClient,
	}
}

func (t *table) keyOf(item map[string]types.AttributeValue) (string, string, error) {
	h, ok := item[t.hashKey].(*types.AttributeValueMemberS)
	if !ok {
		return "", "", validation("missing hash key %s", t.hashKey)
	}
	r, ok := item[t.rangeKey].(*types.AttributeValueMemberS)
	if !ok {
		return "", "", validation("missing range key %s", t.rangeKey)
	}
	if h.Value == "" || r.Value == "" {
		return "", "", validation("key attributes must not be empty strings")
	}
	return h.Value, r.Value, nil
}

func (t *table) put(item map[string]types.AttributeValue) error {
	h, r, err := t.keyOf(item)
	if err != nil {
		return err
	}
	if t.partition[h] == nil {
		t.partition[h] = make(map[string]map[string]types.AttributeValue)
	}
	cp := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		cp[k] = v
	}
	t.partition[h][r] = cp
	return nil
}

func (t *table) delete(key map[string]types.AttributeValue) error {
	h, r, err := t.keyOf(key)
	if err != nil {
		return err
	}
	delete(t.partition[h], r)
	return nil
}

// GetItem implements the DynamoDB GetItem call.
func (c *Client) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.table(params.TableName)
	if err != nil {
		return nil, err
	}
	h, r, err := t.keyOf(params.Key)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: t.partition[h][r]}, nil
}

// PutItem implements the DynamoDB PutItem call.
func (c *Client) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.table(params.TableName)
	if err != nil {
		return nil, err
	}
	if err := t.put(params.Item); err != nil {
		return nil, err
	}
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem implements the DynamoDB DeleteItem call.
func (c *Client) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.table(params.TableName)
	if err != nil {
		return nil, err
	}
	if err := t.delete(params.Key); err != nil {
		return nil, err
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query implements the DynamoDB Query call for legacy KeyConditions.
func (c *Client) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	c.queryCalls++
	call := c.queryCalls
	c.queryInputs = append(c.queryInputs, params)
	hook := c.OnQuery
	c.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.QueryErr != nil {
		err := c.QueryErr
		c.QueryErr = nil
		return nil, err
	}

	t, err := c.table(params.TableName)
	if err != nil {
		return nil, err
	}

	hashCond, ok := params.KeyConditions[t.hashKey]
	if !ok || hashCond.ComparisonOperator != types.ComparisonOperatorEq || len(hashCond.AttributeValueList) != 1 {
		return nil, validation("query requires an EQ condition on %s", t.hashKey)
	}
	hash, ok := hashCond.AttributeValueList[0].(*types.AttributeValueMemberS)
	if !ok {
		return nil, validation("hash key condition must be a string")
	}

	match := func(string) bool { return true }
	if rangeCond, ok := params.KeyConditions[t.rangeKey]; ok {
		match, err = compile(rangeCond)
		if err != nil {
			return nil, err
		}
	}

	keys := sortedKeys(t.partition[hash.Value])
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	if params.ExclusiveStartKey != nil {
		_, start, err := t.keyOf(params.ExclusiveStartKey)
		if err != nil {
			return nil, err
		}
		forward := params.ScanIndexForward == nil || *params.ScanIndexForward
		idx := sort.Search(len(keys), func(i int) bool {
			if forward {
				return keys[i] > start
			}
			return keys[i] < start
		})
		keys = keys[idx:]
	}

	limit := c.PageSize
	if params.Limit != nil && (limit == 0 || int(*params.Limit) < limit) {
		limit = int(*params.Limit)
	}

	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		if !match(k) {
			continue
		}
		out.Items = append(out.Items, t.partition[hash.Value][k])
		if limit > 0 && len(out.Items) == limit {
			out.LastEvaluatedKey = map[string]types.AttributeValue{
				t.hashKey:  &types.AttributeValueMemberS{Value: hash.Value},
				t.rangeKey: &types.AttributeValueMemberS{Value: k},
			}
			break
		}
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// BatchWriteItem implements the DynamoDB BatchWriteItem call.
func (c *Client) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batchCalls++
	if c.BatchErr != nil {
		err := c.BatchErr
		c.BatchErr = nil
		return nil, err
	}

	total := 0
	for _, reqs := range params.RequestItems {
		total += len(reqs)
	}
	c.batchSizes = append(c.batchSizes, total)
	if total == 0 || total > MaxBatchWriteItems {
		return nil, validation("batch must contain between 1 and %d requests, got %d", MaxBatchWriteItems, total)
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for name, reqs := range params.RequestItems {
		t, err := c.table(aws.String(name))
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool, len(reqs))
		for _, req := range reqs {
			var key map[string]types.AttributeValue
			switch {
			case req.PutRequest != nil:
				key = req.PutRequest.Item
			case req.DeleteRequest != nil:
				key = req.DeleteRequest.Key
			default:
				return nil, validation("empty write request")
			}
			h, r, err := t.keyOf(key)
			if err != nil {
				return nil, err
			}
			if seen[h+"\x00"+r] {
				return nil, validation("Provided list of item keys contains duplicates")
			}
			seen[h+"\x00"+r] = true
		}

		var skipped []types.WriteRequest
		if c.Unprocessed != nil {
			skipped = c.Unprocessed(c.batchCalls, reqs)
		}
		for _, req := range reqs {
			if containsRequest(skipped, req) {
				continue
			}
			if req.PutRequest != nil {
				if err := t.put(req.PutRequest.Item); err != nil {
					return nil, err
				}
			} else if err := t.delete(req.DeleteRequest.Key); err != nil {
				return nil, err
			}
		}
		if len(skipped) > 0 {
			out.UnprocessedItems[name] = skipped
		}
	}
	return out, nil
}

// CreateTable implements the DynamoDB CreateTable call.
func (c *Client) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.createdTables = append(c.createdTables, params)
	name := aws.ToString(params.TableName)
	if _, ok := c.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}

	var hashKey, rangeKey string
	for _, ks := range params.KeySchema {
		switch ks.KeyType {
		case types.KeyTypeHash:
			hashKey = aws.ToString(ks.AttributeName)
		case types.KeyTypeRange:
			rangeKey = aws.ToString(ks.AttributeName)
		}
	}
	if hashKey == "" || rangeKey == "" {
		return nil, validation("table needs a hash and a range key")
	}

	c.tables[name] = newTable(name, hashKey, rangeKey)
	return &dynamodb.CreateTableOutput{TableDescription: describe(name, types.TableStatusCreating)}, nil
}

// DescribeTable implements the DynamoDB DescribeTable call. Tables are
// active as soon as they exist.
func (c *Client) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.table(params.TableName)
	if err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{Table: describe(t.name, types.TableStatusActive)}, nil
}

// DeleteTable implements the DynamoDB DeleteTable call.
func (c *Client) DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteTableCall++
	t, err := c.table(params.TableName)
	if err != nil {
		return nil, err
	}
	delete(c.tables, t.name)
	return &dynamodb.DeleteTableOutput{TableDescription: describe(t.name, types.TableStatusDeleting)}, nil
}

func describe(name string, status types.TableStatus) *types.TableDescription {
	return &types.TableDescription{TableName: aws.String(name), TableStatus: status}
}

func sortedKeys(m map[string]map[string]types.AttributeValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsRequest(reqs []types.WriteRequest, req types.WriteRequest) bool {
	for _, r := range reqs {
		if r.PutRequest != nil && r.PutRequest == req.PutRequest {
			return true
		}
		if r.DeleteRequest != nil && r.DeleteRequest == req.DeleteRequest {
			return true
		}
	}
	return false
}

// compile turns a range key condition into a predicate.
func compile(cond types.Condition) (func(string) bool, error) {
	args := make([]string, len(cond.AttributeValueList))
	for i, av := range cond.AttributeValueList {
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, validation("range key condition values must be strings")
		}
		args[i] = s.Value
	}

	want := 1
	if cond.ComparisonOperator == types.ComparisonOperatorBetween {
		want = 2
	}
	if len(args) != want {
		return nil, validation("%s takes %d values, got %d", cond.ComparisonOperator, want, len(args))
	}

	switch cond.ComparisonOperator {
	case types.ComparisonOperatorEq:
		return func(k string) bool { return k == args[0] }, nil
	case types.ComparisonOperatorLt:
		return func(k string) bool { return k < args[0] }, nil
	case types.ComparisonOperatorLe:
		return func(k string) bool { return k <= args[0] }, nil
	case types.ComparisonOperatorGt:
		return func(k string) bool { return k > args[0] }, nil
	case types.ComparisonOperatorGe:
		return func(k string) bool { return k >= args[0] }, nil
	case types.ComparisonOperatorBeginsWith:
		return func(k string) bool { return len(k) >= len(args[0]) && k[:len(args[0])] == args[0] }, nil
	case types.ComparisonOperatorBetween:
		if args[0] > args[1] {
			return nil, validation("BETWEEN lower bound %q is greater than upper bound %q", args[0], args[1])
		}
		return func(k string) bool { return k >= args[0] && k <= args[1] }, nil
	}
	return nil, validation("unsupported range key operator %s", cond.ComparisonOperator)
}
