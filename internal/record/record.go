// Package record maps key-value entries to and from DynamoDB rows.
//
// A row carries the partition in "hkey", the user key in "rkey" and the
// encoded value in "value".
package record

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/dynadown/internal/codec"
)

// Attribute names of a row.
const (
	AttrPartition = "hkey"
	AttrSort      = "rkey"
	AttrValue     = "value"
)

// Key is the primary key of a row.
type Key struct {
	Partition string `dynamodbav:"hkey"`
	Sort      string `dynamodbav:"rkey"`
}

// Entry is a decoded row.
type Entry struct {
	// Key is []byte or string depending on the decode mode.
	Key   any
	Value any
}

// KeyItem returns the primary key attributes for (partition, sort).
func KeyItem(partition, sort string) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(Key{Partition: partition, Sort: sort})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return item, nil
}

// Item returns the full row for (partition, sort, value).
func Item(partition, sort string, value any) (map[string]types.AttributeValue, error) {
	item, err := KeyItem(partition, sort)
	if err != nil {
		return nil, err
	}
	av, err := codec.Encode(value)
	if err != nil {
		return nil, err
	}
	item[AttrValue] = av
	return item, nil
}

// SortKey returns the user key of a row without touching its value.
func SortKey(item map[string]types.AttributeValue) string {
	if v, ok := item[AttrSort].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

// Decode turns a row into an Entry. A row without a value attribute decodes
// as the empty value.
func Decode(item map[string]types.AttributeValue, keyAsBuffer, valueAsBuffer bool) (Entry, error) {
	var key Key
	if err := attributevalue.UnmarshalMap(item, &key); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", codec.ErrDecode, err)
	}

	av, ok := item[AttrValue]
	if !ok {
		av = &types.AttributeValueMemberNULL{Value: true}
	}
	value, err := codec.Decode(av, valueAsBuffer)
	if err != nil {
		return Entry{}, fmt.Errorf("key %q: %w", key.Sort, err)
	}

	e := Entry{Key: key.Sort, Value: value}
	if keyAsBuffer {
		e.Key = []byte(key.Sort)
	}
	return e, nil
}

// PutRequest returns a batch put for (partition, sort, value).
func PutRequest(partition, sort string, value any) (types.WriteRequest, error) {
	item, err := Item(partition, sort, value)
	if err != nil {
		return types.WriteRequest{}, err
	}
	return types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}, nil
}

// DeleteRequest returns a batch delete for (partition, sort).
func DeleteRequest(partition, sort string) (types.WriteRequest, error) {
	key, err := KeyItem(partition, sort)
	if err != nil {
		return types.WriteRequest{}, err
	}
	return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}}, nil
}

// RequestKey returns the user key targeted by a batch write request.
func RequestKey(req types.WriteRequest) string {
	switch {
	case req.PutRequest != nil:
		return SortKey(req.PutRequest.Item)
	case req.DeleteRequest != nil:
		return SortKey(req.DeleteRequest.Key)
	}
	return ""
}
