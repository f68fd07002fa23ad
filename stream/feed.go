// Package stream turns DynamoDB Streams events for a dynadown table into
// key-value changes.
package stream

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/dynadown/internal/record"
	"github.com/jacentio/dynadown/kv"
	"github.com/jacentio/dynadown/store"
)

// Change is a single put or delete observed on the stream.
type Change struct {
	Type      kv.OpType
	Partition string
	Key       string

	// Value is the decoded new value for puts and nil for deletes.
	Value any

	EventID        string
	SequenceNumber string
}

// Listener receives changes in stream order. Returning an error stops the
// batch so the event is redelivered. Records whose value cannot be decoded
// (sets, for example) are logged and skipped without reaching the Listener,
// since redelivery would fail the same way.
type Listener func(ctx context.Context, c Change) error

// Handler processes DynamoDB stream events and forwards changes to a Listener.
type Handler struct {
	table     string
	partition string
	listener  Listener
	logger    *slog.Logger

	// ValueAsBuffer decodes string values and the empty value as []byte.
	// Default: true
	ValueAsBuffer bool
}

// NewHandler creates a handler for location ("table" or "table/partition").
// An empty location forwards changes from every table and partition.
func NewHandler(location string, listener Listener, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		listener:      listener,
		logger:        logger,
		ValueAsBuffer: true,
	}
	if location != "" {
		table, partition, err := store.ParseLocation(location)
		if err != nil {
			return nil, err
		}
		h.table = table
		// Only filter by partition when the location names one.
		if strings.Contains(location, store.LocationDelimiter) {
			h.partition = partition
		}
	}
	return h, nil
}

// HandleEvent processes a batch of stream records.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, rec := range event.Records {
		if err := h.processRecord(ctx, rec); err != nil {
			h.logger.Error("failed to process record",
				"eventID", rec.EventID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, rec events.DynamoDBEventRecord) error {
	if h.table != "" && TableFromARN(rec.EventSourceArn) != h.table {
		return nil
	}

	var op kv.OpType
	image := rec.Change.Keys
	switch rec.EventName {
	case "INSERT", "MODIFY":
		op = kv.OpPut
		if len(rec.Change.NewImage) > 0 {
			image = rec.Change.NewImage
		}
	case "REMOVE":
		op = kv.OpDel
	default:
		h.logger.Debug("skipping stream record", "eventID", rec.EventID, "eventName", rec.EventName)
		return nil
	}

	item := ConvertImage(image)
	partition := attrString(item, record.AttrPartition)
	if h.partition != "" && partition != h.partition {
		return nil
	}

	entry, err := record.Decode(item, false, h.ValueAsBuffer)
	if err != nil {
		h.logger.Warn("skipping undecodable stream record",
			"eventID", rec.EventID,
			"sequenceNumber", rec.Change.SequenceNumber,
			"error", err,
		)
		return nil
	}

	c := Change{
		Type:           op,
		Partition:      partition,
		Key:            entry.Key.(string),
		EventID:        rec.EventID,
		SequenceNumber: rec.Change.SequenceNumber,
	}
	if op == kv.OpPut {
		c.Value = entry.Value
	}

	if h.listener == nil {
		return nil
	}
	return h.listener(ctx, c)
}

// TableFromARN extracts the table name from a table or stream ARN such as
// arn:aws:dynamodb:us-east-1:123456789012:table/name/stream/2024-01-01T00:00:00.000.
func TableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	table, _, _ := strings.Cut(rest, "/")
	return table
}

// ConvertImage converts a stream image to SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := ConvertAttribute(v); av != nil {
			result[k] = av
		}
	}
	return result
}

// ConvertAttribute converts one stream attribute value, recursing into
// lists and maps. It returns nil for values it does not recognize.
func ConvertAttribute(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for _, item := range list {
			if av := ConvertAttribute(item); av != nil {
				out = append(out, av)
			}
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}

func attrString(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
