// Package codec converts between Go values and DynamoDB attribute values.
//
// The mapping is lossy in one place: nil, "" and zero-length []byte all
// encode to NULL, because DynamoDB cannot hold an empty string or binary in
// every position. NULL decodes to nil or to an empty []byte depending on the
// caller's as-buffer flag; the original shape is not recoverable.
//
// Numbers decode to float64. An N value beyond the float64 range decodes to
// +Inf or -Inf.
package codec

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrUnsupportedType is returned when a value has no attribute representation.
	ErrUnsupportedType = errors.New("dynadown: cannot serialize value")

	// ErrDecode is returned when an attribute cannot be turned back into a value.
	ErrDecode = errors.New("dynadown: cannot parse attribute")
)

// null is the encoded form of every empty value.
func null() types.AttributeValue {
	return &types.AttributeValueMemberNULL{Value: true}
}

// Encode converts v into its tagged attribute form.
func Encode(v any) (types.AttributeValue, error) {
	switch x := v.(type) {
	case nil:
		return null(), nil
	case string:
		if x == "" {
			return null(), nil
		}
		return &types.AttributeValueMemberS{Value: x}, nil
	case []byte:
		if len(x) == 0 {
			return null(), nil
		}
		return &types.AttributeValueMemberB{Value: x}, nil
	case bool:
		return &types.AttributeValueMemberBOOL{Value: x}, nil
	case float64:
		return encodeFloat(x, 64)
	case int:
		return &types.AttributeValueMemberN{Value: strconv.Itoa(x)}, nil
	case []any:
		return encodeList(reflect.ValueOf(x))
	case map[string]any:
		return encodeMap(reflect.ValueOf(x))
	}
	return encodeReflect(reflect.ValueOf(v))
}

// encodeReflect handles named types and the less common kinds.
func encodeReflect(rv reflect.Value) (types.AttributeValue, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return null(), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return null(), nil
		}
		return encodeReflect(rv.Elem())
	case reflect.String:
		return Encode(rv.String())
	case reflect.Bool:
		return &types.AttributeValueMemberBOOL{Value: rv.Bool()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(rv.Int(), 10)}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return &types.AttributeValueMemberN{Value: strconv.FormatUint(rv.Uint(), 10)}, nil
	case reflect.Float32:
		return encodeFloat(rv.Float(), 32)
	case reflect.Float64:
		return encodeFloat(rv.Float(), 64)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Encode(rv.Bytes())
		}
		return encodeList(rv)
	case reflect.Array:
		return encodeList(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		return encodeMap(rv)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

func encodeFloat(f float64, bits int) (types.AttributeValue, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: non-finite number %v", ErrUnsupportedType, f)
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'g', -1, bits)}, nil
}

func encodeList(rv reflect.Value) (types.AttributeValue, error) {
	list := make([]types.AttributeValue, rv.Len())
	for i := range list {
		av, err := Encode(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		list[i] = av
	}
	return &types.AttributeValueMemberL{Value: list}, nil
}

func encodeMap(rv reflect.Value) (types.AttributeValue, error) {
	m := make(map[string]types.AttributeValue, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		av, err := Encode(iter.Value().Interface())
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		m[k] = av
	}
	return &types.AttributeValueMemberM{Value: m}, nil
}

// Decode converts an attribute back into a Go value. With asBuffer set,
// strings and NULL come back as []byte.
func Decode(av types.AttributeValue, asBuffer bool) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberNULL:
		if asBuffer {
			return []byte{}, nil
		}
		return nil, nil
	case *types.AttributeValueMemberS:
		if asBuffer {
			return []byte(v.Value), nil
		}
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		f, err := strconv.ParseFloat(v.Value, 64)
		if errors.Is(err, strconv.ErrRange) {
			// Past the float64 range: f is already ±Inf.
			return f, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w N: %q", ErrDecode, v.Value)
		}
		return f, nil
	case *types.AttributeValueMemberL:
		list := make([]any, len(v.Value))
		for i, item := range v.Value {
			decoded, err := Decode(item, asBuffer)
			if err != nil {
				return nil, err
			}
			list[i] = decoded
		}
		return list, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]any, len(v.Value))
		for k, item := range v.Value {
			decoded, err := Decode(item, asBuffer)
			if err != nil {
				return nil, err
			}
			m[k] = decoded
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w %s", ErrDecode, Tag(av))
}

// Tag returns the wire tag of an attribute value ("S", "NULL", ...).
func Tag(av types.AttributeValue) string {
	switch v := av.(type) {
	case nil:
		return "<nil>"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberL:
		return "L"
	case *types.AttributeValueMemberM:
		return "M"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	case *types.UnknownUnionMember:
		return v.Tag
	default:
		return fmt.Sprintf("%T", av)
	}
}
