package store

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/jacentio/dynadown/internal/codec"
	"github.com/jacentio/dynadown/kv"
)

var (
	// ErrNotFound is returned by Get when the key has no stored value.
	ErrNotFound = kv.ErrNotFound

	// ErrUnsupportedType is returned when a value cannot be stored.
	ErrUnsupportedType = codec.ErrUnsupportedType

	// ErrDecode is returned when a stored attribute cannot be read back.
	ErrDecode = codec.ErrDecode

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("dynadown: store is closed")

	// ErrInvalidLocation is returned when a location names no table.
	ErrInvalidLocation = errors.New("dynadown: invalid location")

	// ErrAlreadyExists is returned by Open when ErrorIfExists is set and the table exists.
	ErrAlreadyExists = errors.New("dynadown: table already exists")

	// ErrNotRegistered is returned by Registry.Destroy for an unknown location.
	ErrNotRegistered = errors.New("dynadown: location not registered")

	// ErrInvalidBatchOp is returned for a batch operation that is neither put nor del.
	ErrInvalidBatchOp = errors.New("dynadown: invalid batch operation")
)

// isResourceNotFound reports whether err means the table does not exist.
func isResourceNotFound(err error) bool {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ResourceNotFoundException"
}

// isResourceInUse reports whether err means the table already exists.
func isResourceInUse(err error) bool {
	var riu *types.ResourceInUseException
	if errors.As(err, &riu) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ResourceInUseException"
}
