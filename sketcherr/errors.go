// Package sketcherr defines the error kinds shared by every sketch package
// and the key store.
//
// Packages wrap these sentinels with context using fmt.Errorf("%w: ...") so
// callers can classify failures with errors.Is regardless of which structure
// produced them.
package sketcherr

import "errors"

var (
	// ErrConfiguration is returned for invalid or mutually exclusive
	// creation parameters.
	ErrConfiguration = errors.New("configuration error")

	// ErrKeyNotFound is returned when an operation requires an existing key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyExists is returned when creating a structure under a key that is
	// already taken.
	ErrKeyExists = errors.New("key already exists")

	// ErrTypeMismatch is returned when a key holds a different kind of
	// structure than the operation expects.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrCapacityExceeded is returned when a non-growing structure is full.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrDimensionMismatch is returned when merging sketches of different shape.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrOutOfOrderChunk is returned when a load chunk does not continue the
	// byte stream of an in-progress load.
	ErrOutOfOrderChunk = errors.New("out of order chunk")

	// ErrArityMismatch is returned when parallel argument lists differ in length.
	ErrArityMismatch = errors.New("arity mismatch")

	// ErrInvalidArgument is returned for out-of-domain operation arguments.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidData is returned when serialized data is invalid or corrupted.
	ErrInvalidData = errors.New("invalid serialized data")

	// ErrUnsupportedVersion is returned when the serialization version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported serialization version")
)
