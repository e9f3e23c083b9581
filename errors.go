package sketchkv

import "github.com/jcalabro/sketchkv/sketcherr"

// Error kinds returned by the store and the structure packages.
var (
	ErrConfiguration      = sketcherr.ErrConfiguration
	ErrKeyNotFound        = sketcherr.ErrKeyNotFound
	ErrKeyExists          = sketcherr.ErrKeyExists
	ErrTypeMismatch       = sketcherr.ErrTypeMismatch
	ErrCapacityExceeded   = sketcherr.ErrCapacityExceeded
	ErrDimensionMismatch  = sketcherr.ErrDimensionMismatch
	ErrOutOfOrderChunk    = sketcherr.ErrOutOfOrderChunk
	ErrArityMismatch      = sketcherr.ErrArityMismatch
	ErrInvalidArgument    = sketcherr.ErrInvalidArgument
	ErrInvalidData        = sketcherr.ErrInvalidData
	ErrUnsupportedVersion = sketcherr.ErrUnsupportedVersion
)
