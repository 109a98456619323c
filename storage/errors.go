package storage

import "github.com/signaldb-go/signaldb/sderrors"

// CoerceError normalizes whatever an Adapter method returned or panicked
// with into a plain error, so the async backend never has to special-case
// a misbehaving adapter. It is a thin, storage-scoped alias over
// sderrors.CoerceError kept here so callers reading this package don't
// need to know the coercion logic lives in sderrors.
func CoerceError(v any) error { return sderrors.CoerceError(v) }
