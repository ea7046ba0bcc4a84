package types

import (
	"errors"
	"fmt"
)

// ErrScoringUnavailable signals that the relevance-scoring capability is
// down (circuit open, client closed). The reranking step is skipped and
// candidates pass through on their preliminary scores.
var ErrScoringUnavailable = errors.New("relevance scoring unavailable")

// TransientStoreError wraps a store failure that is worth retrying once
// (timeout, connection drop). After the retry it is treated as
// path-unavailable and absorbed into the bundle's degradation flags rather
// than failing the request.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// IsTransientStore reports whether err is (or wraps) a TransientStoreError.
func IsTransientStore(err error) bool {
	var t *TransientStoreError
	return errors.As(err, &t)
}

// ConfigurationError reports invalid engine configuration. It is fatal at
// startup; the engine never raises it during a retrieval call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}
