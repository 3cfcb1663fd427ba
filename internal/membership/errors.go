package membership

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict means the ledger changed between read and write. The whole
	// append may be retried from the read.
	ErrConflict = errors.New("ledger changed concurrently")
	// ErrStoreUnavailable covers every other store failure.
	ErrStoreUnavailable = errors.New("member store unavailable")
)

// ValidationError lists required submission fields that were missing or empty.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// ConfigurationError reports deployment settings that prevent any append.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("server configuration error: missing %s", strings.Join(e.Missing, ", "))
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
