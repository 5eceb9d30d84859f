package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Registry lookups for unknown identifiers.
var ErrNotFound = errors.New("entity: not found")

// ConfigError reports every violation found in an entity document.
// The compiler never stops at the first problem; a misconfigured node
// should surface its complete list of defects in one boot attempt.
type ConfigError struct {
	Violations []string
}

// Error returns all violations joined into a single message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("entity configuration errors: %s", strings.Join(e.Violations, "; "))
}

// add records a formatted violation.
func (e *ConfigError) add(format string, args ...any) {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
}
