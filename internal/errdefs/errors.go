// Package errdefs defines the error taxonomy shared by the harness packages.
//
// Configuration problems are fatal and surface before any virtual user is
// spawned. Request failures are recovered inside a single workload iteration.
// Hook failures abort the run (setup) or degrade it (teardown).
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoData is reported when a statistic is requested from a bucket that
// never received a sample.
var ErrNoData = errors.New("no data")

// ConfigError represents an invalid plan, threshold or workload definition.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConfigErrors is a collection of configuration errors.
type ConfigErrors struct {
	Errors []*ConfigError
}

func (e *ConfigErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no config errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d config errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ConfigErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ConfigError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ConfigErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns the collection as an error, or nil when it is empty.
func (e *ConfigErrors) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsConfigError reports whether err is, or wraps, a configuration error.
func IsConfigError(err error) bool {
	var single *ConfigError
	var multi *ConfigErrors
	return errors.As(err, &single) || errors.As(err, &multi)
}

// RequestError describes a single workload HTTP call that failed or returned
// a non-success response.
type RequestError struct {
	Op         string
	Bucket     string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.Bucket != "" {
		sb.WriteString(" [" + e.Bucket + "]")
	}
	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf(": status %d", e.StatusCode))
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// SetupError wraps a failure of the setup hook. The run does not start.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return "setup failed: " + e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// TeardownError wraps a failure of the teardown hook. Evaluation still runs.
type TeardownError struct {
	Err error
}

func (e *TeardownError) Error() string {
	return "teardown failed: " + e.Err.Error()
}

func (e *TeardownError) Unwrap() error {
	return e.Err
}
