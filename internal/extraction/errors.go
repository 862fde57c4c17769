package extraction

import (
	"errors"
	"fmt"
)

// ErrNoFormFields marks a document without a native AcroForm dictionary.
// The AcroForm tier is skipped for such documents, not failed.
var ErrNoFormFields = errors.New("document has no AcroForm fields")

// ConfigurationError means a required external capability is missing.
// Fatal, never retried.
type ConfigurationError struct {
	Capability string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("extraction not configured: missing %s", e.Capability)
}

// ExternalServiceError wraps a failed or timed-out model/provider call.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// InvalidModelResponseError means the vision tier returned something that is
// not JSON even after stripping markdown fences. Fatal for the attempt; never
// substituted with a partial result.
type InvalidModelResponseError struct {
	Raw string
	Err error
}

func (e *InvalidModelResponseError) Error() string {
	return fmt.Sprintf("model response is not valid JSON: %v", e.Err)
}

func (e *InvalidModelResponseError) Unwrap() error {
	return e.Err
}
