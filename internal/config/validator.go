package config

import (
	"fmt"
	"strings"
)

// Validator is implemented by config types that can self-check.
type Validator interface {
	Validate() error
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError aggregates several ValidationErrors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

// Validate checks a ServerConfig for required fields and internal consistency.
func (c *ServerConfig) Validate() error {
	var errs []ValidationError

	if c.Version == "" {
		errs = append(errs, ValidationError{Field: "version", Message: "version is required"})
	}
	if c.ObjectStore.Backend != "local" && c.ObjectStore.Backend != "s3" {
		errs = append(errs, ValidationError{
			Field:   "object_store.backend",
			Message: fmt.Sprintf("unsupported backend %q, want local or s3", c.ObjectStore.Backend),
		})
	}
	if c.ObjectStore.Backend == "s3" && c.ObjectStore.Bucket == "" {
		errs = append(errs, ValidationError{Field: "object_store.bucket", Message: "bucket is required for s3 backend"})
	}
	if c.Ingester.MaxBufferRows <= 0 {
		errs = append(errs, ValidationError{Field: "ingester.max_buffer_rows", Message: "must be positive"})
	}
	if c.Debuginfo.MaxUploadSize <= 0 {
		errs = append(errs, ValidationError{Field: "debuginfo.max_upload_size", Message: "must be positive"})
	}
	if c.Debuginfo.MetadataCacheCapacity <= 0 {
		errs = append(errs, ValidationError{Field: "debuginfo.metadata_cache_capacity", Message: "must be positive"})
	}
	if c.Symbolizer.CacheCapacity <= 0 {
		errs = append(errs, ValidationError{Field: "symbolizer.cache_capacity", Message: "must be positive"})
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}
