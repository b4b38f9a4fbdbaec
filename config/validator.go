// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // The config key (e.g., "pipeline.ring_capacity")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns every
// validation error found. The capture frame is not validated: a malformed
// value only disables the scheduled capture.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Pipeline.RingCapacity < 2 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.ring_capacity",
			Value:   c.Pipeline.RingCapacity,
			Message: "must be at least 2",
		})
	}
	if c.Pipeline.HeapSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.heap_size",
			Value:   c.Pipeline.HeapSize,
			Message: "must be positive",
		})
	}
	if c.Reclaim.PageSize == 0 {
		errs = append(errs, ValidationError{
			Field:   "reclaim.page_size",
			Value:   c.Reclaim.PageSize,
			Message: "must be positive",
		})
	}
	if c.Reclaim.BudgetMB <= 0 {
		errs = append(errs, ValidationError{
			Field:   "reclaim.budget_mb",
			Value:   c.Reclaim.BudgetMB,
			Message: "must be positive",
		})
	} else if uint64(c.Reclaim.BudgetMB)<<20 < c.Reclaim.PageSize {
		errs = append(errs, ValidationError{
			Field:   "reclaim.budget_mb",
			Value:   c.Reclaim.BudgetMB,
			Message: "must hold at least one page",
		})
	}
	if c.Reclaim.MaxFreePages < 0 {
		errs = append(errs, ValidationError{
			Field:   "reclaim.max_free_pages",
			Value:   c.Reclaim.MaxFreePages,
			Message: "must not be negative",
		})
	}
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	return errs
}
