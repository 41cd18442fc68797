/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when a record does not exist locally or remotely
	ErrNotFound = errors.New("record not found")

	// ErrTransient is returned for network and timeout failures the caller may retry
	ErrTransient = errors.New("transient fetch failure")

	// ErrStore is returned when the local store fails a read, write or transaction
	ErrStore = errors.New("store failure")

	// ErrPartialResolution marks a single record that could not be resolved inside a page
	ErrPartialResolution = errors.New("partial resolution")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrConditionFailed is returned when a conditional write loses a race
	ErrConditionFailed = errors.New("condition check failed")
)

// NotFoundError represents a record that could not be found.
// Cause, when set, records why a lookup gave up (for example a transient
// remote failure that was normalized to "not found").
type NotFoundError struct {
	Type  string
	Key   string
	Cause error
}

func (e *NotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s with key %q not found: %v", e.Type, e.Key, e.Cause)
	}
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

// TransientFetchError represents a retryable remote failure
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Is(target error) bool {
	return target == ErrTransient
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// StoreError represents a local store failure
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PartialResolutionWarning reports a record dropped from an otherwise
// successful page load. It is logged, never returned from a load.
type PartialResolutionWarning struct {
	ID  int
	Err error
}

func (e *PartialResolutionWarning) Error() string {
	return fmt.Sprintf("record %d dropped from page: %v", e.ID, e.Err)
}

func (e *PartialResolutionWarning) Is(target error) bool {
	return target == ErrPartialResolution
}

func (e *PartialResolutionWarning) Unwrap() error {
	return e.Err
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ConditionFailedError represents a failed conditional operation
type ConditionFailedError struct {
	Operation string
	Condition string
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition check failed for %s operation: %s", e.Operation, e.Condition)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewNotFoundErrorWithCause creates a NotFoundError that keeps the underlying cause
func NewNotFoundErrorWithCause(entityType, key string, cause error) error {
	return &NotFoundError{Type: entityType, Key: key, Cause: cause}
}

// NewTransientFetchError creates a new TransientFetchError
func NewTransientFetchError(op string, err error) error {
	return &TransientFetchError{Op: op, Err: err}
}

// NewStoreError creates a new StoreError. A nil err yields nil and an err
// that already is a StoreError is returned unchanged.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsStoreError(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// NewPartialResolutionWarning creates a new PartialResolutionWarning
func NewPartialResolutionWarning(id int, err error) error {
	return &PartialResolutionWarning{ID: id, Err: err}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewConditionFailedError creates a new ConditionFailedError
func NewConditionFailedError(operation, condition string) error {
	return &ConditionFailedError{Operation: operation, Condition: condition}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient checks if an error is a transient fetch error
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsStoreError checks if an error is a store error
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsPartialResolution checks if an error is a partial resolution warning
func IsPartialResolution(err error) bool {
	return errors.Is(err, ErrPartialResolution)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConditionFailed checks if an error is a condition failed error
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}
