package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict marks a lost create race whose winning row could not be read
// back. A lost race is otherwise resolved by reusing the winner's row.
var ErrConflict = errors.New("concurrent create conflict")

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field-level problem found in one input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns nil when no field failed, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

type AffiliateCreateError struct {
	Reason string
	Err    error
}

func (e *AffiliateCreateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("create affiliate: %s: %v", e.Reason, e.Err)
	}
	return "create affiliate: " + e.Reason
}

func (e *AffiliateCreateError) Unwrap() error {
	return e.Err
}

// TransientPayoutError means settlement failed but the order went back to
// unpaid and the task can run again.
type TransientPayoutError struct {
	OrderID string
	Attempt int
	Err     error
}

func (e *TransientPayoutError) Error() string {
	return fmt.Sprintf("payout %s attempt %d failed: %v", e.OrderID, e.Attempt, e.Err)
}

func (e *TransientPayoutError) Unwrap() error {
	return e.Err
}

// FatalPayoutError means the order is unpaid and flagged for an operator.
type FatalPayoutError struct {
	OrderID string
	Attempt int
	Err     error
}

func (e *FatalPayoutError) Error() string {
	return fmt.Sprintf("payout %s gave up after attempt %d: %v", e.OrderID, e.Attempt, e.Err)
}

func (e *FatalPayoutError) Unwrap() error {
	return e.Err
}
