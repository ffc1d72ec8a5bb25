package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type ErrorCode string

const (
	CodeUnknownProduct      ErrorCode = "unknown_product"
	CodeInsufficientStock   ErrorCode = "insufficient_stock"
	CodeInvalidTransition   ErrorCode = "invalid_transition"
	CodeRoutingViolation    ErrorCode = "routing_violation"
	CodeDimensionMismatch   ErrorCode = "dimension_mismatch"
	CodeNotFound            ErrorCode = "not_found"
	CodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	CodeInvalidInput        ErrorCode = "invalid_input"
	CodeInvalidSignature    ErrorCode = "invalid_signature"
)

// DomainError is a recoverable condition reported back to the agent.
// errors.Is matches on Code, so the sentinels below work as targets.
type DomainError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

var (
	ErrUnknownProduct      = &DomainError{Code: CodeUnknownProduct, Message: "unknown product"}
	ErrInsufficientStock   = &DomainError{Code: CodeInsufficientStock, Message: "insufficient stock"}
	ErrInvalidTransition   = &DomainError{Code: CodeInvalidTransition, Message: "invalid transition"}
	ErrRoutingViolation    = &DomainError{Code: CodeRoutingViolation, Message: "routing violation"}
	ErrDimensionMismatch   = &DomainError{Code: CodeDimensionMismatch, Message: "dimension mismatch"}
	ErrNotFound            = &DomainError{Code: CodeNotFound, Message: "not found"}
	ErrUpstreamUnavailable = &DomainError{Code: CodeUpstreamUnavailable, Message: "upstream unavailable"}
	ErrInvalidInput        = &DomainError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrInvalidSignature    = &DomainError{Code: CodeInvalidSignature, Message: "invalid signature"}
)

func unknownProduct(sku string) error {
	return &DomainError{
		Code:    CodeUnknownProduct,
		Message: fmt.Sprintf("product %q not found", sku),
		Details: map[string]interface{}{"sku": sku},
	}
}

func insufficientStock(sku string, requested, sellable int) error {
	return &DomainError{
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %s: available=%d, requested=%d", sku, sellable, requested),
		Details: map[string]interface{}{"sku": sku, "requested": requested, "available": sellable},
	}
}

func invalidTransition(format string, args ...interface{}) error {
	return &DomainError{Code: CodeInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func notFound(entity string, key interface{}) error {
	return &DomainError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %v not found", entity, key),
		Details: map[string]interface{}{"entity": entity, "key": key},
	}
}

func invalidInput(format string, args ...interface{}) error {
	return &DomainError{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func dimensionMismatch(expected, got int) error {
	return &DomainError{
		Code:    CodeDimensionMismatch,
		Message: fmt.Sprintf("embedding has %d dimensions, expected %d", got, expected),
		Details: map[string]interface{}{"expected": expected, "got": got},
	}
}

func invalidSignature(provider string) error {
	return &DomainError{
		Code:    CodeInvalidSignature,
		Message: fmt.Sprintf("%s callback signature does not match", provider),
		Details: map[string]interface{}{"provider": provider},
	}
}

func upstreamUnavailable(collaborator string, err error) error {
	return &DomainError{
		Code:    CodeUpstreamUnavailable,
		Message: fmt.Sprintf("%s is unavailable", collaborator),
		Details: map[string]interface{}{"collaborator": collaborator},
		Err:     err,
	}
}

// NewInvalidInput lets transports report malformed arguments in the same taxonomy.
func NewInvalidInput(format string, args ...interface{}) error {
	return invalidInput(format, args...)
}

// notFoundOr maps gorm.ErrRecordNotFound to NotFound and wraps anything else.
func notFoundOr(err error, entity string, key interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity, key)
	}
	return fmt.Errorf("failed to load %s %v: %w", entity, key, err)
}

// AsDomainError extracts the DomainError from a wrapped chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
