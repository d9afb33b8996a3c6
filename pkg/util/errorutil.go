package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vestlabs/vesting-service/internal/domain"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

// NewUnauthenticated reports a missing or invalid credential.
func NewUnauthenticated(message string) error {
	return NewDomainError("UNAUTHENTICATED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewInternalError hides err behind a generic 500.
func NewInternalError(err error) *DomainError {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// TransferIDCarrier is implemented by errors that reference a committed transfer.
type TransferIDCarrier interface {
	TransferID() string
}

var domainMappings = []struct {
	target error
	code   string
	status int
}{
	{domain.ErrUnauthorized, "UNAUTHORIZED", http.StatusForbidden},
	{domain.ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{domain.ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict},
	{domain.ErrDuplicateGrant, "DUPLICATE_GRANT", http.StatusConflict},
	{domain.ErrInvalidAmount, "INVALID_AMOUNT", http.StatusBadRequest},
	{domain.ErrInvalidSchedule, "INVALID_SCHEDULE", http.StatusBadRequest},
	{domain.ErrInvalidArgument, "VALIDATION_FAILED", http.StatusBadRequest},
	{domain.ErrInsufficientTreasury, "INSUFFICIENT_TREASURY", http.StatusUnprocessableEntity},
	{domain.ErrOverflow, "OVERFLOW", http.StatusUnprocessableEntity},
	{domain.ErrTransferFailed, "TRANSFER_FAILED", http.StatusBadGateway},
}

// ToDomainError converts engine and framework errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	for _, m := range domainMappings {
		if errors.Is(err, m.target) {
			de := &DomainError{Code: m.code, Message: err.Error(), HTTPStatus: m.status, Err: err}
			var carrier TransferIDCarrier
			if errors.As(err, &carrier) {
				de.Details = map[string]any{"transfer_id": carrier.TransferID()}
			}
			return de
		}
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{
			Code:       http.StatusText(fiberErr.Code),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
		}
	}
	return NewInternalError(err)
}
