package credit

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the balance engine.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountExists           = errors.New("account already exists")
	ErrAccountInactive         = errors.New("account inactive")
	ErrInsufficientCredits     = errors.New("insufficient credits")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrBalanceConflict         = errors.New("balance changed concurrently")
	ErrUnknownPackage          = errors.New("unknown package")
	ErrPackageNotEligible      = errors.New("package not eligible for role")
	ErrLedgerMismatch          = errors.New("balance does not match ledger")
	ErrInvalidAccountID        = errors.New("invalid account id")
	ErrInvalidAdminID          = errors.New("invalid admin id")
	ErrInvalidRole             = errors.New("invalid role")
	ErrInvalidActionType       = errors.New("invalid action type")
	ErrInvalidAccountStatus    = errors.New("invalid account status")
	ErrInvalidEntryKind        = errors.New("invalid entry kind")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrInvalidMetadataJSON     = errors.New("invalid metadata json")
	ErrInvalidEngineConfig     = errors.New("invalid engine config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
