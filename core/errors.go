package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	LedgerErrorValidation          = "LEDGER_VALIDATION"
	LedgerErrorNotFound            = "LEDGER_NOT_FOUND"
	LedgerErrorInvalidState        = "LEDGER_INVALID_STATE"
	LedgerErrorConflict            = "LEDGER_CONFLICT"
	LedgerErrorMismatch            = "LEDGER_MISMATCH"
	LedgerErrorExpired             = "LEDGER_EXPIRED"
	LedgerErrorInsufficientBalance = "LEDGER_INSUFFICIENT_BALANCE"
	LedgerErrorInsufficientSupply  = "LEDGER_INSUFFICIENT_SUPPLY"
	LedgerErrorInvariantViolation  = "LEDGER_INVARIANT_VIOLATION"
	LedgerErrorChain               = "LEDGER_CHAIN_ERROR"
	LedgerErrorCancelled           = "LEDGER_CANCELLED"
	LedgerErrorInternal            = "LEDGER_INTERNAL_ERROR"
)

type errorKind struct {
	category goerrors.Category
	status   int
}

var errorKinds = map[string]errorKind{
	LedgerErrorValidation:          {category: goerrors.CategoryValidation, status: http.StatusBadRequest},
	LedgerErrorNotFound:            {category: goerrors.CategoryNotFound, status: http.StatusNotFound},
	LedgerErrorInvalidState:        {category: goerrors.CategoryOperation, status: http.StatusConflict},
	LedgerErrorConflict:            {category: goerrors.CategoryConflict, status: http.StatusConflict},
	LedgerErrorMismatch:            {category: goerrors.CategoryBadInput, status: http.StatusBadRequest},
	LedgerErrorExpired:             {category: goerrors.CategoryOperation, status: http.StatusGone},
	LedgerErrorInsufficientBalance: {category: goerrors.CategoryOperation, status: http.StatusUnprocessableEntity},
	LedgerErrorInsufficientSupply:  {category: goerrors.CategoryOperation, status: http.StatusUnprocessableEntity},
	LedgerErrorInvariantViolation:  {category: goerrors.CategoryInternal, status: http.StatusInternalServerError},
	LedgerErrorChain:               {category: goerrors.CategoryExternal, status: http.StatusBadGateway},
	LedgerErrorCancelled:           {category: goerrors.CategoryOperation, status: http.StatusRequestTimeout},
	LedgerErrorInternal:            {category: goerrors.CategoryInternal, status: http.StatusInternalServerError},
}

func newLedgerError(textCode string, message string) *goerrors.Error {
	kind, ok := errorKinds[textCode]
	if !ok {
		kind = errorKinds[LedgerErrorInternal]
		textCode = LedgerErrorInternal
	}
	return goerrors.New(message, kind.category).
		WithCode(kind.status).
		WithTextCode(textCode)
}

func ValidationError(field string, message string) *goerrors.Error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(LedgerErrorValidation)
}

func NotFoundError(message string) *goerrors.Error {
	return newLedgerError(LedgerErrorNotFound, message)
}

func InvalidStateError(message string) *goerrors.Error {
	return newLedgerError(LedgerErrorInvalidState, message)
}

func ConflictError(message string) *goerrors.Error {
	return newLedgerError(LedgerErrorConflict, message)
}

func MismatchError(message string) *goerrors.Error {
	return newLedgerError(LedgerErrorMismatch, message)
}

func ExpiredError(message string) *goerrors.Error {
	return newLedgerError(LedgerErrorExpired, message)
}

func InsufficientBalanceError(message string) *goerrors.Error {
	return newLedgerError(LedgerErrorInsufficientBalance, message)
}

func InsufficientSupplyError(message string) *goerrors.Error {
	return newLedgerError(LedgerErrorInsufficientSupply, message)
}

func InvariantViolationError(message string) *goerrors.Error {
	return newLedgerError(LedgerErrorInvariantViolation, message)
}

// ChainError wraps an adapter failure. The ledger mutation it follows has
// already committed.
func ChainError(cause error) *goerrors.Error {
	if cause == nil {
		return newLedgerError(LedgerErrorChain, "chain submission failed")
	}
	kind := errorKinds[LedgerErrorChain]
	return goerrors.Wrap(cause, kind.category, "chain submission failed: "+cause.Error()).
		WithCode(kind.status).
		WithTextCode(LedgerErrorChain)
}

// ErrorKind returns the stable text code carried by err, or "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && strings.TrimSpace(rich.TextCode) != "" {
		return rich.TextCode
	}
	mapped := ledgerErrorMapper(err)
	if mapped == nil {
		return ""
	}
	return mapped.TextCode
}

func IsKind(err error, textCode string) bool {
	return err != nil && ErrorKind(err) == textCode
}

func IsChainError(err error) bool {
	return IsKind(err, LedgerErrorChain)
}

func ledgerErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureLedgerErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newLedgerError(LedgerErrorCancelled, "operation cancelled before it was applied")
	case errors.Is(err, ErrRecordNotFound):
		return newLedgerError(LedgerErrorNotFound, "record not found")
	case errors.Is(err, ErrAttestationAlreadyMinted):
		return newLedgerError(LedgerErrorConflict, "attestation has already been used to mint credits")
	case errors.Is(err, ErrRecordExists):
		return newLedgerError(LedgerErrorConflict, "record already exists")
	case errors.Is(err, ErrInvalidProjectStatusTransition):
		return newLedgerError(LedgerErrorInvalidState, err.Error())
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureLedgerErrorEnvelope(mapped)
}

func ensureLedgerErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultLedgerTextCode(err.Category)
	}
	if err.Code == 0 {
		if kind, ok := errorKinds[err.TextCode]; ok {
			err.Code = kind.status
		} else {
			err.Code = http.StatusInternalServerError
		}
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultLedgerTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return LedgerErrorValidation
	case goerrors.CategoryNotFound:
		return LedgerErrorNotFound
	case goerrors.CategoryConflict:
		return LedgerErrorConflict
	case goerrors.CategoryOperation:
		return LedgerErrorInvalidState
	case goerrors.CategoryExternal:
		return LedgerErrorChain
	default:
		return LedgerErrorInternal
	}
}
