// Package errors provides the node's structured error type and the
// spec's error taxonomy, mapped onto grpc status codes so a future wire
// skin can translate them 1:1.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Sentinel errors for common failure scenarios.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInternal      = errors.New("internal error")
)

// AppError is a structured application error carrying a grpc status code.
type AppError struct {
	// Code is a machine-readable error code (e.g., "INVALID_SIGNATURE").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// GRPCStatus is the status code a transport skin should map this to.
	GRPCStatus codes.Code `json:"-"`

	// Err is the wrapped underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string, status codes.Code) *AppError {
	return &AppError{Code: code, Message: message, GRPCStatus: status}
}

// Wrap wraps an existing error into an AppError.
func Wrap(err error, code, message string, status codes.Code) *AppError {
	return &AppError{Code: code, Message: message, GRPCStatus: status, Err: err}
}

// StorageError wraps a persistence-layer failure (read or write path
// undetermined).
func StorageError(err error) *AppError {
	return Wrap(err, "STORAGE_ERROR", "storage operation failed", codes.Internal)
}

// WriteStoreError wraps a failure writing to a store.
func WriteStoreError(err error) *AppError {
	return Wrap(err, "WRITE_STORE_ERROR", "failed to write to store", codes.Internal)
}

// InvalidSignature reports a mutation whose signature does not recover to
// the claimed signer.
func InvalidSignature(err error) *AppError {
	return Wrap(err, "INVALID_SIGNATURE", "mutation signature is invalid", codes.InvalidArgument)
}

// MalformedPayload reports a mutation payload that failed to decode.
func MalformedPayload(err error) *AppError {
	return Wrap(err, "MALFORMED_PAYLOAD", "mutation payload is malformed", codes.InvalidArgument)
}

// UnknownAction reports a mutation action outside the known enum.
func UnknownAction(action int32) *AppError {
	return New("UNKNOWN_ACTION", fmt.Sprintf("unknown mutation action %d", action), codes.InvalidArgument)
}

// InvalidArgument reports a malformed or missing request field.
func InvalidArgument(message string) *AppError {
	return New("INVALID_ARGUMENT", message, codes.InvalidArgument)
}

// PermissionDenied reports a caller lacking the required admin rights.
func PermissionDenied(message string) *AppError {
	return New("PERMISSION_DENIED", message, codes.PermissionDenied)
}

// RollupError wraps a failure in the batching/upload/commit pipeline.
func RollupError(err error) *AppError {
	return Wrap(err, "ROLLUP_ERROR", "rollup operation failed", codes.Internal)
}

// AlreadyRegistered reports an attempt to register an event processor for
// a contract address that already has one.
func AlreadyRegistered(addr string) *AppError {
	return New("ALREADY_REGISTERED", fmt.Sprintf("event processor already registered for %s", addr), codes.AlreadyExists)
}

// IsAppError checks if an error is an AppError and returns it.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
