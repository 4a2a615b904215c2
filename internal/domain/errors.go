package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidDocumentStatus = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidMessageRole    = NewDomainError(ErrCodeValidation, "invalid message role")
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrProjectNotFound      = NewDomainError(ErrCodeNotFound, "project not found")
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrSynthesisNotFound    = NewDomainError(ErrCodeNotFound, "synthesis not found")
)

// Operation errors
var (
	ErrIllegalTransition    = NewDomainError(ErrCodeInvalidOperation, "illegal document status transition")
	ErrInsufficientData     = NewDomainError(ErrCodeInvalidOperation, "not enough conversation data to generate synthesis")
	ErrSynthesisConflict    = NewDomainError(ErrCodeConflict, "synthesis version already committed by a concurrent run")
	ErrProcessingTimeout    = NewDomainError(ErrCodeInternalError, "document processing timed out")
	ErrUnsupportedMimeType  = NewDomainError(ErrCodeValidation, "unsupported media type")
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
