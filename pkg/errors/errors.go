// Package errors provides the structured error type shared by DriveFS components.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"syscall"
	"time"
)

// ErrorCode identifies a class of DriveFS failure.
type ErrorCode string

const (
	// Configuration
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Path resolution and file state
	ErrCodePathInvalid     ErrorCode = "PATH_INVALID"
	ErrCodeFileNotFound    ErrorCode = "FILE_NOT_FOUND"
	ErrCodeFileNotOpen     ErrorCode = "FILE_NOT_OPEN"
	ErrCodeAmbiguousMatch  ErrorCode = "AMBIGUOUS_MATCH"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// Remote service
	ErrCodeRemoteFailure ErrorCode = "REMOTE_FAILURE"

	// Mounting
	ErrCodeMountFailed   ErrorCode = "MOUNT_FAILED"
	ErrCodeUnmountFailed ErrorCode = "UNMOUNT_FAILED"

	// State and internal
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory groups codes for logging and metrics labels.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryRemote        ErrorCategory = "remote"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrInvalidPath    = &DriveFSError{Code: ErrCodePathInvalid}
	ErrNotFound       = &DriveFSError{Code: ErrCodeFileNotFound}
	ErrNotOpen        = &DriveFSError{Code: ErrCodeFileNotOpen}
	ErrAmbiguousMatch = &DriveFSError{Code: ErrCodeAmbiguousMatch}
	ErrRemoteFailure  = &DriveFSError{Code: ErrCodeRemoteFailure}
)

// DriveFSError is a structured error carrying a code, the component and
// operation that produced it, and an optional cause.
type DriveFSError struct {
	Code      ErrorCode
	Category  ErrorCategory
	Message   string
	Context   map[string]string
	Cause     error
	Timestamp time.Time

	Component string
	Operation string

	// Status is the remote HTTP status for REMOTE_FAILURE errors, 0 otherwise.
	Status int
}

// Error implements the error interface.
func (e *DriveFSError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *DriveFSError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DriveFSError with the same code.
func (e *DriveFSError) Is(target error) bool {
	if t, ok := target.(*DriveFSError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed representation for logging.
func (e *DriveFSError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("Status=%d", e.Status))
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%q", k, e.Context[k]))
		}
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("DriveFSError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new error for code.
func NewError(code ErrorCode, message string) *DriveFSError {
	return &DriveFSError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Context:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// GetCategory determines the category of code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigLoad, ErrCodeConfigValidation:
		return CategoryConfiguration
	case ErrCodePathInvalid, ErrCodeFileNotFound, ErrCodeFileNotOpen, ErrCodeAmbiguousMatch,
		ErrCodeInvalidArgument, ErrCodeMountFailed, ErrCodeUnmountFailed:
		return CategoryFilesystem
	case ErrCodeRemoteFailure:
		return CategoryRemote
	case ErrCodeNotInitialized:
		return CategoryState
	default:
		return CategoryInternal
	}
}

// WithContext adds a key/value pair of context.
func (e *DriveFSError) WithContext(key, value string) *DriveFSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component.
func (e *DriveFSError) WithComponent(component string) *DriveFSError {
	e.Component = component
	return e
}

// WithOperation sets the operation.
func (e *DriveFSError) WithOperation(operation string) *DriveFSError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *DriveFSError) WithCause(cause error) *DriveFSError {
	e.Cause = cause
	return e
}

// WithStatus records the remote status code.
func (e *DriveFSError) WithStatus(status int) *DriveFSError {
	e.Status = status
	return e
}

// CodeOf returns the code of the first DriveFSError in err's chain, or
// ErrCodeInternalError if there is none.
func CodeOf(err error) ErrorCode {
	var de *DriveFSError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternalError
}

// ToErrno maps err to the nearest POSIX error number.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch CodeOf(err) {
	case ErrCodePathInvalid, ErrCodeInvalidArgument:
		return syscall.EINVAL
	case ErrCodeFileNotFound:
		return syscall.ENOENT
	case ErrCodeFileNotOpen:
		return syscall.EBADF
	default:
		return syscall.EIO
	}
}
