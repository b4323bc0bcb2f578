package errors

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeFileNotFound, "no such entry")
	if err.Code != ErrCodeFileNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeFileNotFound)
	}
	if err.Category != CategoryFilesystem {
		t.Errorf("Category = %v, want %v", err.Category, CategoryFilesystem)
	}
	if err.Context == nil {
		t.Error("Context map is nil")
	}
	if err.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodePathInvalid, CategoryFilesystem},
		{ErrCodeFileNotOpen, CategoryFilesystem},
		{ErrCodeMountFailed, CategoryFilesystem},
		{ErrCodeRemoteFailure, CategoryRemote},
		{ErrCodeNotInitialized, CategoryState},
		{ErrCodeInternalError, CategoryInternal},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := GetCategory(tt.code); got != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *DriveFSError
		want string
	}{
		{
			name: "bare",
			err:  NewError(ErrCodeFileNotOpen, "read before open"),
			want: "FILE_NOT_OPEN: read before open",
		},
		{
			name: "component",
			err:  NewError(ErrCodeFileNotOpen, "read before open").WithComponent("tree"),
			want: "[tree] FILE_NOT_OPEN: read before open",
		},
		{
			name: "component and operation with cause",
			err: NewError(ErrCodeRemoteFailure, "fetch failed").
				WithComponent("gdocs").
				WithOperation("fetch_range").
				WithCause(fmt.Errorf("status 500")),
			want: "[gdocs:fetch_range] REMOTE_FAILURE: fetch failed: status 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeFileNotFound, "missing").WithContext("path", "/x")
	wrapped := fmt.Errorf("lookup: %w", err)

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped not-found error should match ErrNotFound")
	}
	if errors.Is(wrapped, ErrNotOpen) {
		t.Error("not-found error should not match ErrNotOpen")
	}
	if errors.Is(errors.New("plain"), ErrNotFound) {
		t.Error("plain error should not match ErrNotFound")
	}
}

func TestUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewError(ErrCodeRemoteFailure, "listing failed").WithCause(cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeRemoteFailure, "fetch failed").
		WithComponent("s3").
		WithStatus(403).
		WithContext("uri", "s3://b/k")
	s := err.String()
	for _, want := range []string{"Code=REMOTE_FAILURE", "Component=s3", "Status=403", `uri="s3://b/k"`} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestToErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{"nil", nil, 0},
		{"invalid path", NewError(ErrCodePathInvalid, "x"), syscall.EINVAL},
		{"not found", NewError(ErrCodeFileNotFound, "x"), syscall.ENOENT},
		{"not open", NewError(ErrCodeFileNotOpen, "x"), syscall.EBADF},
		{"remote", NewError(ErrCodeRemoteFailure, "x"), syscall.EIO},
		{"ambiguous", NewError(ErrCodeAmbiguousMatch, "x"), syscall.EIO},
		{"wrapped not found", fmt.Errorf("ctx: %w", NewError(ErrCodeFileNotFound, "x")), syscall.ENOENT},
		{"foreign", errors.New("boom"), syscall.EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToErrno(tt.err); got != tt.want {
				t.Errorf("ToErrno() = %v, want %v", got, tt.want)
			}
		})
	}
}
