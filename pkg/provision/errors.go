// Package provision defines the core types and classified errors shared by
// the provisioning workflow, the infrastructure stack runner, and the
// source-control adapters.
package provision

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

// ErrorKind classifies a provisioning error for HTTP mapping and retry logic.
type ErrorKind string

const (
	// KindValidation indicates malformed or missing request fields.
	// No side effects have been triggered.
	KindValidation ErrorKind = "validation"

	// KindCredential indicates missing or placeholder-valued configuration.
	// No side effects have been triggered.
	KindCredential ErrorKind = "credential"

	// KindPlatform indicates a source-control provider rejection
	// (name collision, auth failure, quota).
	KindPlatform ErrorKind = "platform"

	// KindDependencyInstall indicates the engine's dependency bootstrap failed.
	KindDependencyInstall ErrorKind = "dependency_install"

	// KindStackExecution indicates an infrastructure apply failure. A
	// compensating destroy has been attempted before this error surfaces.
	KindStackExecution ErrorKind = "stack_execution"

	// KindNotFound indicates an unknown template or platform identifier.
	KindNotFound ErrorKind = "not_found"

	// KindTimeout is reserved for per-step timeouts in a hardening pass.
	KindTimeout ErrorKind = "timeout"
)

// Error is a classified provisioning error with context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// StatusCode is the HTTP status to surface; zero means derive from Kind.
	StatusCode int `json:"status_code,omitempty"`

	// Project is the project name the error relates to, if applicable.
	Project string `json:"project,omitempty"`

	// Step is the workflow step during which the error occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
		} else {
			msg = e.Err.Error()
		}
	}
	if e.Project != "" {
		return fmt.Sprintf("[%s] %s (project=%s)", e.Kind, msg, e.Project)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithProject adds project context to an error.
func (e *Error) WithProject(project string) *Error {
	e.Project = project
	return e
}

// WithStep adds workflow step context to an error.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithStatusCode overrides the HTTP status surfaced for this error.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewCredentialError creates a credential error.
func NewCredentialError(message string) *Error {
	return &Error{Kind: KindCredential, Message: message}
}

// NewPlatformError creates a platform error carrying the provider's status.
func NewPlatformError(statusCode int, message string, err error) *Error {
	return &Error{Kind: KindPlatform, StatusCode: statusCode, Message: message, Err: err}
}

// NewDependencyInstallError creates a dependency-install error with stderr.
func NewDependencyInstallError(stderr string, err error) *Error {
	return &Error{Kind: KindDependencyInstall, Message: stderr, Err: err}
}

// NewStackExecutionError creates a stack-execution error wrapping the apply failure.
func NewStackExecutionError(message string, err error) *Error {
	return &Error{Kind: KindStackExecution, Message: message, Err: err}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// KindOf returns the kind of a classified error, or an empty kind.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err is classified as a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsCredential reports whether err is classified as a credential error.
func IsCredential(err error) bool { return KindOf(err) == KindCredential }

// IsPlatform reports whether err is classified as a platform error.
func IsPlatform(err error) bool { return KindOf(err) == KindPlatform }

// IsNotFound reports whether err is classified as a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// HTTPStatus maps a classified error to the HTTP status to surface.
// Platform errors carry the provider's own status when one was extracted.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case KindValidation, KindNotFound:
		return http.StatusBadRequest
	case KindCredential:
		return http.StatusBadRequest
	case KindPlatform:
		return http.StatusInternalServerError
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// statusPattern matches an embedded HTTP status in provider error text,
// e.g. "POST https://api.github.com/orgs/x/repos: 422 name already exists".
var statusPattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// ExtractProviderStatus pattern-matches an embedded HTTP status from provider
// error text so the provider's own code can be surfaced rather than a
// generic 500. The second return is false when no status is present.
func ExtractProviderStatus(message string) (int, bool) {
	match := statusPattern.FindString(message)
	if match == "" {
		return 0, false
	}
	code, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return code, true
}
