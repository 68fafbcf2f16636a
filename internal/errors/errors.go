// Package errors defines the failure taxonomy shared by the execution pipeline.
package errors

import (
	"fmt"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	CodeSourceResolution    Code = "SOURCE_RESOLUTION"
	CodeValidation          Code = "VALIDATION"
	CodeMalformedDocument   Code = "MALFORMED_DOCUMENT"
	CodeBranchAlreadyExists Code = "BRANCH_ALREADY_EXISTS"
	CodeRemoteAPI           Code = "REMOTE_API"
	CodeNoRunTriggered      Code = "NO_RUN_TRIGGERED"
	CodePollTimeout         Code = "POLL_TIMEOUT"
	CodeCleanupWarning      Code = "CLEANUP_WARNING"
	// CodeInternal marks a mutated document that no longer validates.
	CodeInternal Code = "INTERNAL"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrSourceResolution    = New(CodeSourceResolution, "workflow source could not be resolved")
	ErrValidation          = New(CodeValidation, "workflow validation failed")
	ErrMalformedDocument   = New(CodeMalformedDocument, "workflow document is malformed")
	ErrBranchAlreadyExists = New(CodeBranchAlreadyExists, "branch already exists")
	ErrRemoteAPI           = New(CodeRemoteAPI, "remote API call failed")
	ErrNoRunTriggered      = New(CodeNoRunTriggered, "no workflow run was triggered")
	ErrPollTimeout         = New(CodePollTimeout, "workflow run did not complete in time")
	ErrCleanupWarning      = New(CodeCleanupWarning, "branch cleanup failed")
	ErrInternal            = New(CodeInternal, "internal consistency error")
)

// Issue is a single validation finding.
type Issue struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.Line > 0 {
		fmt.Fprintf(&b, "%d:%d: ", i.Line, i.Column)
	}
	b.WriteString(i.Title)
	if i.Detail != "" {
		b.WriteString(": ")
		b.WriteString(i.Detail)
	}
	if i.Code != "" {
		fmt.Fprintf(&b, " [%s]", i.Code)
	}
	return b.String()
}

type Error struct {
	Code    Code
	Message string
	Err     error

	// Optional detail, populated depending on Code.
	Target     string  // VALIDATION/INTERNAL: "original" or "mutated"
	Issues     []Issue // VALIDATION/INTERNAL
	Op         string  // REMOTE_API/BRANCH_ALREADY_EXISTS: failing remote operation
	StatusCode int     // REMOTE_API: provider HTTP status
	RunID      int64   // POLL_TIMEOUT
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Issues) > 0 {
		parts := make([]string, 0, len(e.Issues))
		for _, issue := range e.Issues {
			parts = append(parts, issue.String())
		}
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(parts, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation builds a VALIDATION error for the original document, or an
// INTERNAL error when the mutated document is the one that failed.
func Validation(target string, issues []Issue) *Error {
	if target == "mutated" {
		return &Error{
			Code:    CodeInternal,
			Message: "mutated workflow failed validation",
			Target:  target,
			Issues:  issues,
		}
	}
	return &Error{
		Code:    CodeValidation,
		Message: fmt.Sprintf("%s workflow failed validation", target),
		Target:  target,
		Issues:  issues,
	}
}

// RemoteAPI wraps a failed remote call.
func RemoteAPI(op string, status int, err error) *Error {
	return &Error{
		Code:       CodeRemoteAPI,
		Message:    fmt.Sprintf("%s failed (status %d)", op, status),
		Err:        err,
		Op:         op,
		StatusCode: status,
	}
}

func BranchAlreadyExists(branch string, err error) *Error {
	return &Error{
		Code:    CodeBranchAlreadyExists,
		Message: fmt.Sprintf("branch %q already exists", branch),
		Err:     err,
		Op:      "create_branch",
	}
}

func PollTimeout(runID int64, ticks int) *Error {
	return &Error{
		Code:    CodePollTimeout,
		Message: fmt.Sprintf("run %d not completed after %d polls", runID, ticks),
		RunID:   runID,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
