package domain

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the error taxonomy from spec §7. Workers branch on
// Kind, never on error strings.
type ErrorKind string

const (
	KindTransient        ErrorKind = "TRANSIENT"
	KindPermanent         ErrorKind = "PERMANENT"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindConflict          ErrorKind = "CONFLICT"
	KindTenantViolation   ErrorKind = "TENANT_VIOLATION"
)

// JobError carries a kind alongside the usual wrapped cause, the way the
// teacher's qdrant.OperationError carries a Code. The broker and worker use
// Kind to choose retry vs. dead-letter vs. no-op-ack policy.
type JobError struct {
	Kind      ErrorKind
	Operation string
	Message   string
	Cause     error
}

func (e *JobError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Operation, e.Message)
}

func (e *JobError) Unwrap() error { return e.Cause }

func Transient(op, msg string, cause error) *JobError {
	return &JobError{Kind: KindTransient, Operation: op, Message: msg, Cause: cause}
}

func Permanent(op, msg string, cause error) *JobError {
	return &JobError{Kind: KindPermanent, Operation: op, Message: msg, Cause: cause}
}

func NotFound(op, msg string) *JobError {
	return &JobError{Kind: KindNotFound, Operation: op, Message: msg}
}

func Conflict(op, msg string) *JobError {
	return &JobError{Kind: KindConflict, Operation: op, Message: msg}
}

// TenantViolation never propagates to a caller as a recoverable error; the
// adapter that constructs one is expected to log+alert and panic or return
// a fatal program error, per §7 "fail closed, log, alert".
func TenantViolation(op, msg string) *JobError {
	return &JobError{Kind: KindTenantViolation, Operation: op, Message: msg}
}

func KindOf(err error) ErrorKind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return KindTransient
}
