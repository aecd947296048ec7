package workflow

import (
	"errors"
	"fmt"

	"argus/internal/store"
)

// Kind classifies expected workflow failures. Callers branch on the kind to
// render localized user-facing messages; they never inspect raw store errors.
type Kind string

const (
	KindUnauthenticated        Kind = "unauthenticated"
	KindUnauthorized           Kind = "unauthorized"
	KindNotFound               Kind = "not_found"
	KindInvalidState           Kind = "invalid_state"
	KindTerminalState          Kind = "terminal_state"
	KindAlreadyAssigned        Kind = "already_assigned"
	KindAlreadyAssignedToOther Kind = "already_assigned_to_other"
	KindAlreadyInState         Kind = "already_in_state"
	KindEligibilityRejected    Kind = "eligibility_rejected"
	KindStoreUnavailable       Kind = "store_unavailable"
)

// Error is the single result type for all expected operation failures.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func fail(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an operation error, or empty for nil/foreign
// errors.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// storeFail normalizes an unexpected persistence error, preserving NotFound.
func storeFail(err error, context string) *Error {
	if errors.Is(err, store.ErrNotFound) {
		return fail(KindNotFound, "%s not found", context)
	}
	return fail(KindStoreUnavailable, "%s: %v", context, err)
}
