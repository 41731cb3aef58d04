package service

import (
	"errors"
)

// Domain errors returned by the ledger services. Callers match them with errors.Is.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrSelfJoin           = errors.New("cannot join your own match")
	ErrNotAParticipant    = errors.New("not a participant")
	ErrNotOwner           = errors.New("not the match owner")
	ErrDuplicateReference = errors.New("duplicate external reference")
	ErrContentionTimeout  = errors.New("contention timeout")
	ErrInvalidReference   = errors.New("invalid external reference")
	ErrInvalidOutcome     = errors.New("invalid deposit outcome")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrNotFound, "not_found"},
	{ErrInvalidState, "invalid_state"},
	{ErrSelfJoin, "self_join"},
	{ErrNotAParticipant, "not_a_participant"},
	{ErrNotOwner, "not_owner"},
	{ErrDuplicateReference, "duplicate_reference"},
	{ErrContentionTimeout, "contention_timeout"},
	{ErrInvalidReference, "invalid_reference"},
	{ErrInvalidOutcome, "invalid_outcome"},
}

// ErrorKind returns a stable label for err: "ok" for nil, "internal" for
// anything that is not a domain error.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// IsDomainError reports whether err is one of the ledger's typed errors
func IsDomainError(err error) bool {
	kind := ErrorKind(err)
	return kind != "ok" && kind != "internal"
}

// IsRetryable reports whether the caller may retry the same request unchanged
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContentionTimeout)
}
