package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger error for the caller.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindState
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a business-rule failure. Two Errors match under errors.Is when
// their codes are equal, so callers compare against the sentinels below.
type Error struct {
	Kind   Kind
	Code   string
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrMalformedReference = &Error{Kind: KindValidation, Code: "malformed_reference"}
	ErrRewardInactive     = &Error{Kind: KindValidation, Code: "reward_inactive"}
	ErrSelfReferral       = &Error{Kind: KindValidation, Code: "self_referral"}

	ErrInsufficientBalance = &Error{Kind: KindState, Code: "insufficient_balance"}
	ErrAlreadyCompleted    = &Error{Kind: KindState, Code: "already_completed"}
	ErrAlreadyClaimed      = &Error{Kind: KindState, Code: "already_claimed"}
	ErrDuplicateSurvey     = &Error{Kind: KindState, Code: "duplicate_survey"}
	ErrReferralExists      = &Error{Kind: KindState, Code: "referral_exists"}
	ErrCodeTaken           = &Error{Kind: KindState, Code: "code_taken"}
	ErrInvariantViolation  = &Error{Kind: KindState, Code: "invariant_violation"}

	ErrAccountNotEnrolled = &Error{Kind: KindNotFound, Code: "account_not_enrolled"}
	ErrRewardNotFound     = &Error{Kind: KindNotFound, Code: "reward_not_found"}
	ErrReferralNotFound   = &Error{Kind: KindNotFound, Code: "referral_not_found"}
)

func errorf(base *Error, format string, args ...any) error {
	return &Error{Kind: base.Kind, Code: base.Code, Detail: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of a ledger error. ok is false for anything else,
// such as a storage failure.
func KindOf(err error) (kind Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// CodeOf returns the ledger error code, or "" if err is not a ledger error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
