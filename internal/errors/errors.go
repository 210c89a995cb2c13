package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindPayment
	KindCampaign
	KindConflict
	KindRateLimited
)

var kindCodes = map[Kind]string{
	KindInternal:    "INTERNAL_ERROR",
	KindValidation:  "VALIDATION_ERROR",
	KindAuth:        "AUTH_ERROR",
	KindForbidden:   "AUTHORIZATION_ERROR",
	KindNotFound:    "NOT_FOUND",
	KindPayment:     "PAYMENT_ERROR",
	KindCampaign:    "CAMPAIGN_ERROR",
	KindConflict:    "CONFLICT",
	KindRateLimited: "RATE_LIMITED",
}

func (k Kind) String() string {
	return kindCodes[k]
}

// Error is the tagged error passed from storage and services up to the server.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two tagged errors by kind and message so that sentinels survive wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// WithDetails returns a copy of e carrying extra client-visible fields.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error  { return New(KindValidation, msg) }
func Auth(msg string) *Error        { return New(KindAuth, msg) }
func Forbidden(msg string) *Error   { return New(KindForbidden, msg) }
func NotFound(msg string) *Error    { return New(KindNotFound, msg) }
func Payment(msg string) *Error     { return New(KindPayment, msg) }
func Campaign(msg string) *Error    { return New(KindCampaign, msg) }
func Conflict(msg string) *Error    { return New(KindConflict, msg) }
func RateLimited(msg string) *Error { return New(KindRateLimited, msg) }

func Internal(err error, msg string) *Error {
	return Wrap(KindInternal, err, msg)
}

// KindOf reports the kind of the first tagged error in err's chain.
// Untagged errors are internal.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// As extracts the tagged error from err's chain.
func As(err error) (*Error, bool) {
	var tagged *Error
	ok := errors.As(err, &tagged)
	return tagged, ok
}

// Code returns the machine-readable code of err.
func Code(err error) string {
	return KindOf(err).String()
}

var (
	ErrInvalidCredentials   = Auth("incorrect email or password")
	ErrEmailNotVerified     = Auth("please verify your email before logging in")
	ErrAccountInactive      = Forbidden("account is not active")
	ErrMissingToken         = Auth("not authenticated")
	ErrInvalidToken         = Auth("could not validate credentials")
	ErrNotOwner             = Forbidden("not authorized to access this resource")
	ErrInvalidReferralToken = Validation("invalid or expired referral token")
	ErrInvalidOTP           = Validation("invalid or expired OTP")
	ErrEmailTaken           = Validation("user with this email already exists")
)
