package lifecycle

import (
	"crypto/subtle"
	"time"
)

type OTPPurpose string

const (
	PurposeEmailVerification OTPPurpose = "email_verification"
	PurposePasswordReset     OTPPurpose = "password_reset"
)

func ValidPurpose(p string) bool {
	return p == string(PurposeEmailVerification) || p == string(PurposePasswordReset)
}

const (
	OTPCodeLength  = 6
	OTPExpiry      = 10 * time.Minute
	OTPMaxAttempts = 3
)

// OTPState is the part of a stored code that verification looks at.
type OTPState struct {
	Code      string
	ExpiresAt time.Time
	Attempts  int
}

type OTPResult int

const (
	OTPVerified OTPResult = iota
	OTPMismatch
	OTPExpired
	OTPExhausted
)

// OTPOutcome tells storage what to write back for one verification attempt.
type OTPOutcome struct {
	Result    OTPResult
	Consume   bool
	Increment bool
	Remaining int
}

func (o OTPOutcome) Verified() bool {
	return o.Result == OTPVerified
}

// EvaluateOTP decides one guess against the latest unused code.
// Expiry and exhaustion are checked before the code is compared, so a correct
// guess after the limit still fails.
func EvaluateOTP(st OTPState, code string, now time.Time, maxAttempts int) OTPOutcome {
	if !now.Before(st.ExpiresAt) {
		return OTPOutcome{Result: OTPExpired, Consume: true}
	}
	if st.Attempts >= maxAttempts {
		return OTPOutcome{Result: OTPExhausted, Consume: true}
	}
	if subtle.ConstantTimeCompare([]byte(st.Code), []byte(code)) == 1 {
		return OTPOutcome{Result: OTPVerified, Consume: true, Remaining: maxAttempts - st.Attempts}
	}
	return OTPOutcome{Result: OTPMismatch, Increment: true, Remaining: maxAttempts - st.Attempts - 1}
}
