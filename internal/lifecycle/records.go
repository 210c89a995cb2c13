package lifecycle

import (
	"fmt"

	"github.com/shopspring/decimal"
	apperr "github.com/theheadmen/studfund/internal/errors"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
	RoleCompany Role = "company"
	RoleDonor   Role = "donor"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleAdmin, RoleCompany, RoleDonor:
		return Role(s), nil
	}
	return "", apperr.Validation(fmt.Sprintf("invalid role: %q", s))
}

// PublicRole reports whether self-registration may pick role.
func PublicRole(r Role) bool {
	return r == RoleStudent || r == RoleDonor
}

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserSuspended UserStatus = "suspended"
)

type ReferralStatus string

const (
	ReferralSent     ReferralStatus = "sent"
	ReferralAccepted ReferralStatus = "accepted"
	ReferralExpired  ReferralStatus = "expired"
)

// CanAccept allows the single sent → accepted transition.
func CanAccept(status ReferralStatus) error {
	if status != ReferralSent {
		return apperr.ErrInvalidReferralToken
	}
	return nil
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodPayPal       PaymentMethod = "paypal"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodSquare       PaymentMethod = "square"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case MethodCreditCard, MethodPayPal, MethodBankTransfer, MethodSquare:
		return PaymentMethod(s), nil
	}
	return "", apperr.Validation(fmt.Sprintf("invalid payment method: %q", s))
}

const MaxDonation = 10000

func CanProcess(status PaymentStatus) error {
	if status != PaymentPending {
		return apperr.Payment(fmt.Sprintf("payment cannot be processed from status %s", status))
	}
	return nil
}

func CanRefund(status PaymentStatus) error {
	if status != PaymentCompleted {
		return apperr.Payment("only completed payments can be refunded")
	}
	return nil
}

// FloorSubtract returns a-b, never below zero.
func FloorSubtract(a, b decimal.Decimal) decimal.Decimal {
	res := a.Sub(b)
	if res.IsNegative() {
		return decimal.Zero
	}
	return res
}

type PartnershipType string

const (
	PartnershipBannerAd      PartnershipType = "banner_ad"
	PartnershipGrantProvider PartnershipType = "grant_provider"
	PartnershipSponsor       PartnershipType = "sponsor"
)

func ParsePartnershipType(s string) (PartnershipType, error) {
	switch PartnershipType(s) {
	case PartnershipBannerAd, PartnershipGrantProvider, PartnershipSponsor:
		return PartnershipType(s), nil
	}
	return "", apperr.Validation(fmt.Sprintf("invalid partnership type: %q", s))
}
