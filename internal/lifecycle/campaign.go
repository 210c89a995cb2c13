// Package lifecycle holds the status rules of campaigns, referrals, payments and
// one-time codes. Storage applies them inside transactions; nothing here touches
// the database.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	apperr "github.com/theheadmen/studfund/internal/errors"
)

type CampaignStatus string

const (
	CampaignDraft           CampaignStatus = "draft"
	CampaignPendingApproval CampaignStatus = "pending_approval"
	CampaignActive          CampaignStatus = "active"
	CampaignPaused          CampaignStatus = "paused"
	CampaignCompleted       CampaignStatus = "completed"
	CampaignCancelled       CampaignStatus = "cancelled"
	CampaignExpired         CampaignStatus = "expired"
	CampaignClosed          CampaignStatus = "closed"
)

var campaignStatuses = []CampaignStatus{
	CampaignDraft, CampaignPendingApproval, CampaignActive, CampaignPaused,
	CampaignCompleted, CampaignCancelled, CampaignExpired, CampaignClosed,
}

func ParseCampaignStatus(s string) (CampaignStatus, error) {
	for _, st := range campaignStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", apperr.Validation(fmt.Sprintf("invalid campaign status: %q", s))
}

const (
	DefaultMinReferrals = 5
	daysPerMonth        = 30
	MaxGoalAmount       = 100000
	MinTitleLength      = 5
	MinDescription      = 20
)

var allowedDurations = map[int]bool{1: true, 3: true, 6: true, 12: true}

func ValidDuration(months int) bool {
	return allowedDurations[months]
}

// CampaignDates returns the end of a campaign running for months from start.
func CampaignDates(start time.Time, months int) (time.Time, time.Time) {
	return start, start.AddDate(0, 0, months*daysPerMonth)
}

// ShouldPromote reports whether a draft has collected enough accepted referrals
// to move to pending_approval.
func ShouldPromote(status CampaignStatus, accepted int64, min int) bool {
	return status == CampaignDraft && accepted >= int64(min)
}

func CanApprove(status CampaignStatus) error {
	if status != CampaignPendingApproval {
		return apperr.Campaign(fmt.Sprintf("campaign must be pending approval, got %s", status))
	}
	return nil
}

func CampaignEditable(status CampaignStatus) error {
	if status == CampaignClosed {
		return apperr.Campaign("closed campaigns cannot be modified")
	}
	return nil
}

func AcceptsDonations(status CampaignStatus) error {
	if status != CampaignActive {
		return apperr.Campaign("campaign is not accepting donations")
	}
	return nil
}

// StartPolicy decides whether an owner may move a draft straight to active.
type StartPolicy string

const (
	// StartReferralGated requires the campaign to have met the referral minimum.
	StartReferralGated StartPolicy = "referral_gated"
	// StartUnchecked lets any draft start.
	StartUnchecked StartPolicy = "unchecked"
)

func ParseStartPolicy(s string) (StartPolicy, error) {
	switch StartPolicy(s) {
	case StartReferralGated, StartUnchecked:
		return StartPolicy(s), nil
	}
	return "", fmt.Errorf("unknown campaign start policy %q", s)
}

func (p StartPolicy) CanStart(status CampaignStatus, referralCount int, min int) error {
	if status != CampaignDraft {
		return apperr.Campaign("only draft campaigns can be started")
	}
	if p == StartReferralGated && referralCount < min {
		return apperr.Campaign(fmt.Sprintf("campaign needs at least %d accepted referrals to start, has %d", min, referralCount))
	}
	return nil
}

// CreationPolicy decides whether a user may open a new campaign.
type CreationPolicy string

const (
	// CreateOpen creates drafts unconditionally.
	CreateOpen CreationPolicy = "open"
	// CreateReferralGated requires the owner to already hold the referral minimum.
	CreateReferralGated CreationPolicy = "referral_gated"
)

func ParseCreationPolicy(s string) (CreationPolicy, error) {
	switch CreationPolicy(s) {
	case CreateOpen, CreateReferralGated:
		return CreationPolicy(s), nil
	}
	return "", fmt.Errorf("unknown campaign creation policy %q", s)
}

func (p CreationPolicy) CanCreate(role Role, ownerReferralCount int, min int) error {
	if p == CreateReferralGated && role != RoleAdmin && ownerReferralCount < min {
		return apperr.Campaign(fmt.Sprintf("you need at least %d accepted referrals to create a campaign, you have %d", min, ownerReferralCount))
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// Progress is current as a percentage of goal.
func Progress(current, goal decimal.Decimal) float64 {
	if !goal.IsPositive() {
		return 0
	}
	f, _ := current.Mul(hundred).Div(goal).Round(2).Float64()
	return f
}

// DaysRemaining counts whole days until end, zero once it has passed.
func DaysRemaining(end *time.Time, now time.Time) *int {
	if end == nil {
		return nil
	}
	days := 0
	if end.After(now) {
		days = int(end.Sub(now).Hours() / 24)
	}
	return &days
}
