package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/theheadmen/studfund/internal/dbconnector"
	"github.com/theheadmen/studfund/internal/lifecycle"
)

type Storage interface {
	Ping(ctx context.Context) error

	GetUserByEmail(ctx context.Context, email string, user *dbconnector.User) error
	GetUserByUserID(ctx context.Context, userID uint, user *dbconnector.User) error
	GetUserByReferralCode(ctx context.Context, code string, user *dbconnector.User) error
	AddUser(ctx context.Context, newUser *dbconnector.User) error
	UpdateUser(ctx context.Context, updUser *dbconnector.User) error
	SetUserVerified(ctx context.Context, email string) error
	SetUserPassword(ctx context.Context, email string, passwordHash string) error
	EnsureUserByEmail(ctx context.Context, user *dbconnector.User) error
	UserTotals(ctx context.Context, userID uint) (donated, raised decimal.Decimal, err error)

	ReplaceOTP(ctx context.Context, otp *dbconnector.OTPVerification) error
	GetLatestOTP(ctx context.Context, email string, purpose lifecycle.OTPPurpose, otp *dbconnector.OTPVerification) error
	VerifyOTP(ctx context.Context, email string, purpose lifecycle.OTPPurpose, code string, now time.Time) (lifecycle.OTPOutcome, error)
	CleanupExpiredOTPs(ctx context.Context, cutoff time.Time) (int64, error)

	AddCampaign(ctx context.Context, campaign *dbconnector.Campaign) error
	GetCampaignByID(ctx context.Context, id uint, campaign *dbconnector.Campaign) error
	DeleteCampaign(ctx context.Context, id uint) error
	ListCampaigns(ctx context.Context, filter dbconnector.CampaignFilter, campaigns *[]dbconnector.Campaign) error
	GetSpotlightCampaigns(ctx context.Context, limit int, campaigns *[]dbconnector.Campaign) error
	DonorCounts(ctx context.Context, campaignIDs []uint) (map[uint]int64, error)
	MutateCampaign(ctx context.Context, id uint, fn func(c *dbconnector.Campaign) (bool, error)) (*dbconnector.Campaign, error)
	ExpireCampaigns(ctx context.Context, now time.Time) (int64, error)

	AddReferral(ctx context.Context, referral *dbconnector.Referral) error
	GetReferralsByCampaign(ctx context.Context, campaignID uint, referrals *[]dbconnector.Referral) error
	ReferralCounts(ctx context.Context, campaignID uint) (map[lifecycle.ReferralStatus]int64, error)
	AcceptReferral(ctx context.Context, token string, minReferrals int, now time.Time) (*dbconnector.Referral, *dbconnector.Campaign, error)

	AddPayment(ctx context.Context, payment *dbconnector.Payment) error
	GetPaymentByID(ctx context.Context, id uint, payment *dbconnector.Payment) error
	GetPaymentsByCampaign(ctx context.Context, campaignID uint, payments *[]dbconnector.Payment) error
	GetPaymentsByDonor(ctx context.Context, donorID uint, payments *[]dbconnector.Payment) error
	GetRecentPublicDonations(ctx context.Context, limit int, payments *[]dbconnector.Payment) error
	MarkPaymentProcessing(ctx context.Context, id uint, payment *dbconnector.Payment) error
	MarkPaymentFailed(ctx context.Context, id uint) error
	CompletePayment(ctx context.Context, id uint, transactionID string, now time.Time, receipt *dbconnector.Receipt) (*dbconnector.Payment, *dbconnector.Campaign, error)
	RefundPayment(ctx context.Context, id uint, check func(p *dbconnector.Payment, c *dbconnector.Campaign) error) (*dbconnector.Payment, *dbconnector.Campaign, error)
	GetReceiptByPayment(ctx context.Context, paymentID uint, receipt *dbconnector.Receipt) error
	GetReceiptsByDonor(ctx context.Context, donorID uint, receipts *[]dbconnector.Receipt) error

	AddMilestone(ctx context.Context, milestone *dbconnector.Milestone) error
	GetMilestonesByCampaign(ctx context.Context, campaignID uint, milestones *[]dbconnector.Milestone) error
	AddShoutout(ctx context.Context, shoutout *dbconnector.Shoutout) error
	GetVisibleShoutouts(ctx context.Context, campaignID uint, shoutouts *[]dbconnector.Shoutout) error
	AddCompany(ctx context.Context, company *dbconnector.Company) error
	GetCompanyByID(ctx context.Context, id uint, company *dbconnector.Company) error
	GetCompanies(ctx context.Context, companies *[]dbconnector.Company) error
	AddPartnership(ctx context.Context, partnership *dbconnector.Partnership) error
	ReplaceHighlight(ctx context.Context, highlight *dbconnector.StudentHighlight) error
	GetCurrentHighlight(ctx context.Context, highlight *dbconnector.StudentHighlight) error
	GetHighlightByID(ctx context.Context, id uint, highlight *dbconnector.StudentHighlight) error
	UpdateHighlightImage(ctx context.Context, id uint, imageURL string) error
	GetHighlightsSince(ctx context.Context, since time.Time, highlights *[]dbconnector.StudentHighlight) error
	GetHighlightsByUser(ctx context.Context, userID uint, highlights *[]dbconnector.StudentHighlight) error

	AdminList(ctx context.Context, entity string, limit, offset int) (interface{}, error)
	AdminGet(ctx context.Context, entity string, id uint) (interface{}, error)
	AdminUpdate(ctx context.Context, entity string, id uint, fields map[string]interface{}) (interface{}, error)
	AdminDelete(ctx context.Context, entity string, id uint) error
	GetAdminStats(ctx context.Context) (dbconnector.AdminStats, error)
}
