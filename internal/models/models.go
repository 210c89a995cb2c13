package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/theheadmen/studfund/internal/dbconnector"
)

type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone,omitempty"`
	Role         string `json:"role,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Phone         string    `json:"phone,omitempty"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	IsVerified    bool      `json:"is_verified"`
	ReferralCode  string    `json:"referral_code,omitempty"`
	ReferralCount int       `json:"referral_count"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewUserResponse(u *dbconnector.User) UserResponse {
	return UserResponse{
		ID:            int64(u.ID),
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Phone:         u.Phone,
		Role:          string(u.Role),
		Status:        string(u.Status),
		IsVerified:    u.IsVerified,
		ReferralCode:  u.ReferralCode,
		ReferralCount: u.ReferralCount,
		CreatedAt:     u.CreatedAt,
	}
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        UserResponse `json:"user"`
}

type ProfileResponse struct {
	UserResponse
	TotalDonations decimal.Decimal `json:"total_donations"`
	TotalRaised    decimal.Decimal `json:"total_raised"`
}

// ProfileUpdateRequest carries the fields a user may change on their own account.
type ProfileUpdateRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Password  *string `json:"password,omitempty"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type VerifyOTPRequest struct {
	Email   string `json:"email"`
	OTPCode string `json:"otp_code"`
	Purpose string `json:"purpose,omitempty"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	OTPCode     string `json:"otp_code"`
	NewPassword string `json:"new_password"`
}

type OTPResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	Email             string `json:"email"`
	ExpiresInMinutes  *int   `json:"expires_in_minutes,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

type OTPStatusResponse struct {
	Email             string     `json:"email"`
	IsVerified        bool       `json:"is_verified"`
	Message           string     `json:"message,omitempty"`
	HasActiveOTP      bool       `json:"has_active_otp"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	RemainingAttempts int        `json:"remaining_attempts"`
	MaxAttempts       int        `json:"max_attempts"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error      string                 `json:"error"`
	ErrorCode  string                 `json:"error_code"`
	StatusCode int                    `json:"status_code"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

type CampaignRequest struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	GoalAmount     decimal.Decimal `json:"goal_amount"`
	DurationMonths int             `json:"duration_months"`
	Category       string          `json:"category,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	VideoURL       string          `json:"video_url,omitempty"`
	Story          string          `json:"story,omitempty"`
}

type CampaignUpdateRequest struct {
	Title          *string          `json:"title,omitempty"`
	Description    *string          `json:"description,omitempty"`
	GoalAmount     *decimal.Decimal `json:"goal_amount,omitempty"`
	DurationMonths *int             `json:"duration_months,omitempty"`
	Category       *string          `json:"category,omitempty"`
	ImageURL       *string          `json:"image_url,omitempty"`
	VideoURL       *string          `json:"video_url,omitempty"`
	Story          *string          `json:"story,omitempty"`
}

type CampaignResponse struct {
	dbconnector.Campaign
	ProgressPercentage float64 `json:"progress_percentage"`
	DaysRemaining      *int    `json:"days_remaining"`
	DonorCount         int64   `json:"donor_count"`
}

type ListParams struct {
	Status   string
	Category string
	Limit    int
	Offset   int
}

type ReferralRequest struct {
	CampaignID   uint   `json:"campaign_id"`
	InvitedEmail string `json:"invited_email,omitempty"`
	InvitedPhone string `json:"invited_phone,omitempty"`
}

type ReferralStatsResponse struct {
	CampaignID      uint    `json:"campaign_id"`
	TotalSent       int64   `json:"total_sent"`
	Accepted        int64   `json:"accepted"`
	Pending         int64   `json:"pending"`
	Expired         int64   `json:"expired"`
	AcceptanceRate  float64 `json:"acceptance_rate"`
	Required        int     `json:"required"`
	RequirementMet  bool    `json:"requirement_met"`
	CampaignStatus  string  `json:"campaign_status"`
	RemainingNeeded int     `json:"remaining_needed"`
}

type AcceptReferralResponse struct {
	Message        string `json:"message"`
	CampaignID     uint   `json:"campaign_id"`
	ReferralCount  int    `json:"referral_count"`
	CampaignStatus string `json:"campaign_status"`
}

type PaymentRequest struct {
	CampaignID  uint            `json:"campaign_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"payment_method"`
	DonorEmail  string          `json:"donor_email,omitempty"`
	DonorName   string          `json:"donor_name,omitempty"`
	IsAnonymous bool            `json:"is_anonymous"`
	Message     string          `json:"message,omitempty"`
}

// PublicDonation is a payment as shown on a campaign page.
type PublicDonation struct {
	ID          uint            `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	DonorName   string          `json:"donor_name"`
	Message     string          `json:"message,omitempty"`
	IsAnonymous bool            `json:"is_anonymous"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

type MilestoneRequest struct {
	CampaignID      uint            `json:"campaign_id"`
	Title           string          `json:"title"`
	ThresholdAmount decimal.Decimal `json:"threshold_amount"`
	IsAuto          bool            `json:"is_auto"`
}

type ShoutoutRequest struct {
	CampaignID  uint   `json:"campaign_id"`
	DisplayName string `json:"display_name"`
	Message     string `json:"message"`
}

type CompanyRequest struct {
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	Website      string `json:"website,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
	Description  string `json:"description,omitempty"`
}

type PartnershipRequest struct {
	PartnershipType string          `json:"partnership_type"`
	Cost            decimal.Decimal `json:"cost"`
	DurationMonths  int             `json:"duration_months"`
	BannerURL       string          `json:"banner_url,omitempty"`
	BannerPosition  string          `json:"banner_position,omitempty"`
}

type PartnershipInquiry struct {
	CompanyName     string `json:"company_name"`
	ContactEmail    string `json:"contact_email"`
	PartnershipType string `json:"partnership_type"`
	Message         string `json:"message,omitempty"`
}

type HighlightRequest struct {
	UserID      uint   `json:"user_id"`
	Achievement string `json:"achievement"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type HighlightResponse struct {
	dbconnector.StudentHighlight
	StudentName string `json:"student_name"`
}

type HighlightDonor struct {
	DonorName  string          `json:"donor_name"`
	Amount     decimal.Decimal `json:"amount"`
	CampaignID uint            `json:"campaign_id"`
	Message    string          `json:"message,omitempty"`
	DonatedAt  time.Time       `json:"donated_at"`
}

type AdminUserRequest struct {
	RegisterRequest
	IsVerified bool `json:"is_verified"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type FeatureRequest struct {
	IsFeatured bool `json:"is_featured"`
}

type AdminStatsResponse struct {
	TotalUsers       int64           `json:"total_users"`
	TotalCampaigns   int64           `json:"total_campaigns"`
	ActiveCampaigns  int64           `json:"active_campaigns"`
	PendingApprovals int64           `json:"pending_approvals"`
	TotalPayments    int64           `json:"total_payments"`
	TotalDonations   decimal.Decimal `json:"total_donations"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
