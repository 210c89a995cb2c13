package dbconnector

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"gorm.io/datatypes"
)

type Model struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type User struct {
	Model
	Email         string               `json:"email" gorm:"size:191;uniqueIndex;not null"`
	PasswordHash  string               `json:"-" gorm:"not null"`
	FirstName     string               `json:"first_name" gorm:"size:100;not null"`
	LastName      string               `json:"last_name" gorm:"size:100;not null"`
	Phone         string               `json:"phone,omitempty" gorm:"size:32"`
	Role          lifecycle.Role       `json:"role" gorm:"size:20;not null;default:'student'"`
	Status        lifecycle.UserStatus `json:"status" gorm:"size:20;not null;default:'active'"`
	IsVerified    bool                 `json:"is_verified" gorm:"not null;default:false"`
	ReferralCode  string               `json:"referral_code" gorm:"size:8;uniqueIndex;not null"`
	ReferredBy    *uint                `json:"referred_by,omitempty"`
	ReferralCount int                  `json:"referral_count" gorm:"not null;default:0"`
}

type Campaign struct {
	Model
	UserID                 uint                     `json:"user_id" gorm:"index;not null"`
	User                   *User                    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Title                  string                   `json:"title" gorm:"size:200;not null"`
	Description            string                   `json:"description" gorm:"type:text;not null"`
	GoalAmount             decimal.Decimal          `json:"goal_amount" gorm:"type:numeric(12,2);not null"`
	CurrentAmount          decimal.Decimal          `json:"current_amount" gorm:"type:numeric(12,2);not null;default:0"`
	Status                 lifecycle.CampaignStatus `json:"status" gorm:"size:32;index;not null;default:'draft'"`
	DurationMonths         int                      `json:"duration_months" gorm:"not null"`
	StartDate              *time.Time               `json:"start_date"`
	EndDate                *time.Time               `json:"end_date"`
	Category               string                   `json:"category,omitempty" gorm:"size:64;index"`
	ImageURL               string                   `json:"image_url,omitempty" gorm:"size:1024"`
	VideoURL               string                   `json:"video_url,omitempty" gorm:"size:1024"`
	Story                  string                   `json:"story,omitempty" gorm:"type:text"`
	IsFeatured             bool                     `json:"is_featured" gorm:"not null;default:false"`
	ReferralRequirementMet bool                     `json:"referral_requirement_met" gorm:"not null;default:false"`
	ReferralCount          int                      `json:"referral_count" gorm:"not null;default:0"`
}

type Referral struct {
	Model
	CampaignID   uint                     `json:"campaign_id" gorm:"index;not null"`
	Campaign     *Campaign                `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	InvitedEmail string                   `json:"invited_email,omitempty" gorm:"size:191"`
	InvitedPhone string                   `json:"invited_phone,omitempty" gorm:"size:32"`
	Token        string                   `json:"token" gorm:"size:36;uniqueIndex;not null"`
	Status       lifecycle.ReferralStatus `json:"status" gorm:"size:20;index;not null;default:'sent'"`
	SentAt       time.Time                `json:"sent_at"`
	AcceptedAt   *time.Time               `json:"accepted_at"`
}

type Payment struct {
	Model
	CampaignID    uint                    `json:"campaign_id" gorm:"index;not null"`
	Campaign      *Campaign               `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	DonorID       *uint                   `json:"donor_id,omitempty" gorm:"index"`
	Donor         *User                   `json:"-" gorm:"foreignKey:DonorID;constraint:OnDelete:SET NULL"`
	DonorEmail    string                  `json:"donor_email" gorm:"size:191;not null"`
	DonorName     string                  `json:"donor_name,omitempty" gorm:"size:191"`
	Amount        decimal.Decimal         `json:"amount" gorm:"type:numeric(12,2);not null"`
	Method        lifecycle.PaymentMethod `json:"method" gorm:"size:32;not null"`
	Status        lifecycle.PaymentStatus `json:"status" gorm:"size:20;index;not null;default:'pending'"`
	TransactionID string                  `json:"transaction_id,omitempty" gorm:"size:191"`
	IsAnonymous   bool                    `json:"is_anonymous" gorm:"not null;default:false"`
	Message       string                  `json:"message,omitempty" gorm:"size:500"`
	ProcessedAt   *time.Time              `json:"processed_at"`
}

type Receipt struct {
	Model
	PaymentID   uint           `json:"payment_id" gorm:"uniqueIndex;not null"`
	Payment     *Payment       `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	ReceiptUUID string         `json:"receipt_uuid" gorm:"size:36;uniqueIndex;not null"`
	GeneratedAt time.Time      `json:"generated_at"`
	ReceiptURL  string         `json:"receipt_url,omitempty" gorm:"size:1024"`
	Data        datatypes.JSON `json:"data" gorm:"type:jsonb"`
}

type Milestone struct {
	Model
	CampaignID      uint            `json:"campaign_id" gorm:"index;not null"`
	Campaign        *Campaign       `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Title           string          `json:"title" gorm:"size:200;not null"`
	ThresholdAmount decimal.Decimal `json:"threshold_amount" gorm:"type:numeric(12,2);not null"`
	AchievedAt      *time.Time      `json:"achieved_at"`
	IsAuto          bool            `json:"is_auto" gorm:"not null;default:false"`
}

type Shoutout struct {
	Model
	CampaignID  uint      `json:"campaign_id" gorm:"index;not null"`
	Campaign    *Campaign `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	DonorID     *uint     `json:"donor_id,omitempty"`
	Donor       *User     `json:"-" gorm:"foreignKey:DonorID;constraint:OnDelete:SET NULL"`
	DisplayName string    `json:"display_name" gorm:"size:191;not null"`
	Message     string    `json:"message" gorm:"size:512;not null"`
	Visible     bool      `json:"visible" gorm:"not null;default:true"`
}

type Company struct {
	Model
	Name            string `json:"name" gorm:"size:191;not null"`
	ContactEmail    string `json:"contact_email" gorm:"size:191;not null"`
	Website         string `json:"website,omitempty" gorm:"size:1024"`
	LogoURL         string `json:"logo_url,omitempty" gorm:"size:1024"`
	Description     string `json:"description,omitempty" gorm:"type:text"`
	IsPartner       bool   `json:"is_partner" gorm:"not null;default:false"`
	PartnershipTier string `json:"partnership_tier,omitempty" gorm:"size:32"`
}

type Partnership struct {
	Model
	CompanyID       uint                      `json:"company_id" gorm:"index;not null"`
	Company         *Company                  `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	PartnershipType lifecycle.PartnershipType `json:"partnership_type" gorm:"size:32;not null"`
	Cost            decimal.Decimal           `json:"cost" gorm:"type:numeric(12,2);not null;default:0"`
	DurationMonths  int                       `json:"duration_months" gorm:"not null"`
	BannerURL       string                    `json:"banner_url,omitempty" gorm:"size:1024"`
	BannerPosition  string                    `json:"banner_position,omitempty" gorm:"size:64"`
	IsActive        bool                      `json:"is_active" gorm:"not null;default:true"`
	StartDate       time.Time                 `json:"start_date"`
	EndDate         *time.Time                `json:"end_date"`
}

type StudentHighlight struct {
	Model
	UserID      uint      `json:"user_id" gorm:"index;not null"`
	User        *User     `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Achievement string    `json:"achievement" gorm:"size:200;not null"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	ImageURL    string    `json:"image_url,omitempty" gorm:"size:1024"`
	IsActive    bool      `json:"is_active" gorm:"index;not null;default:true"`
	FeaturedAt  time.Time `json:"featured_at"`
}

type OTPVerification struct {
	Model
	Email       string               `json:"email" gorm:"size:191;index:idx_otp_scope;not null"`
	Purpose     lifecycle.OTPPurpose `json:"purpose" gorm:"size:32;index:idx_otp_scope;not null"`
	Code        string               `json:"-" gorm:"size:6;not null"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Attempts    int                  `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts int                  `json:"max_attempts" gorm:"not null;default:3"`
	IsUsed      bool                 `json:"is_used" gorm:"index;not null;default:false"`
	VerifiedAt  *time.Time           `json:"verified_at"`
}
