package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/mailer"
	"github.com/theheadmen/studfund/internal/models"
)

// CreateReferralLogic issues an invite token for the caller's campaign and
// mails it when an address is given.
func (s *Service) CreateReferralLogic(ctx context.Context, p auth.Principal, req models.ReferralRequest) (*dbconnector.Referral, error) {
	campaign, err := s.loadCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if !p.Owns(campaign.UserID) {
		return nil, apperr.ErrNotOwner
	}

	invited := strings.TrimSpace(req.InvitedEmail)
	if invited != "" {
		if invited, err = normalizeEmail(invited); err != nil {
			return nil, err
		}
	}

	referral := &dbconnector.Referral{
		CampaignID:   campaign.ID,
		InvitedEmail: invited,
		InvitedPhone: strings.TrimSpace(req.InvitedPhone),
		Token:        uuid.NewString(),
		Status:       lifecycle.ReferralSent,
		SentAt:       s.Now(),
	}
	if err := s.Storage.AddReferral(ctx, referral); err != nil {
		return nil, storageError(err, "referral")
	}
	log.WithField("campaign_id", campaign.ID).WithField("referral_id", referral.ID).Info("referral created")

	if invited != "" {
		student := "A student"
		if owner, err := s.ActingUser(ctx, p); err == nil {
			student = strings.TrimSpace(owner.FirstName + " " + owner.LastName)
		}
		link := fmt.Sprintf("%s/api/v1/referrals/accept/%s", strings.TrimRight(s.Settings.BaseURL, "/"), referral.Token)
		s.notify(ctx, mailer.ReferralInviteMessage(invited, student, campaign.Title, link))
	}
	return referral, nil
}

func (s *Service) campaignForOwner(ctx context.Context, p auth.Principal, id uint) (*dbconnector.Campaign, error) {
	campaign, err := s.loadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(p, campaign.UserID); err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *Service) CampaignReferralsLogic(ctx context.Context, p auth.Principal, campaignID uint) ([]dbconnector.Referral, error) {
	if _, err := s.campaignForOwner(ctx, p, campaignID); err != nil {
		return nil, err
	}
	var referrals []dbconnector.Referral
	if err := s.Storage.GetReferralsByCampaign(ctx, campaignID, &referrals); err != nil {
		return nil, storageError(err, "referrals")
	}
	return referrals, nil
}

func (s *Service) ReferralStatsLogic(ctx context.Context, p auth.Principal, campaignID uint) (*models.ReferralStatsResponse, error) {
	campaign, err := s.campaignForOwner(ctx, p, campaignID)
	if err != nil {
		return nil, err
	}
	counts, err := s.Storage.ReferralCounts(ctx, campaignID)
	if err != nil {
		return nil, storageError(err, "referrals")
	}

	stats := &models.ReferralStatsResponse{
		CampaignID:     campaignID,
		Accepted:       counts[lifecycle.ReferralAccepted],
		Pending:        counts[lifecycle.ReferralSent],
		Expired:        counts[lifecycle.ReferralExpired],
		Required:       s.Settings.MinReferrals,
		RequirementMet: campaign.ReferralRequirementMet || counts[lifecycle.ReferralAccepted] >= int64(s.Settings.MinReferrals),
		CampaignStatus: string(campaign.Status),
	}
	stats.TotalSent = stats.Accepted + stats.Pending + stats.Expired
	if stats.TotalSent > 0 {
		rate := float64(stats.Accepted) / float64(stats.TotalSent) * 100
		stats.AcceptanceRate = math.Round(rate*100) / 100
	}
	if remaining := int64(s.Settings.MinReferrals) - stats.Accepted; remaining > 0 {
		stats.RemainingNeeded = int(remaining)
	}
	return stats, nil
}

// AcceptReferralLogic accepts an invite token. A token can be accepted once.
func (s *Service) AcceptReferralLogic(ctx context.Context, token string) (*models.AcceptReferralResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.ErrInvalidReferralToken
	}
	_, campaign, err := s.Storage.AcceptReferral(ctx, token, s.Settings.MinReferrals, s.Now())
	if err != nil {
		if dbconnector.IsNotFound(err) {
			return nil, apperr.ErrInvalidReferralToken
		}
		return nil, storageError(err, "referral")
	}
	log.WithFields(log.Fields{
		"campaign_id":    campaign.ID,
		"referral_count": campaign.ReferralCount,
		"status":         campaign.Status,
	}).Info("referral accepted")

	return &models.AcceptReferralResponse{
		Message:        "Referral accepted successfully",
		CampaignID:     campaign.ID,
		ReferralCount:  campaign.ReferralCount,
		CampaignStatus: string(campaign.Status),
	}, nil
}
