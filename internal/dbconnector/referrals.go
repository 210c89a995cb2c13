package dbconnector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (dbConnector *DBConnector) AddReferral(ctx context.Context, referral *Referral) error {
	result := dbConnector.DB.WithContext(ctx).Create(referral)
	return errors.Wrap(result.Error, "add referral")
}

func (dbConnector *DBConnector) GetReferralsByCampaign(ctx context.Context, campaignID uint, referrals *[]Referral) error {
	result := dbConnector.DB.WithContext(ctx).Where("campaign_id = ?", campaignID).Order("created_at DESC").Find(referrals)
	return result.Error
}

// ReferralCounts returns the number of referrals of a campaign per status.
func (dbConnector *DBConnector) ReferralCounts(ctx context.Context, campaignID uint) (map[lifecycle.ReferralStatus]int64, error) {
	var rows []struct {
		Status lifecycle.ReferralStatus
		Total  int64
	}
	result := dbConnector.DB.WithContext(ctx).Model(&Referral{}).
		Select("status, COUNT(*) AS total").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "count referrals")
	}
	counts := make(map[lifecycle.ReferralStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// AcceptReferral moves the referral for token from sent to accepted, bumps the
// campaign owner's counter, recounts the campaign's accepted referrals and
// promotes a draft that reached minReferrals. Referral and campaign rows stay
// locked until commit, so concurrent acceptances for one campaign serialize.
func (dbConnector *DBConnector) AcceptReferral(ctx context.Context, token string, minReferrals int, now time.Time) (*Referral, *Campaign, error) {
	var referral Referral
	var campaign Campaign
	err := dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token = ?", token).
			First(&referral).Error
		if err != nil {
			return err
		}
		if err := lifecycle.CanAccept(referral.Status); err != nil {
			return err
		}

		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, referral.CampaignID).Error; err != nil {
			return err
		}

		referral.Status = lifecycle.ReferralAccepted
		referral.AcceptedAt = &now
		err = tx.Model(&referral).Updates(map[string]interface{}{
			"status":      referral.Status,
			"accepted_at": now,
		}).Error
		if err != nil {
			return err
		}

		err = tx.Model(&User{}).
			Where("id = ?", campaign.UserID).
			UpdateColumn("referral_count", gorm.Expr("referral_count + 1")).Error
		if err != nil {
			return err
		}

		var accepted int64
		err = tx.Model(&Referral{}).
			Where("campaign_id = ? AND status = ?", campaign.ID, lifecycle.ReferralAccepted).
			Count(&accepted).Error
		if err != nil {
			return err
		}

		updates := map[string]interface{}{"referral_count": accepted}
		campaign.ReferralCount = int(accepted)
		if lifecycle.ShouldPromote(campaign.Status, accepted, minReferrals) {
			campaign.Status = lifecycle.CampaignPendingApproval
			campaign.ReferralRequirementMet = true
			updates["status"] = campaign.Status
			updates["referral_requirement_met"] = true
		}
		return tx.Model(&campaign).Updates(updates).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &referral, &campaign, nil
}
