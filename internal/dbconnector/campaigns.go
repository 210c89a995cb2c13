package dbconnector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CampaignFilter struct {
	Status   string
	Category string
	Featured *bool
	UserID   *uint
	Limit    int
	Offset   int
}

func (f CampaignFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	if f.Featured != nil {
		db = db.Where("is_featured = ?", *f.Featured)
	}
	if f.UserID != nil {
		db = db.Where("user_id = ?", *f.UserID)
	}
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}
	if f.Offset > 0 {
		db = db.Offset(f.Offset)
	}
	return db
}

func (dbConnector *DBConnector) AddCampaign(ctx context.Context, campaign *Campaign) error {
	result := dbConnector.DB.WithContext(ctx).Create(campaign)
	return errors.Wrap(result.Error, "add campaign")
}

func (dbConnector *DBConnector) GetCampaignByID(ctx context.Context, id uint, campaign *Campaign) error {
	result := dbConnector.DB.WithContext(ctx).First(campaign, id)
	return result.Error
}

func (dbConnector *DBConnector) DeleteCampaign(ctx context.Context, id uint) error {
	result := dbConnector.DB.WithContext(ctx).Delete(&Campaign{}, id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete campaign")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (dbConnector *DBConnector) ListCampaigns(ctx context.Context, filter CampaignFilter, campaigns *[]Campaign) error {
	db := filter.apply(dbConnector.DB.WithContext(ctx))
	result := db.Order("created_at DESC").Find(campaigns)
	return result.Error
}

// GetSpotlightCampaigns returns active campaigns ordered by funding progress.
func (dbConnector *DBConnector) GetSpotlightCampaigns(ctx context.Context, limit int, campaigns *[]Campaign) error {
	result := dbConnector.DB.WithContext(ctx).
		Where("status = ?", lifecycle.CampaignActive).
		Order("current_amount / NULLIF(goal_amount, 0) DESC NULLS LAST").
		Order("created_at DESC").
		Limit(limit).
		Find(campaigns)
	return result.Error
}

// DonorCounts counts completed payments per campaign.
func (dbConnector *DBConnector) DonorCounts(ctx context.Context, campaignIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		CampaignID uint
		Total      int64
	}
	result := dbConnector.DB.WithContext(ctx).Model(&Payment{}).
		Select("campaign_id, COUNT(*) AS total").
		Where("campaign_id IN ? AND status = ?", campaignIDs, lifecycle.PaymentCompleted).
		Group("campaign_id").
		Scan(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "count donors")
	}
	for _, row := range rows {
		counts[row.CampaignID] = row.Total
	}
	return counts, nil
}

// MutateCampaign locks the campaign row, lets fn change it and saves it when fn
// reports a change. The whole call is one transaction.
func (dbConnector *DBConnector) MutateCampaign(ctx context.Context, id uint, fn func(c *Campaign) (bool, error)) (*Campaign, error) {
	var campaign Campaign
	err := dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, id).Error; err != nil {
			return err
		}
		changed, err := fn(&campaign)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return tx.Omit(clause.Associations).Save(&campaign).Error
	})
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// ExpireCampaigns marks active campaigns whose end date has passed as expired.
func (dbConnector *DBConnector) ExpireCampaigns(ctx context.Context, now time.Time) (int64, error) {
	result := dbConnector.DB.WithContext(ctx).Model(&Campaign{}).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", lifecycle.CampaignActive, now).
		Updates(map[string]interface{}{"status": lifecycle.CampaignExpired, "is_featured": false})
	return result.RowsAffected, errors.Wrap(result.Error, "expire campaigns")
}
