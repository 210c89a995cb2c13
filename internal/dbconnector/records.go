package dbconnector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (dbConnector *DBConnector) AddMilestone(ctx context.Context, milestone *Milestone) error {
	result := dbConnector.DB.WithContext(ctx).Create(milestone)
	return errors.Wrap(result.Error, "add milestone")
}

func (dbConnector *DBConnector) GetMilestonesByCampaign(ctx context.Context, campaignID uint, milestones *[]Milestone) error {
	result := dbConnector.DB.WithContext(ctx).Where("campaign_id = ?", campaignID).Order("threshold_amount ASC").Find(milestones)
	return result.Error
}

func (dbConnector *DBConnector) AddShoutout(ctx context.Context, shoutout *Shoutout) error {
	result := dbConnector.DB.WithContext(ctx).Create(shoutout)
	return errors.Wrap(result.Error, "add shoutout")
}

func (dbConnector *DBConnector) GetVisibleShoutouts(ctx context.Context, campaignID uint, shoutouts *[]Shoutout) error {
	result := dbConnector.DB.WithContext(ctx).
		Where("campaign_id = ? AND visible = ?", campaignID, true).
		Order("created_at DESC").
		Find(shoutouts)
	return result.Error
}

func (dbConnector *DBConnector) AddCompany(ctx context.Context, company *Company) error {
	result := dbConnector.DB.WithContext(ctx).Create(company)
	return errors.Wrap(result.Error, "add company")
}

func (dbConnector *DBConnector) GetCompanyByID(ctx context.Context, id uint, company *Company) error {
	result := dbConnector.DB.WithContext(ctx).First(company, id)
	return result.Error
}

func (dbConnector *DBConnector) GetCompanies(ctx context.Context, companies *[]Company) error {
	result := dbConnector.DB.WithContext(ctx).Order("created_at DESC").Find(companies)
	return result.Error
}

// AddPartnership stores the partnership and flags its company as a partner of that tier.
func (dbConnector *DBConnector) AddPartnership(ctx context.Context, partnership *Partnership) error {
	return dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var company Company
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&company, partnership.CompanyID).Error; err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(partnership).Error; err != nil {
			return err
		}
		return tx.Model(&company).Updates(map[string]interface{}{
			"is_partner":       true,
			"partnership_tier": string(partnership.PartnershipType),
		}).Error
	})
}

// ReplaceHighlight deactivates every active highlight and stores highlight as the current one.
func (dbConnector *DBConnector) ReplaceHighlight(ctx context.Context, highlight *StudentHighlight) error {
	return dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&StudentHighlight{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error
		if err != nil {
			return err
		}
		highlight.IsActive = true
		return tx.Omit(clause.Associations).Create(highlight).Error
	})
}

func (dbConnector *DBConnector) GetCurrentHighlight(ctx context.Context, highlight *StudentHighlight) error {
	result := dbConnector.DB.WithContext(ctx).
		Where("is_active = ?", true).
		Order("featured_at DESC, id DESC").
		First(highlight)
	return result.Error
}

func (dbConnector *DBConnector) GetHighlightByID(ctx context.Context, id uint, highlight *StudentHighlight) error {
	result := dbConnector.DB.WithContext(ctx).First(highlight, id)
	return result.Error
}

func (dbConnector *DBConnector) UpdateHighlightImage(ctx context.Context, id uint, imageURL string) error {
	result := dbConnector.DB.WithContext(ctx).Model(&StudentHighlight{}).Where("id = ?", id).Update("image_url", imageURL)
	if result.Error != nil {
		return errors.Wrap(result.Error, "update highlight image")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (dbConnector *DBConnector) GetHighlightsSince(ctx context.Context, since time.Time, highlights *[]StudentHighlight) error {
	result := dbConnector.DB.WithContext(ctx).Where("featured_at >= ?", since).Order("featured_at DESC").Find(highlights)
	return result.Error
}

func (dbConnector *DBConnector) GetHighlightsByUser(ctx context.Context, userID uint, highlights *[]StudentHighlight) error {
	result := dbConnector.DB.WithContext(ctx).Where("user_id = ?", userID).Order("featured_at DESC").Find(highlights)
	return result.Error
}
