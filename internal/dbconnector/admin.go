package dbconnector

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrUnknownField  = errors.New("field cannot be updated")
)

type adminEntity struct {
	one    func() interface{}
	list   func() interface{}
	fields map[string]bool
}

func fieldSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

var adminEntities = map[string]adminEntity{
	"users": {
		one:    func() interface{} { return &User{} },
		list:   func() interface{} { return &[]User{} },
		fields: fieldSet("first_name", "last_name", "phone", "role", "status", "is_verified", "referral_count"),
	},
	"campaigns": {
		one:  func() interface{} { return &Campaign{} },
		list: func() interface{} { return &[]Campaign{} },
		fields: fieldSet("title", "description", "goal_amount", "current_amount", "status", "category", "image_url",
			"video_url", "story", "is_featured", "referral_requirement_met", "referral_count"),
	},
	"payments": {
		one:    func() interface{} { return &Payment{} },
		list:   func() interface{} { return &[]Payment{} },
		fields: fieldSet("status", "donor_name", "donor_email", "message", "is_anonymous"),
	},
	"companies": {
		one:    func() interface{} { return &Company{} },
		list:   func() interface{} { return &[]Company{} },
		fields: fieldSet("name", "contact_email", "website", "logo_url", "description", "is_partner", "partnership_tier"),
	},
	"partnerships": {
		one:    func() interface{} { return &Partnership{} },
		list:   func() interface{} { return &[]Partnership{} },
		fields: fieldSet("cost", "banner_url", "banner_position", "is_active"),
	},
	"milestones": {
		one:    func() interface{} { return &Milestone{} },
		list:   func() interface{} { return &[]Milestone{} },
		fields: fieldSet("title", "threshold_amount", "achieved_at", "is_auto"),
	},
	"receipts": {
		one:    func() interface{} { return &Receipt{} },
		list:   func() interface{} { return &[]Receipt{} },
		fields: fieldSet("receipt_url"),
	},
	"referrals": {
		one:    func() interface{} { return &Referral{} },
		list:   func() interface{} { return &[]Referral{} },
		fields: fieldSet("status", "invited_email", "invited_phone"),
	},
	"shoutouts": {
		one:    func() interface{} { return &Shoutout{} },
		list:   func() interface{} { return &[]Shoutout{} },
		fields: fieldSet("display_name", "message", "visible"),
	},
	"highlights": {
		one:    func() interface{} { return &StudentHighlight{} },
		list:   func() interface{} { return &[]StudentHighlight{} },
		fields: fieldSet("achievement", "description", "image_url", "is_active"),
	},
}

func lookupEntity(name string) (adminEntity, error) {
	entity, ok := adminEntities[name]
	if !ok {
		return adminEntity{}, errors.Wrap(ErrUnknownEntity, name)
	}
	return entity, nil
}

// AdminEntities lists the entity names the admin endpoints accept.
func AdminEntities() []string {
	names := make([]string, 0, len(adminEntities))
	for name := range adminEntities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (dbConnector *DBConnector) AdminList(ctx context.Context, entity string, limit, offset int) (interface{}, error) {
	e, err := lookupEntity(entity)
	if err != nil {
		return nil, err
	}
	out := e.list()
	result := dbConnector.DB.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset).Find(out)
	return out, result.Error
}

func (dbConnector *DBConnector) AdminGet(ctx context.Context, entity string, id uint) (interface{}, error) {
	e, err := lookupEntity(entity)
	if err != nil {
		return nil, err
	}
	out := e.one()
	result := dbConnector.DB.WithContext(ctx).First(out, id)
	return out, result.Error
}

// AdminUpdate writes whitelisted columns of one row and returns the fresh row.
func (dbConnector *DBConnector) AdminUpdate(ctx context.Context, entity string, id uint, fields map[string]interface{}) (interface{}, error) {
	e, err := lookupEntity(entity)
	if err != nil {
		return nil, err
	}
	for name := range fields {
		if !e.fields[name] {
			return nil, errors.Wrap(ErrUnknownField, fmt.Sprintf("%s.%s", entity, name))
		}
	}
	out := e.one()
	err = dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(out, id).Error; err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		if err := tx.Model(out).Omit(clause.Associations).Updates(fields).Error; err != nil {
			return err
		}
		return tx.First(out, id).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (dbConnector *DBConnector) AdminDelete(ctx context.Context, entity string, id uint) error {
	e, err := lookupEntity(entity)
	if err != nil {
		return err
	}
	result := dbConnector.DB.WithContext(ctx).Delete(e.one(), id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "admin delete")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type AdminStats struct {
	TotalUsers       int64
	TotalCampaigns   int64
	ActiveCampaigns  int64
	PendingApprovals int64
	TotalPayments    int64
	TotalDonations   decimal.Decimal
}

func (dbConnector *DBConnector) GetAdminStats(ctx context.Context) (AdminStats, error) {
	var stats AdminStats
	db := dbConnector.DB.WithContext(ctx)
	if err := db.Model(&User{}).Count(&stats.TotalUsers).Error; err != nil {
		return stats, errors.Wrap(err, "count users")
	}
	if err := db.Model(&Campaign{}).Count(&stats.TotalCampaigns).Error; err != nil {
		return stats, errors.Wrap(err, "count campaigns")
	}
	if err := db.Model(&Campaign{}).Where("status = ?", lifecycle.CampaignActive).Count(&stats.ActiveCampaigns).Error; err != nil {
		return stats, errors.Wrap(err, "count active campaigns")
	}
	if err := db.Model(&Campaign{}).Where("status = ?", lifecycle.CampaignPendingApproval).Count(&stats.PendingApprovals).Error; err != nil {
		return stats, errors.Wrap(err, "count pending campaigns")
	}
	if err := db.Model(&Payment{}).Where("status = ?", lifecycle.PaymentCompleted).Count(&stats.TotalPayments).Error; err != nil {
		return stats, errors.Wrap(err, "count payments")
	}
	err := db.Model(&Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ?", lifecycle.PaymentCompleted).
		Row().Scan(&stats.TotalDonations)
	return stats, errors.Wrap(err, "sum donations")
}
