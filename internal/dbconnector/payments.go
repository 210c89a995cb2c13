package dbconnector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (dbConnector *DBConnector) AddPayment(ctx context.Context, payment *Payment) error {
	result := dbConnector.DB.WithContext(ctx).Create(payment)
	return errors.Wrap(result.Error, "add payment")
}

func (dbConnector *DBConnector) GetPaymentByID(ctx context.Context, id uint, payment *Payment) error {
	result := dbConnector.DB.WithContext(ctx).First(payment, id)
	return result.Error
}

func (dbConnector *DBConnector) GetPaymentsByCampaign(ctx context.Context, campaignID uint, payments *[]Payment) error {
	result := dbConnector.DB.WithContext(ctx).Where("campaign_id = ?", campaignID).Order("created_at DESC").Find(payments)
	return result.Error
}

func (dbConnector *DBConnector) GetPaymentsByDonor(ctx context.Context, donorID uint, payments *[]Payment) error {
	result := dbConnector.DB.WithContext(ctx).Where("donor_id = ?", donorID).Order("created_at DESC").Find(payments)
	return result.Error
}

// GetRecentPublicDonations returns completed, non-anonymous payments, newest first.
func (dbConnector *DBConnector) GetRecentPublicDonations(ctx context.Context, limit int, payments *[]Payment) error {
	result := dbConnector.DB.WithContext(ctx).
		Where("status = ? AND is_anonymous = ?", lifecycle.PaymentCompleted, false).
		Order("processed_at DESC NULLS LAST").
		Limit(limit).
		Find(payments)
	return result.Error
}

// MarkPaymentProcessing claims a pending payment. Only one caller can win the claim.
func (dbConnector *DBConnector) MarkPaymentProcessing(ctx context.Context, id uint, payment *Payment) error {
	return dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(payment, id).Error; err != nil {
			return err
		}
		if err := lifecycle.CanProcess(payment.Status); err != nil {
			return err
		}
		payment.Status = lifecycle.PaymentProcessing
		return tx.Model(payment).Update("status", payment.Status).Error
	})
}

func (dbConnector *DBConnector) MarkPaymentFailed(ctx context.Context, id uint) error {
	result := dbConnector.DB.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", id, lifecycle.PaymentProcessing).
		Update("status", lifecycle.PaymentFailed)
	return errors.Wrap(result.Error, "mark payment failed")
}

func receiptData(payment *Payment, campaign *Campaign) datatypes.JSON {
	data, _ := json.Marshal(map[string]interface{}{
		"payment_id":     payment.ID,
		"campaign_id":    campaign.ID,
		"campaign_title": campaign.Title,
		"amount":         payment.Amount.StringFixed(2),
		"method":         payment.Method,
		"transaction_id": payment.TransactionID,
		"donor_name":     payment.DonorName,
		"donor_email":    payment.DonorEmail,
		"is_anonymous":   payment.IsAnonymous,
		"processed_at":   payment.ProcessedAt,
	})
	return datatypes.JSON(data)
}

// CompletePayment finishes a processing payment: it stamps the transaction id,
// adds the amount to the campaign, marks reached milestones and writes the
// receipt. receipt must carry ReceiptUUID and ReceiptURL; the rest is filled in.
func (dbConnector *DBConnector) CompletePayment(ctx context.Context, id uint, transactionID string, now time.Time, receipt *Receipt) (*Payment, *Campaign, error) {
	var payment Payment
	var campaign Campaign
	err := dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error; err != nil {
			return err
		}
		if payment.Status != lifecycle.PaymentProcessing {
			return apperr.Payment(fmt.Sprintf("payment %d is %s, not processing", id, payment.Status))
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, payment.CampaignID).Error; err != nil {
			return err
		}

		payment.Status = lifecycle.PaymentCompleted
		payment.TransactionID = transactionID
		payment.ProcessedAt = &now
		err := tx.Model(&payment).Updates(map[string]interface{}{
			"status":         payment.Status,
			"transaction_id": transactionID,
			"processed_at":   now,
		}).Error
		if err != nil {
			return err
		}

		campaign.CurrentAmount = campaign.CurrentAmount.Add(payment.Amount)
		if err := tx.Model(&campaign).Update("current_amount", campaign.CurrentAmount).Error; err != nil {
			return err
		}

		err = tx.Model(&Milestone{}).
			Where("campaign_id = ? AND achieved_at IS NULL AND threshold_amount <= ?", campaign.ID, campaign.CurrentAmount).
			Update("achieved_at", now).Error
		if err != nil {
			return err
		}

		receipt.PaymentID = payment.ID
		receipt.GeneratedAt = now
		receipt.Data = receiptData(&payment, &campaign)
		return tx.Create(receipt).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, &campaign, nil
}

// RefundPayment reverses a completed payment; the campaign amount never drops below zero.
func (dbConnector *DBConnector) RefundPayment(ctx context.Context, id uint, check func(p *Payment, c *Campaign) error) (*Payment, *Campaign, error) {
	var payment Payment
	var campaign Campaign
	err := dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, id).Error; err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&campaign, payment.CampaignID).Error; err != nil {
			return err
		}
		if check != nil {
			if err := check(&payment, &campaign); err != nil {
				return err
			}
		}
		if err := lifecycle.CanRefund(payment.Status); err != nil {
			return err
		}

		payment.Status = lifecycle.PaymentRefunded
		if err := tx.Model(&payment).Update("status", payment.Status).Error; err != nil {
			return err
		}
		campaign.CurrentAmount = lifecycle.FloorSubtract(campaign.CurrentAmount, payment.Amount)
		return tx.Model(&campaign).Update("current_amount", campaign.CurrentAmount).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, &campaign, nil
}

func (dbConnector *DBConnector) GetReceiptByPayment(ctx context.Context, paymentID uint, receipt *Receipt) error {
	result := dbConnector.DB.WithContext(ctx).Where("payment_id = ?", paymentID).First(receipt)
	return result.Error
}

// GetReceiptsByDonor joins receipts to the donor's payments.
func (dbConnector *DBConnector) GetReceiptsByDonor(ctx context.Context, donorID uint, receipts *[]Receipt) error {
	result := dbConnector.DB.WithContext(ctx).
		Joins("JOIN payments ON payments.id = receipts.payment_id").
		Where("payments.donor_id = ?", donorID).
		Order("receipts.generated_at DESC").
		Find(receipts)
	return result.Error
}
