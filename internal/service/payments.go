package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/gateway"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/mailer"
	"github.com/theheadmen/studfund/internal/models"
)

var maxDonation = decimal.NewFromInt(lifecycle.MaxDonation)

// chargeTimeout bounds a gateway call that no longer follows the request context.
const chargeTimeout = 2 * time.Minute

func validateDonation(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Validation("amount must be positive")
	}
	if amount.GreaterThan(maxDonation) {
		return apperr.Validation(fmt.Sprintf("amount cannot exceed %d", lifecycle.MaxDonation))
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.Validation("amount has at most two decimal places")
	}
	return nil
}

// CreatePaymentLogic records a pending donation to an active campaign.
func (s *Service) CreatePaymentLogic(ctx context.Context, p auth.Principal, req models.PaymentRequest) (*dbconnector.Payment, error) {
	if err := validateDonation(req.Amount); err != nil {
		return nil, err
	}
	method, err := lifecycle.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, err
	}
	campaign, err := s.loadCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.AcceptsDonations(campaign.Status); err != nil {
		return nil, err
	}

	donor, err := s.ActingUser(ctx, p)
	if err != nil {
		return nil, err
	}
	email := donor.Email
	if req.DonorEmail != "" {
		if email, err = normalizeEmail(req.DonorEmail); err != nil {
			return nil, err
		}
	}
	name := strings.TrimSpace(req.DonorName)
	if name == "" {
		name = strings.TrimSpace(donor.FirstName + " " + donor.LastName)
	}

	payment := &dbconnector.Payment{
		CampaignID:  campaign.ID,
		DonorID:     &donor.ID,
		DonorEmail:  email,
		DonorName:   name,
		Amount:      req.Amount,
		Method:      method,
		Status:      lifecycle.PaymentPending,
		IsAnonymous: req.IsAnonymous,
		Message:     strings.TrimSpace(req.Message),
	}
	if err := s.Storage.AddPayment(ctx, payment); err != nil {
		return nil, storageError(err, "payment")
	}
	log.WithFields(log.Fields{
		"payment_id":  payment.ID,
		"campaign_id": campaign.ID,
		"amount":      payment.Amount.StringFixed(2),
	}).Info("payment created")

	s.notify(ctx, mailer.DonationMessage(email, name, campaign.Title, payment.Amount))
	return payment, nil
}

func (s *Service) loadPayment(ctx context.Context, id uint) (*dbconnector.Payment, error) {
	var payment dbconnector.Payment
	if err := s.Storage.GetPaymentByID(ctx, id, &payment); err != nil {
		return nil, storageError(err, "payment")
	}
	return &payment, nil
}

// canSeePayment allows the donor, the campaign owner and admins.
func (s *Service) canSeePayment(ctx context.Context, p auth.Principal, payment *dbconnector.Payment) error {
	if p.IsAdmin() {
		return nil
	}
	if payment.DonorID != nil && p.Owns(*payment.DonorID) {
		return nil
	}
	campaign, err := s.loadCampaign(ctx, payment.CampaignID)
	if err != nil {
		return err
	}
	return requireOwner(p, campaign.UserID)
}

func (s *Service) GetPaymentLogic(ctx context.Context, p auth.Principal, id uint) (*dbconnector.Payment, error) {
	payment, err := s.loadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.canSeePayment(ctx, p, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// CampaignPaymentsLogic lists completed donations of a campaign with anonymous donors masked.
func (s *Service) CampaignPaymentsLogic(ctx context.Context, campaignID uint) ([]models.PublicDonation, error) {
	if _, err := s.loadCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	var payments []dbconnector.Payment
	if err := s.Storage.GetPaymentsByCampaign(ctx, campaignID, &payments); err != nil {
		return nil, storageError(err, "payments")
	}
	out := make([]models.PublicDonation, 0, len(payments))
	for _, pm := range payments {
		if pm.Status != lifecycle.PaymentCompleted {
			continue
		}
		name := pm.DonorName
		if pm.IsAnonymous || name == "" {
			name = "Anonymous"
		}
		out = append(out, models.PublicDonation{
			ID:          pm.ID,
			Amount:      pm.Amount,
			DonorName:   name,
			Message:     pm.Message,
			IsAnonymous: pm.IsAnonymous,
			Status:      string(pm.Status),
			CreatedAt:   pm.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) UserPaymentsLogic(ctx context.Context, p auth.Principal, userID uint) ([]dbconnector.Payment, error) {
	if err := requireOwner(p, userID); err != nil {
		return nil, err
	}
	var payments []dbconnector.Payment
	if err := s.Storage.GetPaymentsByDonor(ctx, userID, &payments); err != nil {
		return nil, storageError(err, "payments")
	}
	return payments, nil
}

type ProcessResult struct {
	Payment *dbconnector.Payment `json:"payment"`
	Receipt *dbconnector.Receipt `json:"receipt"`
}

// ProcessPaymentLogic claims a pending payment, charges it and completes it.
// Completion, the campaign total, reached milestones and the receipt commit together.
func (s *Service) ProcessPaymentLogic(ctx context.Context, id uint) (*ProcessResult, error) {
	var payment dbconnector.Payment
	if err := s.Storage.MarkPaymentProcessing(ctx, id, &payment); err != nil {
		return nil, storageError(err, "payment")
	}
	// the claim is already written, so the outcome must be recorded even if the caller goes away
	bg := context.WithoutCancel(ctx)

	campaign, err := s.loadCampaign(bg, payment.CampaignID)
	if err != nil {
		s.failPayment(bg, id)
		return nil, err
	}
	chargeCtx, cancel := context.WithTimeout(bg, chargeTimeout)
	defer cancel()
	res, err := s.Gateway.Charge(chargeCtx, gateway.Charge{
		PaymentID:   payment.ID,
		CampaignID:  payment.CampaignID,
		Amount:      payment.Amount,
		Method:      payment.Method,
		Email:       payment.DonorEmail,
		Description: campaign.Title,
	})
	if err != nil {
		s.failPayment(bg, id)
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindPayment, err, "payment processing failed")
	}

	receipt := &dbconnector.Receipt{
		ReceiptUUID: uuid.NewString(),
		ReceiptURL:  fmt.Sprintf("%s/api/v1/receipts/payment/%d", strings.TrimRight(s.Settings.BaseURL, "/"), id),
	}
	completed, updated, err := s.Storage.CompletePayment(bg, id, res.TransactionID, s.Now(), receipt)
	if err != nil {
		// the provider has the money; the row stays processing until reconciled by hand
		log.WithError(err).WithFields(log.Fields{
			"payment_id":     id,
			"transaction_id": res.TransactionID,
			"provider":       res.Provider,
		}).Error("charge succeeded but payment could not be completed")
		return nil, storageError(err, "payment")
	}
	log.WithFields(log.Fields{
		"payment_id":     id,
		"campaign_id":    updated.ID,
		"current_amount": updated.CurrentAmount.StringFixed(2),
		"transaction_id": res.TransactionID,
		"provider":       res.Provider,
	}).Info("payment completed")
	return &ProcessResult{Payment: completed, Receipt: receipt}, nil
}

func (s *Service) failPayment(ctx context.Context, id uint) {
	if err := s.Storage.MarkPaymentFailed(ctx, id); err != nil {
		log.WithError(err).WithField("payment_id", id).Error("failed to mark payment as failed")
	}
}

// RefundPaymentLogic reverses a completed payment. Campaign owners and admins may refund.
func (s *Service) RefundPaymentLogic(ctx context.Context, p auth.Principal, id uint) (*dbconnector.Payment, error) {
	payment, campaign, err := s.Storage.RefundPayment(ctx, id, func(_ *dbconnector.Payment, c *dbconnector.Campaign) error {
		return requireOwner(p, c.UserID)
	})
	if err != nil {
		return nil, storageError(err, "payment")
	}
	log.WithFields(log.Fields{
		"payment_id":     id,
		"campaign_id":    campaign.ID,
		"current_amount": campaign.CurrentAmount.StringFixed(2),
	}).Info("payment refunded")
	return payment, nil
}

func (s *Service) PaymentReceiptLogic(ctx context.Context, p auth.Principal, paymentID uint) (*dbconnector.Receipt, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.canSeePayment(ctx, p, payment); err != nil {
		return nil, err
	}
	var receipt dbconnector.Receipt
	if err := s.Storage.GetReceiptByPayment(ctx, paymentID, &receipt); err != nil {
		return nil, storageError(err, "receipt")
	}
	return &receipt, nil
}

func (s *Service) UserReceiptsLogic(ctx context.Context, p auth.Principal, userID uint) ([]dbconnector.Receipt, error) {
	if err := requireOwner(p, userID); err != nil {
		return nil, err
	}
	var receipts []dbconnector.Receipt
	if err := s.Storage.GetReceiptsByDonor(ctx, userID, &receipts); err != nil {
		return nil, storageError(err, "receipts")
	}
	return receipts, nil
}
