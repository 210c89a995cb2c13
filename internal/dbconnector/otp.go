package dbconnector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReplaceOTP consumes every unused code of the scope and stores otp in its place.
func (dbConnector *DBConnector) ReplaceOTP(ctx context.Context, otp *OTPVerification) error {
	return dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&OTPVerification{}).
			Where("email = ? AND purpose = ? AND is_used = ?", otp.Email, otp.Purpose, false).
			Update("is_used", true).Error
		if err != nil {
			return err
		}
		return tx.Create(otp).Error
	})
}

// GetLatestOTP loads the newest unused code of the scope.
func (dbConnector *DBConnector) GetLatestOTP(ctx context.Context, email string, purpose lifecycle.OTPPurpose, otp *OTPVerification) error {
	result := dbConnector.DB.WithContext(ctx).
		Where("email = ? AND purpose = ? AND is_used = ?", email, purpose, false).
		Order("created_at DESC, id DESC").
		First(otp)
	return result.Error
}

// VerifyOTP evaluates code against the newest unused record of the scope under a
// row lock and persists the outcome. gorm.ErrRecordNotFound means no code is pending.
func (dbConnector *DBConnector) VerifyOTP(ctx context.Context, email string, purpose lifecycle.OTPPurpose, code string, now time.Time) (lifecycle.OTPOutcome, error) {
	var outcome lifecycle.OTPOutcome
	err := dbConnector.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var otp OTPVerification
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ? AND purpose = ? AND is_used = ?", email, purpose, false).
			Order("created_at DESC, id DESC").
			First(&otp).Error
		if err != nil {
			return err
		}

		outcome = lifecycle.EvaluateOTP(lifecycle.OTPState{
			Code:      otp.Code,
			ExpiresAt: otp.ExpiresAt,
			Attempts:  otp.Attempts,
		}, code, now, otp.MaxAttempts)

		updates := map[string]interface{}{}
		if outcome.Consume {
			updates["is_used"] = true
		}
		if outcome.Verified() {
			updates["verified_at"] = now
		}
		if outcome.Increment {
			updates["attempts"] = gorm.Expr("attempts + 1")
		}
		return tx.Model(&otp).Updates(updates).Error
	})
	return outcome, err
}

// CleanupExpiredOTPs deletes codes that expired before cutoff.
func (dbConnector *DBConnector) CleanupExpiredOTPs(ctx context.Context, cutoff time.Time) (int64, error) {
	result := dbConnector.DB.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&OTPVerification{})
	return result.RowsAffected, errors.Wrap(result.Error, "cleanup otps")
}
