package dbconnector

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	connectAttempts = 5
	maxOpenConns    = 25
	maxIdleConns    = 5
)

type DBConnector struct {
	DB *gorm.DB
}

func newGormLogger() logger.Interface {
	level := logger.Warn
	if log.GetLevel() >= log.DebugLevel {
		level = logger.Info
	}
	return logger.New(log.StandardLogger(), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

// OpenDBConnect opens the pool, retrying while the database is still starting.
func OpenDBConnect(dsn string) (*DBConnector, error) {
	var db *gorm.DB
	var err error
	backoff := time.Second
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: newGormLogger()})
		if err == nil {
			break
		}
		log.Printf("database connect attempt %d/%d failed: %v", attempt, connectAttempts, err)
		if attempt < connectAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql handle")
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DBConnector{DB: db}, nil
}

func (dbConnector *DBConnector) DBInitialize() error {
	return dbConnector.DB.AutoMigrate(
		&User{},
		&Campaign{},
		&Referral{},
		&Payment{},
		&Receipt{},
		&Milestone{},
		&Shoutout{},
		&Company{},
		&Partnership{},
		&StudentHighlight{},
		&OTPVerification{},
	)
}

func (dbConnector *DBConnector) Close() error {
	sqlDB, err := dbConnector.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (dbConnector *DBConnector) Ping(ctx context.Context) error {
	sqlDB, err := dbConnector.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// DeleteAllData truncates every table. Used by tests.
func (dbConnector *DBConnector) DeleteAllData(ctx context.Context) error {
	return dbConnector.DB.WithContext(ctx).Exec(`TRUNCATE TABLE
		otp_verifications, student_highlights, partnerships, companies, shoutouts,
		milestones, receipts, payments, referrals, campaigns, users
		RESTART IDENTITY CASCADE`).Error
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (dbConnector *DBConnector) GetUserByEmail(ctx context.Context, email string, user *User) error {
	result := dbConnector.DB.WithContext(ctx).Where("email = ?", email).First(user)
	return result.Error
}

func (dbConnector *DBConnector) GetUserByUserID(ctx context.Context, userID uint, user *User) error {
	result := dbConnector.DB.WithContext(ctx).First(user, userID)
	return result.Error
}

func (dbConnector *DBConnector) GetUserByReferralCode(ctx context.Context, code string, user *User) error {
	result := dbConnector.DB.WithContext(ctx).Where("referral_code = ?", code).First(user)
	return result.Error
}

func (dbConnector *DBConnector) AddUser(ctx context.Context, newUser *User) error {
	result := dbConnector.DB.WithContext(ctx).Create(newUser)
	return errors.Wrap(result.Error, "add user")
}

func (dbConnector *DBConnector) UpdateUser(ctx context.Context, updUser *User) error {
	result := dbConnector.DB.WithContext(ctx).Save(updUser)
	return errors.Wrap(result.Error, "update user")
}

func (dbConnector *DBConnector) SetUserVerified(ctx context.Context, email string) error {
	result := dbConnector.DB.WithContext(ctx).Model(&User{}).
		Where("email = ?", email).
		Update("is_verified", true)
	return errors.Wrap(result.Error, "verify user")
}

func (dbConnector *DBConnector) SetUserPassword(ctx context.Context, email string, passwordHash string) error {
	result := dbConnector.DB.WithContext(ctx).Model(&User{}).
		Where("email = ?", email).
		Update("password_hash", passwordHash)
	return errors.Wrap(result.Error, "set password")
}

// EnsureUserByEmail returns the user with user.Email, creating it from user when missing.
func (dbConnector *DBConnector) EnsureUserByEmail(ctx context.Context, user *User) error {
	result := dbConnector.DB.WithContext(ctx).
		Where(User{Email: user.Email}).
		Attrs(*user).
		FirstOrCreate(user)
	return errors.Wrap(result.Error, "ensure user")
}

// UserTotals sums a user's completed donations and the amounts raised by their campaigns.
func (dbConnector *DBConnector) UserTotals(ctx context.Context, userID uint) (donated, raised decimal.Decimal, err error) {
	db := dbConnector.DB.WithContext(ctx)
	err = db.Model(&Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("donor_id = ? AND status = ?", userID, lifecycle.PaymentCompleted).
		Row().Scan(&donated)
	if err != nil {
		return donated, raised, errors.Wrap(err, "sum donations")
	}
	err = db.Model(&Campaign{}).
		Select("COALESCE(SUM(current_amount), 0)").
		Where("user_id = ?", userID).
		Row().Scan(&raised)
	if err != nil {
		return donated, raised, errors.Wrap(err, "sum raised")
	}
	return donated, raised, nil
}
