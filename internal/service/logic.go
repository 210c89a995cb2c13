package service

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/mailer"
	"github.com/theheadmen/studfund/internal/models"
)

const minPasswordLength = 8

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.Validation("password must be at least 8 characters")
	}
	return nil
}

// newUser builds a user row with a fresh unique referral code.
func (s *Service) newUser(ctx context.Context, req models.RegisterRequest, role lifecycle.Role) (*dbconnector.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return nil, apperr.Validation("first and last name are required")
	}

	var existing dbconnector.User
	err = s.Storage.GetUserByEmail(ctx, email, &existing)
	if err == nil {
		return nil, apperr.ErrEmailTaken
	}
	if !dbconnector.IsNotFound(err) {
		return nil, storageError(err, "user")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal(err, "failed to hash password")
	}
	code, err := auth.GenerateReferralCode()
	if err != nil {
		return nil, apperr.Internal(err, "failed to generate referral code")
	}

	user := &dbconnector.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         role,
		Status:       lifecycle.UserActive,
		ReferralCode: code,
	}

	if req.ReferralCode != "" {
		var referrer dbconnector.User
		if err := s.Storage.GetUserByReferralCode(ctx, strings.ToUpper(strings.TrimSpace(req.ReferralCode)), &referrer); err != nil {
			if dbconnector.IsNotFound(err) {
				return nil, apperr.Validation("unknown referral code")
			}
			return nil, storageError(err, "user")
		}
		user.ReferredBy = &referrer.ID
	}
	return user, nil
}

// RegisterLogic creates a student or donor account and mails a verification code.
func (s *Service) RegisterLogic(ctx context.Context, req models.RegisterRequest) (*dbconnector.User, error) {
	role := lifecycle.RoleStudent
	if req.Role != "" {
		parsed, err := lifecycle.ParseRole(strings.ToLower(req.Role))
		if err != nil || !lifecycle.PublicRole(parsed) {
			return nil, apperr.Validation("invalid role for public registration")
		}
		role = parsed
	}

	user, err := s.newUser(ctx, req, role)
	if err != nil {
		return nil, err
	}
	if err := s.Storage.AddUser(ctx, user); err != nil {
		if dbconnector.IsUniqueViolation(err) {
			return nil, apperr.ErrEmailTaken
		}
		return nil, storageError(err, "user")
	}
	log.WithField("user_id", user.ID).WithField("role", user.Role).Info("user registered")

	if _, err := s.issueOTP(ctx, user.Email, lifecycle.PurposeEmailVerification, false); err != nil {
		log.WithError(err).WithField("email", user.Email).Warn("verification code not issued")
	}
	return user, nil
}

func (s *Service) tokenResponse(id int64, user models.UserResponse) (*models.TokenResponse, error) {
	token, err := s.Tokens.Issue(id, lifecycle.Role(user.Role), user.Email)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue token")
	}
	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.Tokens.TTL.Seconds()),
		User:        user,
	}, nil
}

func (s *Service) isConfigAdmin(email string) bool {
	return s.Settings.AdminEmail != "" && s.Settings.AdminPasswordHash != "" &&
		strings.EqualFold(email, s.Settings.AdminEmail)
}

// LoginLogic checks credentials and returns a bearer token.
func (s *Service) LoginLogic(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if s.isConfigAdmin(email) {
		if !auth.CheckPassword(s.Settings.AdminPasswordHash, req.Password) {
			return nil, apperr.ErrInvalidCredentials
		}
		log.Info("configured administrator logged in")
		return s.tokenResponse(auth.ConfigAdminID, models.UserResponse{
			ID:         auth.ConfigAdminID,
			Email:      strings.ToLower(s.Settings.AdminEmail),
			FirstName:  "Admin",
			LastName:   "User",
			Role:       string(lifecycle.RoleAdmin),
			Status:     string(lifecycle.UserActive),
			IsVerified: true,
		})
	}

	var user dbconnector.User
	if err := s.Storage.GetUserByEmail(ctx, email, &user); err != nil {
		if dbconnector.IsNotFound(err) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, storageError(err, "user")
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, apperr.ErrInvalidCredentials
	}
	if !user.IsVerified {
		return nil, apperr.ErrEmailNotVerified
	}
	if user.Status != lifecycle.UserActive {
		return nil, apperr.ErrAccountInactive
	}
	log.WithField("user_id", user.ID).Info("user logged in")
	return s.tokenResponse(int64(user.ID), models.NewUserResponse(&user))
}

// AuthenticateLogic resolves a bearer token to the caller. Database users are
// reloaded so role and status changes apply immediately.
func (s *Service) AuthenticateLogic(ctx context.Context, token string) (auth.Principal, error) {
	p, err := s.Tokens.Parse(token)
	if err != nil {
		return auth.Principal{}, err
	}
	if p.IsConfigAdmin() {
		if !s.isConfigAdmin(p.Email) {
			return auth.Principal{}, apperr.ErrInvalidToken
		}
		p.Role = lifecycle.RoleAdmin
		return p, nil
	}
	if p.UserID <= 0 {
		return auth.Principal{}, apperr.ErrInvalidToken
	}

	var user dbconnector.User
	if err := s.Storage.GetUserByUserID(ctx, uint(p.UserID), &user); err != nil {
		if dbconnector.IsNotFound(err) {
			return auth.Principal{}, apperr.ErrInvalidToken
		}
		return auth.Principal{}, storageError(err, "user")
	}
	if user.Status != lifecycle.UserActive {
		return auth.Principal{}, apperr.ErrAccountInactive
	}
	return auth.Principal{UserID: int64(user.ID), Role: user.Role, Email: user.Email}, nil
}

// ActingUser returns the database row of the caller. The configured
// administrator gets a row on first use so it can own records.
func (s *Service) ActingUser(ctx context.Context, p auth.Principal) (*dbconnector.User, error) {
	if p.IsConfigAdmin() {
		code, err := auth.GenerateReferralCode()
		if err != nil {
			return nil, apperr.Internal(err, "failed to generate referral code")
		}
		user := &dbconnector.User{
			Email:        strings.ToLower(s.Settings.AdminEmail),
			PasswordHash: s.Settings.AdminPasswordHash,
			FirstName:    "Admin",
			LastName:     "User",
			Role:         lifecycle.RoleAdmin,
			Status:       lifecycle.UserActive,
			IsVerified:   true,
			ReferralCode: code,
		}
		if err := s.Storage.EnsureUserByEmail(ctx, user); err != nil {
			return nil, storageError(err, "user")
		}
		return user, nil
	}

	var user dbconnector.User
	if err := s.Storage.GetUserByUserID(ctx, uint(p.UserID), &user); err != nil {
		return nil, storageError(err, "user")
	}
	return &user, nil
}

// ProfileLogic returns the caller with donation and fundraising totals.
func (s *Service) ProfileLogic(ctx context.Context, p auth.Principal) (*models.ProfileResponse, error) {
	user, err := s.ActingUser(ctx, p)
	if err != nil {
		return nil, err
	}
	donated, raised, err := s.Storage.UserTotals(ctx, user.ID)
	if err != nil {
		return nil, storageError(err, "user totals")
	}
	resp := &models.ProfileResponse{
		UserResponse:   models.NewUserResponse(user),
		TotalDonations: donated,
		TotalRaised:    raised,
	}
	if p.IsConfigAdmin() {
		resp.ID = auth.ConfigAdminID
	}
	return resp, nil
}

// UpdateProfileLogic changes the caller's own name, phone or password. Unset fields are kept.
func (s *Service) UpdateProfileLogic(ctx context.Context, p auth.Principal, req models.ProfileUpdateRequest) (*dbconnector.User, error) {
	if req.Password != nil && p.IsConfigAdmin() {
		return nil, apperr.Validation("the configured admin password cannot be changed here")
	}
	user, err := s.ActingUser(ctx, p)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		if user.FirstName, err = requireText("first_name", *req.FirstName, 100); err != nil {
			return nil, err
		}
	}
	if req.LastName != nil {
		if user.LastName, err = requireText("last_name", *req.LastName, 100); err != nil {
			return nil, err
		}
	}
	if req.Phone != nil {
		if user.Phone, err = optionalText("phone", *req.Phone, 32); err != nil {
			return nil, err
		}
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return nil, err
		}
		if user.PasswordHash, err = auth.HashPassword(*req.Password); err != nil {
			return nil, apperr.Internal(err, "failed to hash password")
		}
	}
	if err := s.Storage.UpdateUser(ctx, user); err != nil {
		return nil, storageError(err, "user")
	}
	log.WithField("user_id", user.ID).Info("profile updated")
	return user, nil
}

// issueOTP stores a fresh code for the scope, invalidating older ones, and mails it.
// Mail failures are logged only.
func (s *Service) issueOTP(ctx context.Context, email string, purpose lifecycle.OTPPurpose, limited bool) (*dbconnector.OTPVerification, error) {
	if limited {
		ok, err := s.OTPLimiter.Allow(ctx, string(purpose)+":"+email)
		if err != nil {
			log.WithError(err).Warn("otp rate limiter unavailable")
		} else if !ok {
			return nil, apperr.RateLimited("too many verification codes requested, try again later")
		}
	}

	code, err := auth.GenerateOTPCode()
	if err != nil {
		return nil, apperr.Internal(err, "failed to generate code")
	}
	otp := &dbconnector.OTPVerification{
		Email:       email,
		Purpose:     purpose,
		Code:        code,
		ExpiresAt:   s.Now().Add(lifecycle.OTPExpiry),
		MaxAttempts: lifecycle.OTPMaxAttempts,
	}
	if err := s.Storage.ReplaceOTP(ctx, otp); err != nil {
		return nil, storageError(err, "verification code")
	}
	s.notify(ctx, mailer.OTPMessage(email, code, purpose))
	return otp, nil
}

// checkOTP verifies one guess and converts a failure into a validation error
// carrying the attempts left.
func (s *Service) checkOTP(ctx context.Context, email string, purpose lifecycle.OTPPurpose, code string) error {
	outcome, err := s.Storage.VerifyOTP(ctx, email, purpose, strings.TrimSpace(code), s.Now())
	if err != nil {
		if dbconnector.IsNotFound(err) {
			return apperr.ErrInvalidOTP.WithDetails(map[string]interface{}{"remaining_attempts": 0})
		}
		return storageError(err, "verification code")
	}
	if outcome.Verified() {
		return nil
	}

	msg := "invalid OTP code"
	switch outcome.Result {
	case lifecycle.OTPExpired:
		msg = "OTP code has expired"
	case lifecycle.OTPExhausted:
		msg = "too many failed attempts, request a new code"
	}
	return apperr.Validation(msg).WithDetails(map[string]interface{}{"remaining_attempts": outcome.Remaining})
}

func parsePurpose(purpose string) (lifecycle.OTPPurpose, error) {
	if purpose == "" {
		return lifecycle.PurposeEmailVerification, nil
	}
	if !lifecycle.ValidPurpose(purpose) {
		return "", apperr.Validation("unknown OTP purpose")
	}
	return lifecycle.OTPPurpose(purpose), nil
}

func otpMinutes() *int {
	m := int(lifecycle.OTPExpiry.Minutes())
	return &m
}

// VerifyOTPLogic checks a code for any purpose; email verification also marks the user verified.
func (s *Service) VerifyOTPLogic(ctx context.Context, req models.VerifyOTPRequest) (*models.OTPResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	purpose, err := parsePurpose(req.Purpose)
	if err != nil {
		return nil, err
	}
	if err := s.checkOTP(ctx, email, purpose, req.OTPCode); err != nil {
		return nil, err
	}
	if purpose == lifecycle.PurposeEmailVerification {
		if err := s.Storage.SetUserVerified(ctx, email); err != nil {
			return nil, storageError(err, "user")
		}
		log.WithField("email", email).Info("email verified")
	}
	return &models.OTPResponse{Success: true, Message: "OTP verified", Email: email}, nil
}

// ResendVerificationLogic reissues an email verification code. Unknown
// addresses get the same answer as known ones.
func (s *Service) ResendVerificationLogic(ctx context.Context, req models.EmailRequest) (*models.MessageResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	var user dbconnector.User
	if err := s.Storage.GetUserByEmail(ctx, email, &user); err != nil {
		if dbconnector.IsNotFound(err) {
			return &models.MessageResponse{Message: "If the email exists, a verification code was resent"}, nil
		}
		return nil, storageError(err, "user")
	}
	if _, err := s.issueOTP(ctx, email, lifecycle.PurposeEmailVerification, true); err != nil {
		return nil, err
	}
	return &models.MessageResponse{Message: "Verification code sent"}, nil
}

func (s *Service) ForgotPasswordLogic(ctx context.Context, req models.EmailRequest) (*models.MessageResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	var user dbconnector.User
	if err := s.Storage.GetUserByEmail(ctx, email, &user); err != nil {
		if dbconnector.IsNotFound(err) {
			return &models.MessageResponse{Message: "If the email exists, an OTP has been sent"}, nil
		}
		return nil, storageError(err, "user")
	}
	if _, err := s.issueOTP(ctx, email, lifecycle.PurposePasswordReset, true); err != nil {
		return nil, err
	}
	return &models.MessageResponse{Message: "If the email exists, an OTP has been sent"}, nil
}

func (s *Service) ResetPasswordLogic(ctx context.Context, req models.ResetPasswordRequest) (*models.MessageResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return nil, err
	}
	if err := s.checkOTP(ctx, email, lifecycle.PurposePasswordReset, req.OTPCode); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return nil, apperr.Internal(err, "failed to hash password")
	}
	if err := s.Storage.SetUserPassword(ctx, email, hash); err != nil {
		return nil, storageError(err, "user")
	}
	log.WithField("email", email).Info("password reset")
	return &models.MessageResponse{Message: "Password reset successfully"}, nil
}

// unverifiedUser loads a user that still needs email verification.
func (s *Service) unverifiedUser(ctx context.Context, rawEmail string) (string, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return "", err
	}
	var user dbconnector.User
	if err := s.Storage.GetUserByEmail(ctx, email, &user); err != nil {
		if dbconnector.IsNotFound(err) {
			return "", apperr.Validation("user not found")
		}
		return "", storageError(err, "user")
	}
	if user.IsVerified {
		return "", apperr.Validation("email is already verified")
	}
	return email, nil
}

func (s *Service) SendOTPLogic(ctx context.Context, req models.EmailRequest) (*models.OTPResponse, error) {
	email, err := s.unverifiedUser(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if _, err := s.issueOTP(ctx, email, lifecycle.PurposeEmailVerification, true); err != nil {
		return nil, err
	}
	return &models.OTPResponse{
		Success:          true,
		Message:          "OTP sent successfully. Check your email.",
		Email:            email,
		ExpiresInMinutes: otpMinutes(),
	}, nil
}

func (s *Service) ResendOTPLogic(ctx context.Context, req models.EmailRequest) (*models.OTPResponse, error) {
	resp, err := s.SendOTPLogic(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Message = "New OTP sent successfully. Check your email."
	return resp, nil
}

// VerifyEmailOTPLogic verifies an email_verification code for the OTP endpoints.
func (s *Service) VerifyEmailOTPLogic(ctx context.Context, req models.VerifyOTPRequest) (*models.OTPResponse, error) {
	req.Purpose = string(lifecycle.PurposeEmailVerification)
	resp, err := s.VerifyOTPLogic(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Message = "Email verified successfully! You can now log in."
	return resp, nil
}

func (s *Service) OTPStatusLogic(ctx context.Context, rawEmail string) (*models.OTPStatusResponse, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	var user dbconnector.User
	if err := s.Storage.GetUserByEmail(ctx, email, &user); err != nil {
		if dbconnector.IsNotFound(err) {
			return nil, apperr.Validation("user not found")
		}
		return nil, storageError(err, "user")
	}
	resp := &models.OTPStatusResponse{Email: email, MaxAttempts: lifecycle.OTPMaxAttempts}
	if user.IsVerified {
		resp.IsVerified = true
		resp.Message = "Email is already verified"
		return resp, nil
	}

	var otp dbconnector.OTPVerification
	err = s.Storage.GetLatestOTP(ctx, email, lifecycle.PurposeEmailVerification, &otp)
	if err != nil && !dbconnector.IsNotFound(err) {
		return nil, storageError(err, "verification code")
	}
	if err == nil && s.Now().Before(otp.ExpiresAt) && otp.Attempts < otp.MaxAttempts {
		resp.HasActiveOTP = true
		resp.ExpiresAt = &otp.ExpiresAt
		resp.RemainingAttempts = otp.MaxAttempts - otp.Attempts
		resp.MaxAttempts = otp.MaxAttempts
	}
	return resp, nil
}

// CleanupOTPs removes codes that expired more than an hour ago.
func (s *Service) CleanupOTPs(ctx context.Context) (int64, error) {
	removed, err := s.Storage.CleanupExpiredOTPs(ctx, s.Now().Add(-time.Hour))
	return removed, storageError(err, "verification code")
}

// CleanupRateLimits drops finished OTP issuance windows when the limiter keeps them in memory.
func (s *Service) CleanupRateLimits() int {
	if c, ok := s.OTPLimiter.(interface{ Cleanup() int }); ok {
		return c.Cleanup()
	}
	return 0
}
