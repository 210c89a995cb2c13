package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/gateway"
	"github.com/theheadmen/studfund/internal/images"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/mailer"
	"github.com/theheadmen/studfund/internal/ratelimit"
)

// Settings are the business knobs taken from configuration.
type Settings struct {
	BaseURL           string
	AdminEmail        string
	AdminPasswordHash string
	PartnershipEmail  string
	MinReferrals      int
	CreationPolicy    lifecycle.CreationPolicy
	StartPolicy       lifecycle.StartPolicy
}

type Service struct {
	Storage    Storage
	Mailer     mailer.Mailer
	Images     *images.Service
	Gateway    gateway.Gateway
	OTPLimiter ratelimit.Limiter
	Tokens     *auth.TokenIssuer
	Settings   Settings

	now func() time.Time
}

func New(storage Storage, m mailer.Mailer, img *images.Service, gw gateway.Gateway, limiter ratelimit.Limiter, tokens *auth.TokenIssuer, settings Settings) *Service {
	if settings.MinReferrals <= 0 {
		settings.MinReferrals = lifecycle.DefaultMinReferrals
	}
	if settings.CreationPolicy == "" {
		settings.CreationPolicy = lifecycle.CreateOpen
	}
	if settings.StartPolicy == "" {
		settings.StartPolicy = lifecycle.StartReferralGated
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &Service{
		Storage:    storage,
		Mailer:     m,
		Images:     img,
		Gateway:    gw,
		OTPLimiter: limiter,
		Tokens:     tokens,
		Settings:   settings,
		now:        time.Now,
	}
}

func (s *Service) Now() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// storageError turns a persistence error into a tagged error. Tagged errors
// raised inside transactions pass through unchanged.
func storageError(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case dbconnector.IsNotFound(err):
		return apperr.NotFound(what + " not found")
	case dbconnector.IsUniqueViolation(err):
		return apperr.Conflict(what + " already exists")
	case errors.Is(err, dbconnector.ErrUnknownEntity):
		return apperr.Validation(err.Error()).WithDetails(map[string]interface{}{"entities": dbconnector.AdminEntities()})
	case errors.Is(err, dbconnector.ErrUnknownField):
		return apperr.Validation(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Internal(err, "request cancelled")
	}
	return apperr.Internal(err, fmt.Sprintf("failed to access %s", what))
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("invalid email address")
	}
	return email, nil
}

// notify delivers an email without failing the caller.
func (s *Service) notify(ctx context.Context, msg mailer.Message) {
	if s.Mailer == nil || msg.To == "" {
		return
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		log.WithError(err).WithField("to", msg.To).Warn("notification email not delivered")
	}
}

// requireOwner allows admins and the owner of a record.
func requireOwner(p auth.Principal, ownerID uint) error {
	if p.IsAdmin() || p.Owns(ownerID) {
		return nil
	}
	return apperr.ErrNotOwner
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
