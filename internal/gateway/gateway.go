// Package gateway charges donations against a payment provider.
package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
)

type Charge struct {
	PaymentID   uint
	CampaignID  uint
	Amount      decimal.Decimal
	Method      lifecycle.PaymentMethod
	Email       string
	Description string
}

type Result struct {
	TransactionID string
	Provider      string
}

type Gateway interface {
	Charge(ctx context.Context, c Charge) (Result, error)
}

// Simulated approves every charge after Delay.
type Simulated struct {
	Delay time.Duration
	now   func() time.Time
}

func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{Delay: delay, now: time.Now}
}

func (s *Simulated) Charge(ctx context.Context, c Charge) (Result, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return Result{
		TransactionID: fmt.Sprintf("txn_%d_%d", c.PaymentID, now().Unix()),
		Provider:      "simulated",
	}, nil
}

// Stripe creates a PaymentIntent per charge.
type Stripe struct {
	intents  paymentintent.Client
	currency string
}

func NewStripe(secretKey string) *Stripe {
	return &Stripe{
		intents:  paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		currency: string(stripe.CurrencyUSD),
	}
}

func (s *Stripe) Charge(ctx context.Context, c Charge) (Result, error) {
	cents := c.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents <= 0 {
		return Result{}, apperr.Payment("amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(cents),
		Currency:           stripe.String(s.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Description:        stripe.String(c.Description),
	}
	params.Context = ctx
	if c.Email != "" {
		params.ReceiptEmail = stripe.String(c.Email)
	}
	params.Metadata = map[string]string{
		"payment_id":  strconv.FormatUint(uint64(c.PaymentID), 10),
		"campaign_id": strconv.FormatUint(uint64(c.CampaignID), 10),
	}

	pi, err := s.intents.New(params)
	if err != nil {
		log.WithError(err).WithField("payment_id", c.PaymentID).Error("stripe payment intent failed")
		return Result{}, apperr.Wrap(apperr.KindPayment, err, "payment provider rejected the charge")
	}
	if pi.Status == stripe.PaymentIntentStatusCanceled {
		return Result{}, apperr.Payment("payment was cancelled by the provider")
	}
	return Result{TransactionID: pi.ID, Provider: "stripe"}, nil
}

// Router sends each charge to the gateway registered for its method.
type Router struct {
	Default  Gateway
	ByMethod map[lifecycle.PaymentMethod]Gateway
}

func NewRouter(def Gateway) *Router {
	return &Router{Default: def, ByMethod: map[lifecycle.PaymentMethod]Gateway{}}
}

func (r *Router) Route(method lifecycle.PaymentMethod, g Gateway) *Router {
	r.ByMethod[method] = g
	return r
}

func (r *Router) Charge(ctx context.Context, c Charge) (Result, error) {
	if g, ok := r.ByMethod[c.Method]; ok {
		return g.Charge(ctx, c)
	}
	return r.Default.Charge(ctx, c)
}
