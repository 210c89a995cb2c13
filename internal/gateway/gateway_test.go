package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/lifecycle"
)

func TestSimulatedTransactionID(t *testing.T) {
	s := NewSimulated(0)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }

	res, err := s.Charge(context.Background(), Charge{PaymentID: 12, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.Equal(t, "txn_12_1700000000", res.TransactionID)
	assert.Equal(t, "simulated", res.Provider)
}

func TestSimulatedHonorsCancel(t *testing.T) {
	s := NewSimulated(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Charge(ctx, Charge{PaymentID: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fixedGateway string

func (f fixedGateway) Charge(context.Context, Charge) (Result, error) {
	return Result{TransactionID: string(f), Provider: string(f)}, nil
}

func TestRouter(t *testing.T) {
	r := NewRouter(fixedGateway("default")).Route(lifecycle.MethodCreditCard, fixedGateway("card"))

	res, err := r.Charge(context.Background(), Charge{Method: lifecycle.MethodCreditCard})
	require.NoError(t, err)
	assert.Equal(t, "card", res.Provider)

	res, err = r.Charge(context.Background(), Charge{Method: lifecycle.MethodPayPal})
	require.NoError(t, err)
	assert.Equal(t, "default", res.Provider)
}

func TestStripeRejectsZeroAmount(t *testing.T) {
	s := NewStripe("sk_test_unused")
	_, err := s.Charge(context.Background(), Charge{PaymentID: 1, Amount: decimal.Zero})
	assert.Equal(t, apperr.KindPayment, apperr.KindOf(err))
}
