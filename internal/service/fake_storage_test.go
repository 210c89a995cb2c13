package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/theheadmen/studfund/internal/auth"
	"github.com/theheadmen/studfund/internal/dbconnector"
	apperr "github.com/theheadmen/studfund/internal/errors"
	"github.com/theheadmen/studfund/internal/gateway"
	"github.com/theheadmen/studfund/internal/lifecycle"
	"github.com/theheadmen/studfund/internal/mailer"
	"gorm.io/gorm"
)

// memStorage keeps the rows the service tests touch in maps. Methods it does
// not override panic through the nil embedded interface.
type memStorage struct {
	Storage

	mu         sync.Mutex
	nextID     uint
	users      map[uint]*dbconnector.User
	otps       []*dbconnector.OTPVerification
	campaigns  map[uint]*dbconnector.Campaign
	referrals  map[uint]*dbconnector.Referral
	payments   map[uint]*dbconnector.Payment
	receipts   map[uint]*dbconnector.Receipt
	milestones map[uint]*dbconnector.Milestone
}

func newMemStorage() *memStorage {
	return &memStorage{
		users:      map[uint]*dbconnector.User{},
		campaigns:  map[uint]*dbconnector.Campaign{},
		referrals:  map[uint]*dbconnector.Referral{},
		payments:   map[uint]*dbconnector.Payment{},
		receipts:   map[uint]*dbconnector.Receipt{},
		milestones: map[uint]*dbconnector.Milestone{},
	}
}

func (m *memStorage) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStorage) GetUserByEmail(_ context.Context, email string, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			*user = *u
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memStorage) GetUserByUserID(_ context.Context, userID uint, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*user = *u
	return nil
}

func (m *memStorage) GetUserByReferralCode(_ context.Context, code string, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ReferralCode == code {
			*user = *u
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memStorage) AddUser(_ context.Context, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.id()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStorage) UpdateUser(_ context.Context, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStorage) SetUserVerified(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.IsVerified = true
		}
	}
	return nil
}

func (m *memStorage) EnsureUserByEmail(_ context.Context, user *dbconnector.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			*user = *u
			return nil
		}
	}
	user.ID = m.id()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStorage) ReplaceOTP(_ context.Context, otp *dbconnector.OTPVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.otps {
		if o.Email == otp.Email && o.Purpose == otp.Purpose {
			o.IsUsed = true
		}
	}
	otp.ID = m.id()
	cp := *otp
	m.otps = append(m.otps, &cp)
	return nil
}

func (m *memStorage) latestOTP(email string, purpose lifecycle.OTPPurpose) *dbconnector.OTPVerification {
	for i := len(m.otps) - 1; i >= 0; i-- {
		o := m.otps[i]
		if o.Email == email && o.Purpose == purpose && !o.IsUsed {
			return o
		}
	}
	return nil
}

func (m *memStorage) GetLatestOTP(_ context.Context, email string, purpose lifecycle.OTPPurpose, otp *dbconnector.OTPVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.latestOTP(email, purpose)
	if o == nil {
		return gorm.ErrRecordNotFound
	}
	*otp = *o
	return nil
}

func (m *memStorage) VerifyOTP(_ context.Context, email string, purpose lifecycle.OTPPurpose, code string, now time.Time) (lifecycle.OTPOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.latestOTP(email, purpose)
	if o == nil {
		return lifecycle.OTPOutcome{}, gorm.ErrRecordNotFound
	}
	outcome := lifecycle.EvaluateOTP(lifecycle.OTPState{Code: o.Code, ExpiresAt: o.ExpiresAt, Attempts: o.Attempts}, code, now, o.MaxAttempts)
	if outcome.Consume {
		o.IsUsed = true
	}
	if outcome.Increment {
		o.Attempts++
	}
	return outcome, nil
}

func (m *memStorage) AddCampaign(_ context.Context, campaign *dbconnector.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaign.ID = m.id()
	cp := *campaign
	m.campaigns[campaign.ID] = &cp
	return nil
}

func (m *memStorage) GetCampaignByID(_ context.Context, id uint, campaign *dbconnector.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*campaign = *c
	return nil
}

func (m *memStorage) MutateCampaign(_ context.Context, id uint, fn func(c *dbconnector.Campaign) (bool, error)) (*dbconnector.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	changed, err := fn(&cp)
	if err != nil {
		return nil, err
	}
	if changed {
		*c = cp
	}
	return &cp, nil
}

func (m *memStorage) DonorCounts(_ context.Context, ids []uint) (map[uint]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[uint]int64{}
	for _, p := range m.payments {
		if p.Status == lifecycle.PaymentCompleted {
			counts[p.CampaignID]++
		}
	}
	return counts, nil
}

func (m *memStorage) AddReferral(_ context.Context, referral *dbconnector.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	referral.ID = m.id()
	cp := *referral
	m.referrals[referral.ID] = &cp
	return nil
}

func (m *memStorage) ReferralCounts(_ context.Context, campaignID uint) (map[lifecycle.ReferralStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[lifecycle.ReferralStatus]int64{}
	for _, r := range m.referrals {
		if r.CampaignID == campaignID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

func (m *memStorage) AcceptReferral(_ context.Context, token string, minReferrals int, now time.Time) (*dbconnector.Referral, *dbconnector.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var referral *dbconnector.Referral
	for _, r := range m.referrals {
		if r.Token == token {
			referral = r
		}
	}
	if referral == nil {
		return nil, nil, gorm.ErrRecordNotFound
	}
	if err := lifecycle.CanAccept(referral.Status); err != nil {
		return nil, nil, err
	}
	campaign := m.campaigns[referral.CampaignID]
	referral.Status = lifecycle.ReferralAccepted
	referral.AcceptedAt = &now
	m.users[campaign.UserID].ReferralCount++

	var accepted int64
	for _, r := range m.referrals {
		if r.CampaignID == campaign.ID && r.Status == lifecycle.ReferralAccepted {
			accepted++
		}
	}
	campaign.ReferralCount = int(accepted)
	if lifecycle.ShouldPromote(campaign.Status, accepted, minReferrals) {
		campaign.Status = lifecycle.CampaignPendingApproval
		campaign.ReferralRequirementMet = true
	}
	r, c := *referral, *campaign
	return &r, &c, nil
}

func (m *memStorage) AddPayment(_ context.Context, payment *dbconnector.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	payment.ID = m.id()
	payment.CreatedAt = time.Now()
	cp := *payment
	m.payments[payment.ID] = &cp
	return nil
}

func (m *memStorage) GetPaymentByID(_ context.Context, id uint, payment *dbconnector.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*payment = *p
	return nil
}

func (m *memStorage) GetPaymentsByCampaign(_ context.Context, campaignID uint, payments *[]dbconnector.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.CampaignID == campaignID {
			*payments = append(*payments, *p)
		}
	}
	sort.Slice(*payments, func(i, j int) bool { return (*payments)[i].ID < (*payments)[j].ID })
	return nil
}

func (m *memStorage) MarkPaymentProcessing(_ context.Context, id uint, payment *dbconnector.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if err := lifecycle.CanProcess(p.Status); err != nil {
		return err
	}
	p.Status = lifecycle.PaymentProcessing
	*payment = *p
	return nil
}

func (m *memStorage) MarkPaymentFailed(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[id]; ok && p.Status == lifecycle.PaymentProcessing {
		p.Status = lifecycle.PaymentFailed
	}
	return nil
}

func (m *memStorage) CompletePayment(_ context.Context, id uint, transactionID string, now time.Time, receipt *dbconnector.Receipt) (*dbconnector.Payment, *dbconnector.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payments[id]
	if p.Status != lifecycle.PaymentProcessing {
		return nil, nil, apperr.Payment("payment is not processing")
	}
	c := m.campaigns[p.CampaignID]
	p.Status = lifecycle.PaymentCompleted
	p.TransactionID = transactionID
	p.ProcessedAt = &now
	c.CurrentAmount = c.CurrentAmount.Add(p.Amount)
	for _, ms := range m.milestones {
		if ms.CampaignID == c.ID && ms.AchievedAt == nil && ms.ThresholdAmount.LessThanOrEqual(c.CurrentAmount) {
			ms.AchievedAt = &now
		}
	}
	receipt.ID = m.id()
	receipt.PaymentID = id
	receipt.GeneratedAt = now
	cp := *receipt
	m.receipts[id] = &cp
	pc, cc := *p, *c
	return &pc, &cc, nil
}

func (m *memStorage) RefundPayment(_ context.Context, id uint, check func(p *dbconnector.Payment, c *dbconnector.Campaign) error) (*dbconnector.Payment, *dbconnector.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, nil, gorm.ErrRecordNotFound
	}
	c := m.campaigns[p.CampaignID]
	if err := check(p, c); err != nil {
		return nil, nil, err
	}
	if err := lifecycle.CanRefund(p.Status); err != nil {
		return nil, nil, err
	}
	p.Status = lifecycle.PaymentRefunded
	c.CurrentAmount = lifecycle.FloorSubtract(c.CurrentAmount, p.Amount)
	pc, cc := *p, *c
	return &pc, &cc, nil
}

func (m *memStorage) GetReceiptByPayment(_ context.Context, paymentID uint, receipt *dbconnector.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[paymentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	*receipt = *r
	return nil
}

func (m *memStorage) AddMilestone(_ context.Context, milestone *dbconnector.Milestone) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	milestone.ID = m.id()
	cp := *milestone
	m.milestones[milestone.ID] = &cp
	return nil
}

// recordingMailer keeps every message it is asked to send.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (r *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

type failingGateway struct{}

func (failingGateway) Charge(context.Context, gateway.Charge) (gateway.Result, error) {
	return gateway.Result{}, errors.New("card declined")
}

type testEnv struct {
	svc    *Service
	store  *memStorage
	mailer *recordingMailer
	now    time.Time
}

func newTestEnv(settings Settings) *testEnv {
	store := newMemStorage()
	m := &recordingMailer{}
	if settings.BaseURL == "" {
		settings.BaseURL = "http://localhost:8080"
	}
	svc := New(store, m, nil, gateway.NewSimulated(0), nil, auth.NewTokenIssuer("test-secret", time.Hour), settings)
	env := &testEnv{svc: svc, store: store, mailer: m, now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return env.now }
	return env
}

// addUser stores a verified active user and returns its principal.
func (e *testEnv) addUser(email string, role lifecycle.Role) auth.Principal {
	hash, _ := auth.HashPassword("password123")
	user := &dbconnector.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Status:       lifecycle.UserActive,
		IsVerified:   true,
		ReferralCode: strings.ToUpper(email[:4]),
	}
	_ = e.store.AddUser(context.Background(), user)
	return auth.Principal{UserID: int64(user.ID), Role: role, Email: email}
}

func (e *testEnv) addCampaign(owner auth.Principal, status lifecycle.CampaignStatus) *dbconnector.Campaign {
	c := &dbconnector.Campaign{
		UserID:         uint(owner.UserID),
		Title:          "Tuition for spring",
		Description:    "Help me pay for my spring semester tuition",
		GoalAmount:     decimal.NewFromInt(1000),
		CurrentAmount:  decimal.Zero,
		Status:         status,
		DurationMonths: 3,
	}
	_ = e.store.AddCampaign(context.Background(), c)
	return c
}
