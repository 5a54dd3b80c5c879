package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/gateway"
	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/service"
)

// --- In-memory store ---

type redemption struct {
	couponID, userID, paymentID string
}

type state struct {
	events        map[string]models.Event
	registrations map[string]models.Registration
	coupons       map[string]models.Coupon
	payments      map[string]models.Payment
	redemptions   []redemption
}

func (s *state) clone() *state {
	c := &state{
		events:        make(map[string]models.Event, len(s.events)),
		registrations: make(map[string]models.Registration, len(s.registrations)),
		coupons:       make(map[string]models.Coupon, len(s.coupons)),
		payments:      make(map[string]models.Payment, len(s.payments)),
		redemptions:   append([]redemption(nil), s.redemptions...),
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.registrations {
		c.registrations[k] = v
	}
	for k, v := range s.coupons {
		c.coupons[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

type store struct {
	mu   sync.Mutex
	data *state
}

func newStore() *store {
	return &store{data: &state{
		events:        map[string]models.Event{},
		registrations: map[string]models.Registration{},
		coupons:       map[string]models.Coupon{},
		payments:      map[string]models.Payment{},
	}}
}

func (s *store) payment(id string) models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.payments[id]
}

func (s *store) registration(id string) models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.registrations[id]
}

func (s *store) coupon(id string) models.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.coupons[id]
}

type eventRepo struct{ *store }

func (r eventRepo) GetByID(_ context.Context, id string) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.data.events[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "event not found")
	}
	return &e, nil
}

type registrationRepo struct{ *store }

func (r registrationRepo) Create(_ context.Context, reg *models.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data.registrations {
		if existing.EventID == reg.EventID && existing.UserID == reg.UserID {
			return apperr.New(apperr.Conflict, "already registered for this event")
		}
	}
	reg.CreatedAt = time.Now()
	reg.UpdatedAt = reg.CreatedAt
	r.data.registrations[reg.ID] = *reg
	return nil
}

func (r registrationRepo) GetByID(_ context.Context, id string) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.data.registrations[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "registration not found")
	}
	return &reg, nil
}

func (r registrationRepo) CountActive(_ context.Context, eventID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, reg := range r.data.registrations {
		if reg.EventID == eventID && (reg.Status == models.RegistrationPending || reg.Status == models.RegistrationConfirmed) {
			n++
		}
	}
	return n, nil
}

type couponRepo struct{ *store }

func (r couponRepo) Create(_ context.Context, c *models.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data.coupons {
		if existing.Code == c.Code {
			return apperr.New(apperr.Conflict, "coupon already exists")
		}
	}
	r.data.coupons[c.ID] = *c
	return nil
}

func (r couponRepo) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.data.coupons {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "coupon not found")
}

func (r couponRepo) GetByID(_ context.Context, id string) (*models.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.data.coupons[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "coupon not found")
	}
	return &c, nil
}

func (r couponRepo) Deactivate(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.data.coupons {
		if c.Code == models.NormalizeCode(code) {
			c.IsActive = false
			r.data.coupons[id] = c
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "coupon not found")
}

func (r couponRepo) CountUserRedemptions(_ context.Context, couponID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return countRedemptions(r.data, couponID, userID), nil
}

func countRedemptions(s *state, couponID, userID string) int {
	n := 0
	for _, red := range s.redemptions {
		if red.couponID == couponID && red.userID == userID {
			n++
		}
	}
	return n
}

type paymentRepo struct{ *store }

func (r paymentRepo) Create(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Status == models.PaymentPending {
		if _, ok := findPending(r.data, p.RegistrationID); ok {
			return apperr.New(apperr.Conflict, "registration already has an open payment")
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.data.payments[p.PaymentID] = *p
	return nil
}

func (r paymentRepo) GetByID(_ context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data.payments[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "payment not found")
	}
	return &p, nil
}

func (r paymentRepo) GetPendingByRegistration(_ context.Context, registrationID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := findPending(r.data, registrationID)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "no pending payment")
	}
	return &p, nil
}

func findPending(s *state, registrationID string) (models.Payment, bool) {
	for _, p := range s.payments {
		if p.RegistrationID == registrationID && p.Status == models.PaymentPending {
			return p, true
		}
	}
	return models.Payment{}, false
}

func (r paymentRepo) ListByUser(_ context.Context, userID string, f models.PaymentFilter) ([]models.Payment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []models.Payment
	for _, p := range r.data.payments {
		if p.UserID != userID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.EventID != "" && p.EventID != f.EventID {
			continue
		}
		matched = append(matched, p)
	}
	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// txRunner applies fn to a private copy and publishes it only on success.
type txRunner struct{ *store }

func (r txRunner) RunInTx(_ context.Context, fn func(tx interfaces.SettlementTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.data.clone()
	if err := fn(&fakeTx{s: staged}); err != nil {
		return err
	}
	r.data = staged
	return nil
}

type fakeTx struct {
	s *state
}

func (t *fakeTx) GetPaymentForUpdate(_ context.Context, id string) (*models.Payment, error) {
	p, ok := t.s.payments[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "payment not found")
	}
	return &p, nil
}

func (t *fakeTx) GetRegistrationForUpdate(_ context.Context, id string) (*models.Registration, error) {
	reg, ok := t.s.registrations[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "registration not found")
	}
	return &reg, nil
}

func (t *fakeTx) TransitionPayment(_ context.Context, tr models.PaymentTransition) (int64, error) {
	if !models.CanTransition(tr.From, tr.To) {
		return 0, apperr.Newf(apperr.InvalidState, "payment cannot move from %s to %s", tr.From, tr.To)
	}
	p, ok := t.s.payments[tr.PaymentID]
	if !ok || p.Status != tr.From {
		return 0, nil
	}
	if tr.To == models.PaymentSuccess {
		for id, other := range t.s.payments {
			if id != p.PaymentID && other.RegistrationID == p.RegistrationID && other.Status == models.PaymentSuccess {
				return 0, apperr.New(apperr.Conflict, "registration already settled by another payment")
			}
		}
	}
	p.Status = tr.To
	if tr.TransactionID != "" {
		p.Gateway.TransactionID = tr.TransactionID
	}
	if tr.Signature != "" {
		p.Gateway.Signature = tr.Signature
	}
	if tr.PaymentDate != nil {
		p.PaymentDate = tr.PaymentDate
	}
	if tr.Refund != nil {
		p.Refund = tr.Refund
	}
	if tr.Invoice != nil {
		p.Invoice = tr.Invoice
	}
	t.s.payments[tr.PaymentID] = p
	return 1, nil
}

func (t *fakeTx) UpdateRegistration(_ context.Context, id string, u models.RegistrationUpdate) error {
	reg, ok := t.s.registrations[id]
	if !ok {
		return apperr.New(apperr.NotFound, "registration not found")
	}
	reg.Status = u.Status
	reg.PaymentStatus = u.PaymentStatus
	if u.AmountPaid != nil {
		reg.AmountPaid = *u.AmountPaid
	}
	if u.TransactionID != nil {
		reg.TransactionID = *u.TransactionID
	}
	t.s.registrations[id] = reg
	return nil
}

func (t *fakeTx) RedeemCoupon(_ context.Context, couponID, userID, paymentID string) error {
	c, ok := t.s.coupons[couponID]
	if !ok {
		return apperr.New(apperr.NotFound, "coupon not found")
	}
	if c.UsageLimit.Total != nil && c.UsageCount >= *c.UsageLimit.Total {
		return apperr.New(apperr.UsageLimitExceeded, "coupon usage limit reached")
	}
	if c.UsageLimit.PerUser != nil && countRedemptions(t.s, couponID, userID) >= *c.UsageLimit.PerUser {
		return apperr.New(apperr.UsageLimitExceeded, "per-user limit reached")
	}
	c.UsageCount++
	t.s.coupons[couponID] = c
	t.s.redemptions = append(t.s.redemptions, redemption{couponID, userID, paymentID})
	return nil
}

// --- Collaborators ---

const gatewaySecret = "test_secret"

type refundCall struct {
	transactionID string
	amount        decimal.Decimal
	reason        string
}

type fakeGateway struct {
	mu          sync.Mutex
	seq         int
	createErr   error
	refundErr   error
	refundCalls []refundCall
	ctxErrs     []error
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receiptID string) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	return &gateway.Order{
		ID:       fmt.Sprintf("order_%d", g.seq),
		Amount:   gateway.ToMinorUnits(amount),
		Currency: currency,
		Receipt:  receiptID,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.Sign(gatewaySecret, orderID, paymentID) == signature
}

func (g *fakeGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (*gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refundCalls = append(g.refundCalls, refundCall{transactionID, amount, reason})
	return &gateway.RefundResult{
		ID:        fmt.Sprintf("rfnd_%d", len(g.refundCalls)),
		PaymentID: transactionID,
		Amount:    amount,
		Status:    "processed",
	}, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	seq  int
	held map[string]string
	// onAcquire runs after a successful Acquire, before the caller proceeds.
	onAcquire func(key string)
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]string{}}
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("tok-%d", l.seq)
	l.held[key] = token
	hook := l.onAcquire
	l.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return token, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return fmt.Errorf("release %s: token mismatch", key)
	}
	delete(l.held, key)
	return nil
}

// hold takes key from outside the code under test.
func (l *fakeLocker) hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "external"
}

type fakePublisher struct {
	mu      sync.Mutex
	changes []models.PaymentStateChange
	err     error
}

func (p *fakePublisher) PublishStateChange(_ context.Context, change models.PaymentStateChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

func (p *fakePublisher) states(paymentID string) []models.PaymentStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.PaymentStatus
	for _, c := range p.changes {
		if c.PaymentID == paymentID {
			out = append(out, c.State)
		}
	}
	return out
}

// --- Fixture ---

var (
	fixedNow  = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	user1     = auth.Principal{ID: "user-1", Role: auth.RoleParticipant}
	user2     = auth.Principal{ID: "user-2", Role: auth.RoleParticipant}
	admin     = auth.Principal{ID: "admin-1", Role: auth.RoleAdmin}
	organizer = auth.Principal{ID: "org-1", Role: auth.RoleOrganizer}
)

type fixture struct {
	store         *store
	gw            *fakeGateway
	locker        *fakeLocker
	pub           *fakePublisher
	orchestrator  *service.Orchestrator
	refunds       *service.RefundProcessor
	registrations *service.RegistrationService
	coupons       *service.CouponService
}

func intPtr(v int) *int { return &v }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := newStore()
	st.data.events["evt-1"] = models.Event{
		ID:          "evt-1",
		Name:        "GopherCon",
		OrganizerID: "org-1",
		Amount:      decimal.NewFromInt(1000),
		Currency:    "INR",
		StartDate:   fixedNow.Add(7 * 24 * time.Hour),
		EndDate:     fixedNow.Add(8 * 24 * time.Hour),
	}
	st.data.registrations["reg-1"] = models.Registration{
		ID: "reg-1", EventID: "evt-1", UserID: "user-1",
		Status: models.RegistrationPending, PaymentStatus: models.RegPaymentPending,
	}
	st.data.coupons["cpn-flat"] = models.Coupon{
		ID: "cpn-flat", Code: "FLAT200", DiscountType: models.DiscountFixed,
		DiscountValue: decimal.NewFromInt(200), ValidFrom: fixedNow.Add(-time.Hour),
		ValidUntil: fixedNow.Add(30 * 24 * time.Hour), IsActive: true,
	}
	st.data.coupons["cpn-half"] = models.Coupon{
		ID: "cpn-half", Code: "HALF50", DiscountType: models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(50), MaximumDiscount: decPtr(300),
		ValidFrom: fixedNow.Add(-time.Hour), ValidUntil: fixedNow.Add(30 * 24 * time.Hour), IsActive: true,
	}

	gw := &fakeGateway{}
	locker := newFakeLocker()
	pub := &fakePublisher{}
	deps := service.Dependencies{
		Payments:      paymentRepo{st},
		Registrations: registrationRepo{st},
		Events:        eventRepo{st},
		Tx:            txRunner{st},
		Gateway:       gw,
		Locker:        locker,
		Publisher:     pub,
	}
	clock := func() time.Time { return fixedNow }
	evaluator := service.NewCouponEvaluator(couponRepo{st})
	pricing := service.NewPricingCalculator(decimal.RequireFromString("0.18"))

	return &fixture{
		store:  st,
		gw:     gw,
		locker: locker,
		pub:    pub,
		orchestrator: service.NewOrchestrator(deps, evaluator, pricing, service.OrchestratorConfig{
			Currency: "INR", LockTTL: 30 * time.Second,
		}).WithClock(clock),
		refunds:       service.NewRefundProcessor(deps, 30*time.Second).WithClock(clock),
		registrations: service.NewRegistrationService(registrationRepo{st}, eventRepo{st}).WithClock(clock),
		coupons:       service.NewCouponService(couponRepo{st}, eventRepo{st}, evaluator, pricing).WithClock(clock),
	}
}

func (f *fixture) addRegistration(id, userID string) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.data.registrations[id] = models.Registration{
		ID: id, EventID: "evt-1", UserID: userID,
		Status: models.RegistrationPending, PaymentStatus: models.RegPaymentPending,
	}
}

func (f *fixture) addCoupon(c models.Coupon) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.data.coupons[c.ID] = c
}

func (f *fixture) validVerify(res *service.InitiateResult, gatewayPaymentID string) service.VerifyRequest {
	return service.VerifyRequest{
		PaymentID:        res.PaymentID,
		GatewayPaymentID: gatewayPaymentID,
		GatewayOrderID:   res.Order.ID,
		Signature:        gateway.Sign(gatewaySecret, res.Order.ID, gatewayPaymentID),
	}
}
