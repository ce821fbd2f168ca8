// Package acquirer is a local stand-in for the card/PIX/boleto acquirer.
// Cards are decided on the spot; PIX and boleto charges stay pending until a
// worker settles them and calls the merchant back.
package acquirer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/estore-payments/internal/artifact"
	"github.com/frahmantamala/estore-payments/internal/core/common/validation"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/gateway"
)

const (
	creditApprovalRate = 0.85
	debitApprovalRate  = 0.92
	settleApprovalRate = 0.9
)

var (
	ErrChargeNotFound = errors.New("charge not found")
	ErrQueueFull      = errors.New("settlement queue full, please try again later")
)

// InvalidChargeError wraps a rejected charge request.
type InvalidChargeError struct {
	Reason string
}

func (e *InvalidChargeError) Error() string { return e.Reason }

type Config struct {
	MaxWorkers     int
	JobQueueSize   int
	SettleDelayMin time.Duration
	SettleDelayMax time.Duration
}

type Option func(*Sandbox)

func WithSource(src artifact.Source) Option {
	return func(s *Sandbox) { s.src = src }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sandbox) { s.now = now }
}

// WithNotifier enables callbacks. Without one the sandbox only answers
// status polls.
func WithNotifier(n Notifier) Option {
	return func(s *Sandbox) { s.notifier = n }
}

type Sandbox struct {
	cfg      Config
	src      artifact.Source
	now      func() time.Time
	gen      *artifact.Generator
	notifier Notifier
	logger   *slog.Logger
	pool     *pool

	mu      sync.RWMutex
	charges map[string]*gateway.Charge
}

func NewSandbox(cfg Config, logger *slog.Logger, opts ...Option) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sandbox{
		cfg:     cfg,
		src:     artifact.NewSource(),
		now:     time.Now,
		logger:  logger,
		charges: make(map[string]*gateway.Charge),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.gen = artifact.NewGenerator(s.src, artifact.WithClock(s.now))
	s.pool = newPool(cfg.MaxWorkers, cfg.JobQueueSize, logger)
	s.pool.start(s.settle)
	return s
}

func (s *Sandbox) Shutdown() {
	s.logger.Info("shutting down acquirer sandbox")
	s.pool.shutdown()
	s.logger.Info("acquirer sandbox shutdown complete")
}

func validateCharge(req gateway.ChargeRequest, now time.Time) error {
	v := validation.NewValidator()
	v.Field("reference", req.Reference).Required().MaxLength(64)
	v.Field("method", req.Method).Required().OneOf(
		string(payment.MethodPIX),
		string(payment.MethodCreditCard),
		string(payment.MethodDebitCard),
		string(payment.MethodBoleto),
	)
	v.Field("amount", req.Amount).Required().Positive()
	if payment.Method(req.Method).IsCard() {
		card := req.Card
		if card == nil {
			card = &gateway.ChargeCard{}
		}
		v.Field("card.number", card.Number).Required().CardNumber()
		v.Field("card.expiry", card.Expiry).Required().Expiry(now)
		v.Field("card.cvv", card.CVV).Required().CVV()
	}
	if appErr := v.Validate(); appErr != nil {
		return &InvalidChargeError{Reason: appErr.Error()}
	}
	return nil
}

// CreateCharge registers a charge. Card charges come back approved or
// declined; PIX and boleto come back pending with their artifacts.
func (s *Sandbox) CreateCharge(_ context.Context, req gateway.ChargeRequest) (*gateway.Charge, error) {
	now := s.now()
	if err := validateCharge(req, now); err != nil {
		return nil, err
	}

	charge := &gateway.Charge{
		ID:        "ch_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Reference: req.Reference,
		Method:    req.Method,
		Amount:    req.Amount.Round(2),
		Fee:       decimal.Zero,
		CreatedAt: now,
	}

	switch payment.Method(req.Method) {
	case payment.MethodCreditCard, payment.MethodDebitCard:
		s.decideCard(charge)
	case payment.MethodPIX:
		expires := now.Add(artifact.PixExpiry)
		if req.DueDate != nil && req.DueDate.After(now) {
			expires = *req.DueDate
		}
		key := s.gen.PixKey()
		charge.Status = gateway.ChargePending
		charge.Pix = &gateway.PixCharge{
			Key:       key,
			QRPayload: pixPayload(key, charge.Amount, charge.ID),
			ExpiresAt: expires,
		}
	case payment.MethodBoleto:
		due := s.gen.BoletoDueDate(artifact.DefaultBoletoDays)
		if req.DueDate != nil && req.DueDate.After(now) {
			due = *req.DueDate
		}
		charge.Status = gateway.ChargePending
		charge.Boleto = &gateway.BoletoCharge{
			Number:  s.gen.FallbackBoletoNumber(),
			Barcode: artifact.BoletoBarcode(artifact.FallbackBoletoBank(), due, charge.Amount),
			DueDate: due,
		}
	}

	s.mu.Lock()
	s.charges[charge.ID] = charge
	s.mu.Unlock()

	if charge.Status == gateway.ChargePending {
		if !s.pool.enqueue(SettleJob{ChargeID: charge.ID, Delay: s.delay()}) {
			s.mu.Lock()
			delete(s.charges, charge.ID)
			s.mu.Unlock()
			s.logger.Warn("settlement queue full, rejecting charge",
				"reference", req.Reference,
				"queue_capacity", cap(s.pool.jobQueue))
			return nil, ErrQueueFull
		}
	}

	s.mu.RLock()
	out := *charge
	s.mu.RUnlock()

	s.logger.Info("charge created",
		"charge_id", out.ID,
		"reference", out.Reference,
		"method", out.Method,
		"status", out.Status)
	return &out, nil
}

func (s *Sandbox) decideCard(charge *gateway.Charge) {
	debit := charge.Method == string(payment.MethodDebitCard)
	rate := creditApprovalRate
	if debit {
		rate = debitApprovalRate
	}

	cs := gateway.DefaultCardSettings()
	if s.src.Float64() < rate {
		charge.Status = gateway.ChargeApproved
		charge.AuthorizationCode = s.gen.AuthorizationCode()
		charge.ResponseCode = "00"
		charge.ResponseMessage = "Approved"
		if debit {
			charge.Fee = artifact.DebitProcessingFee(charge.Amount, cs.FeePercent, cs.FixedFee)
		} else {
			charge.Fee = artifact.ProcessingFee(charge.Amount, cs.FeePercent, cs.FixedFee)
		}
		return
	}

	charge.Status = gateway.ChargeDeclined
	if debit {
		charge.ResponseCode = "51"
		charge.ResponseMessage = "Insufficient funds"
	} else {
		charge.ResponseCode = "05"
		charge.ResponseMessage = "Do not honor"
	}
}

func (s *Sandbox) GetCharge(_ context.Context, id string) (*gateway.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	charge, ok := s.charges[id]
	if !ok {
		return nil, ErrChargeNotFound
	}
	out := *charge
	return &out, nil
}

func (s *Sandbox) delay() time.Duration {
	lo, hi := s.cfg.SettleDelayMin, s.cfg.SettleDelayMax
	if lo < 0 {
		lo = 0
	}
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.src.IntN(int(hi-lo)))
}

// settle runs on a pool worker.
func (s *Sandbox) settle(ctx context.Context, job SettleJob) {
	if job.Delay > 0 {
		timer := time.NewTimer(job.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("settlement cancelled", "charge_id", job.ChargeID)
			return
		}
	}

	approved := s.src.Float64() < settleApprovalRate

	s.mu.Lock()
	charge, ok := s.charges[job.ChargeID]
	if !ok || charge.Status != gateway.ChargePending {
		s.mu.Unlock()
		return
	}
	if approved {
		charge.Status = gateway.ChargeApproved
		charge.ResponseMessage = "Pagamento recebido"
	} else {
		charge.Status = gateway.ChargeExpired
		charge.ResponseMessage = "Pagamento não recebido no prazo"
	}
	cb := Callback{
		TransactionID:    charge.Reference,
		Status:           charge.Status,
		GatewayReference: charge.ID,
		Message:          charge.ResponseMessage,
	}
	s.mu.Unlock()

	s.logger.Info("charge settled",
		"charge_id", job.ChargeID,
		"reference", cb.TransactionID,
		"status", cb.Status,
		"delay", job.Delay)

	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, cb); err != nil {
		s.logger.Error("settlement callback failed", "error", err, "charge_id", job.ChargeID)
		return
	}
	s.logger.Info("settlement callback delivered", "charge_id", job.ChargeID)
}

// pixPayload is a trimmed copy-and-paste code: enough for a QR image, not a
// valid EMV BR Code.
func pixPayload(key string, amount decimal.Decimal, txid string) string {
	return fmt.Sprintf("000201|pix|%s|BRL%s|%s", key, amount.StringFixed(2), txid)
}
