package methodconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/gateway"
	"gorm.io/datatypes"
)

type Service struct {
	repo     RepositoryAPI
	logger   *slog.Logger
	settings atomic.Pointer[gateway.Settings]
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// Get returns the stored configuration of one method.
func (s *Service) Get(ctx context.Context, method payment.Method) (*payment.MethodConfig, error) {
	if !method.Valid() {
		return nil, internal.ErrMethodNotFound
	}
	return s.repo.GetByMethod(ctx, method)
}

func (s *Service) ListActive(ctx context.Context) ([]MethodView, error) {
	cfgs, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list payment methods", "error", err)
		return nil, err
	}
	views := make([]MethodView, 0, len(cfgs))
	for _, c := range cfgs {
		if c.IsActive {
			views = append(views, ToView(c))
		}
	}
	return views, nil
}

func (s *Service) ListAll(ctx context.Context) ([]AdminMethodView, error) {
	cfgs, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to list payment methods", "error", err)
		return nil, err
	}
	views := make([]AdminMethodView, 0, len(cfgs))
	for _, c := range cfgs {
		views = append(views, ToAdminView(c))
	}
	return views, nil
}

// Update applies an admin change and refreshes the gateway settings so the
// next payment sees it.
func (s *Service) Update(ctx context.Context, method payment.Method, req UpdateRequest) (*AdminMethodView, error) {
	cfg, err := s.Get(ctx, method)
	if err != nil {
		return nil, err
	}

	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	if req.ProcessingFee != nil {
		cfg.ProcessingFee = *req.ProcessingFee
	}
	if req.MinAmount != nil {
		cfg.MinAmount = *req.MinAmount
	}
	if req.MaxAmount != nil {
		cfg.MaxAmount = *req.MaxAmount
	}
	if err := checkBounds(cfg.ProcessingFee, cfg.MinAmount, cfg.MaxAmount); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidBounds)
	}
	if req.Config != nil {
		raw, err := json.Marshal(req.Config)
		if err != nil {
			return nil, internal.NewValidationError("config is not valid JSON", internal.ErrCodeValidationFailed)
		}
		if err := checkConfig(method, raw); err != nil {
			return nil, internal.NewValidationFieldError("config", err.Error(), internal.ErrCodeValidationFailed)
		}
		cfg.ConfigData = datatypes.JSON(raw)
	}

	if err := s.repo.Update(ctx, cfg); err != nil {
		s.logger.Error("failed to update payment method", "method", method, "error", err)
		return nil, err
	}
	s.logger.Info("payment method updated", "method", method, "is_active", cfg.IsActive)

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("failed to refresh gateway settings", "error", err)
	}
	view := ToAdminView(cfg)
	return &view, nil
}

// Seed writes definitions. Existing methods are kept unless clear is set,
// in which case every method is replaced.
func (s *Service) Seed(ctx context.Context, defs []Definition, clear bool) (int, error) {
	if clear {
		if err := s.repo.DeleteAll(ctx); err != nil {
			return 0, fmt.Errorf("clear payment methods: %w", err)
		}
	}

	created := 0
	for _, d := range defs {
		model, err := d.ToDataModel()
		if err != nil {
			return created, err
		}
		if err := checkConfig(model.MethodName, model.ConfigData); err != nil {
			return created, fmt.Errorf("%s config: %w", model.MethodName, err)
		}

		_, err = s.repo.GetByMethod(ctx, model.MethodName)
		if err == nil {
			s.logger.Info("payment method already configured", "method", model.MethodName)
			continue
		}
		if !errors.Is(err, internal.ErrMethodNotFound) {
			return created, err
		}
		if err := s.repo.Create(ctx, model); err != nil {
			return created, fmt.Errorf("create %s: %w", model.MethodName, err)
		}
		created++
	}

	if err := s.Refresh(ctx); err != nil {
		return created, err
	}
	return created, nil
}

// Settings hands the gateway the last loaded snapshot, loading it on first
// use.
func (s *Service) Settings(ctx context.Context) (gateway.Settings, error) {
	if st := s.settings.Load(); st != nil {
		return *st, nil
	}
	if err := s.Refresh(ctx); err != nil {
		return gateway.Settings{}, err
	}
	return *s.settings.Load(), nil
}

// Refresh rebuilds the gateway settings from the stored method configs.
func (s *Service) Refresh(ctx context.Context) error {
	cfgs, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load payment methods: %w", err)
	}
	st, err := BuildSettings(cfgs)
	if err != nil {
		return err
	}
	s.settings.Store(&st)
	return nil
}

// BuildSettings maps stored configs onto gateway settings. Methods that are
// missing leave their part empty, which the simulator treats as not
// configured.
func BuildSettings(cfgs []*payment.MethodConfig) (gateway.Settings, error) {
	var st gateway.Settings
	st.Card = gateway.DefaultCardSettings()

	for _, c := range cfgs {
		switch c.MethodName {
		case payment.MethodPIX:
			if err := decodeConfig(c.ConfigData, &st.Pix); err != nil {
				return st, fmt.Errorf("pix config: %w", err)
			}
			if st.Pix.Recipient == "" {
				st.Pix.Recipient = "E-Store"
			}
		case payment.MethodBoleto:
			if err := decodeConfig(c.ConfigData, &st.Boleto); err != nil {
				return st, fmt.Errorf("boleto config: %w", err)
			}
		case payment.MethodCreditCard:
			card := gateway.DefaultCardSettings()
			if err := decodeConfig(c.ConfigData, &card); err != nil {
				return st, fmt.Errorf("credit card config: %w", err)
			}
			card.FeePercent = c.ProcessingFee
			st.Card = card
		}
	}
	return st, nil
}

func decodeConfig(raw datatypes.JSON, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func checkConfig(method payment.Method, raw []byte) error {
	switch method {
	case payment.MethodPIX:
		var p gateway.PixSettings
		return decodeConfig(raw, &p)
	case payment.MethodBoleto:
		var b gateway.BoletoSettings
		if err := decodeConfig(raw, &b); err != nil {
			return err
		}
		if b.DueDays < 0 {
			return fmt.Errorf("due_days must not be negative")
		}
	case payment.MethodCreditCard, payment.MethodDebitCard:
		var c gateway.CardSettings
		if err := decodeConfig(raw, &c); err != nil {
			return err
		}
		if c.FixedFee.IsNegative() {
			return fmt.Errorf("fixed_fee must not be negative")
		}
	}
	return nil
}
