package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/artifact"
)

// Backends holds everything Select and NewSettler may choose from. Nil
// clients mean not configured.
type Backends struct {
	Generator   *artifact.Generator
	Settings    SettingsSource
	Acquirer    *AcquirerClient
	MercadoPago *MercadoPago
	Timeout     time.Duration
	Logger      *slog.Logger
}

func (b Backends) remoteConfigured() bool {
	return b.Acquirer != nil || b.MercadoPago != nil
}

func (b Backends) instant() InstantProvider {
	if b.MercadoPago != nil {
		return b.MercadoPago
	}
	if b.Acquirer != nil {
		return NewAcquirerInstant(b.Acquirer)
	}
	return nil
}

// Select picks the process-wide backend. Auto mode prefers real providers,
// then operator settings, then the fallback.
func Select(ctx context.Context, mode internal.GatewayMode, b Backends) (Gateway, error) {
	switch mode {
	case internal.GatewayModeRemote:
		if !b.remoteConfigured() {
			return nil, fmt.Errorf("%w: remote gateway needs an acquirer or Mercado Pago", ErrNotConfigured)
		}
		return b.remote(), nil
	case internal.GatewayModeSimulator:
		return NewSimulator(b.Generator, b.Settings), nil
	case internal.GatewayModeFallback:
		return NewFallback(b.Generator), nil
	case internal.GatewayModeAuto, "":
		if b.remoteConfigured() {
			return b.remote(), nil
		}
		st, err := b.Settings.Settings(ctx)
		if err != nil {
			return nil, fmt.Errorf("load gateway settings: %w", err)
		}
		if st.Configured() {
			return NewSimulator(b.Generator, b.Settings), nil
		}
		return NewFallback(b.Generator), nil
	}
	return nil, fmt.Errorf("unknown gateway mode %q", mode)
}

func (b Backends) remote() *Remote {
	return NewRemote(b.Generator, RemoteConfig{
		Cards:   b.Acquirer,
		Instant: b.instant(),
		Timeout: b.Timeout,
		Logger:  b.Logger,
	})
}

// NewSettler builds the status checker. "simulated" forces chance-based
// settlement for every transaction; anything else routes by issuing
// gateway.
func NewSettler(settlement string, b Backends) Settler {
	simulated := NewSimulatedSettlement(b.Generator.Source())
	if settlement == "simulated" {
		return simulated
	}
	router := &SettlementRouter{Default: simulated, ByName: map[string]Settler{}}
	if b.Acquirer != nil && settlement != "mercadopago" {
		router.ByName["acquirer"] = NewAcquirerSettlement(b.Acquirer)
	}
	if b.MercadoPago != nil && settlement != "acquirer" {
		router.ByName["mercadopago"] = NewMercadoPagoSettlement(b.MercadoPago)
	}
	return router
}
