package gateway

import (
	"context"
	"errors"

	"github.com/frahmantamala/estore-payments/internal/artifact"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
)

const (
	pixSettleRate    = 0.70
	boletoSettleRate = 0.60
)

// Settlement is what a status check learned about a pending transaction.
type Settlement struct {
	Status  payment.Status
	Message string
}

// Settler asks the backend that issued a transaction whether it has been
// paid.
type Settler interface {
	Settle(ctx context.Context, tx *payment.Transaction) (Settlement, error)
}

// SimulatedSettlement decides PIX and boleto outcomes by chance. Cards
// already carry their final status.
type SimulatedSettlement struct {
	src artifact.Source
}

func NewSimulatedSettlement(src artifact.Source) *SimulatedSettlement {
	return &SimulatedSettlement{src: src}
}

func (s *SimulatedSettlement) Settle(_ context.Context, tx *payment.Transaction) (Settlement, error) {
	switch tx.PaymentMethod {
	case payment.MethodPIX:
		if s.src.Float64() < pixSettleRate {
			return Settlement{Status: payment.StatusApproved, Message: "Pagamento PIX confirmado"}, nil
		}
		return Settlement{Status: payment.StatusPending, Message: "Aguardando pagamento PIX"}, nil
	case payment.MethodBoleto:
		if s.src.Float64() < boletoSettleRate {
			return Settlement{Status: payment.StatusApproved, Message: "Boleto pago confirmado"}, nil
		}
		return Settlement{Status: payment.StatusPending, Message: "Aguardando pagamento do boleto"}, nil
	}

	if tx.Status == payment.StatusApproved {
		return Settlement{Status: payment.StatusApproved, Message: "Pagamento com cartão aprovado"}, nil
	}
	return Settlement{Status: payment.StatusFailed, Message: "Pagamento com cartão recusado"}, nil
}

// errNoReference is returned for transactions a provider never acknowledged.
var errNoReference = errors.New("transaction has no gateway reference")

type AcquirerSettlement struct {
	client *AcquirerClient
}

func NewAcquirerSettlement(client *AcquirerClient) *AcquirerSettlement {
	return &AcquirerSettlement{client: client}
}

func (a *AcquirerSettlement) Settle(ctx context.Context, tx *payment.Transaction) (Settlement, error) {
	if tx.GatewayReference == nil || *tx.GatewayReference == "" {
		return Settlement{}, errNoReference
	}
	ctx, span := tracer.Start(ctx, "gateway.acquirer.status")
	defer span.End()

	charge, err := a.client.GetCharge(ctx, *tx.GatewayReference)
	if err != nil {
		span.RecordError(err)
		return Settlement{}, err
	}
	return MapChargeStatus(charge.Status), nil
}

// MapChargeStatus collapses an acquirer charge status into ours.
func MapChargeStatus(status string) Settlement {
	switch status {
	case ChargeApproved:
		return Settlement{Status: payment.StatusApproved, Message: "Pagamento confirmado pelo adquirente"}
	case ChargeDeclined, ChargeFailed, ChargeExpired, ChargeCancelled:
		return Settlement{Status: payment.StatusFailed, Message: "Pagamento não confirmado pelo adquirente"}
	}
	return Settlement{Status: payment.StatusPending, Message: "Aguardando confirmação do adquirente"}
}

type MercadoPagoSettlement struct {
	mp *MercadoPago
}

func NewMercadoPagoSettlement(mp *MercadoPago) *MercadoPagoSettlement {
	return &MercadoPagoSettlement{mp: mp}
}

func (m *MercadoPagoSettlement) Settle(ctx context.Context, tx *payment.Transaction) (Settlement, error) {
	if tx.GatewayReference == nil || *tx.GatewayReference == "" {
		return Settlement{}, errNoReference
	}
	ctx, span := tracer.Start(ctx, "gateway.mercadopago.status")
	defer span.End()

	status, err := m.mp.Status(ctx, *tx.GatewayReference)
	if err != nil {
		span.RecordError(err)
		return Settlement{}, err
	}
	return MapMercadoPagoStatus(status), nil
}

func MapMercadoPagoStatus(status string) Settlement {
	switch status {
	case mpApproved:
		return Settlement{Status: payment.StatusApproved, Message: "Pagamento confirmado pelo Mercado Pago"}
	case mpRejected, mpCancelled, mpRefunded, mpChargedBack:
		return Settlement{Status: payment.StatusFailed, Message: "Pagamento não confirmado pelo Mercado Pago"}
	}
	return Settlement{Status: payment.StatusPending, Message: "Aguardando confirmação do Mercado Pago"}
}

// SettlementRouter picks a settler by the gateway that issued the
// transaction, defaulting to Default.
type SettlementRouter struct {
	Default Settler
	ByName  map[string]Settler
}

func (r *SettlementRouter) Settle(ctx context.Context, tx *payment.Transaction) (Settlement, error) {
	if s, ok := r.ByName[tx.GatewayName]; ok {
		return s.Settle(ctx, tx)
	}
	return r.Default.Settle(ctx, tx)
}
