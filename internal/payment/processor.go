package payment

import (
	"context"
	"fmt"

	"github.com/frahmantamala/estore-payments/internal/core/common/validation"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/gateway"
)

// dispatch sends a validated request to the method's gateway operation.
func dispatch(ctx context.Context, gw gateway.Gateway, req ProcessRequest) (*gateway.Result, error) {
	payer := gateway.Payer{}
	if req.Payer != nil {
		payer = gateway.Payer{
			Name:  req.Payer.Name,
			Email: req.Payer.Email,
			CPF:   validation.Digits(req.Payer.CPF),
		}
	}

	switch req.Method {
	case payment.MethodPIX:
		return gw.ProcessPIX(ctx, gateway.PixRequest{
			OrderID:     req.OrderID,
			Amount:      req.Amount,
			Description: req.Description,
			Payer:       payer,
		})
	case payment.MethodBoleto:
		return gw.ProcessBoleto(ctx, gateway.BoletoRequest{
			OrderID:     req.OrderID,
			Amount:      req.Amount,
			DueDays:     req.DueDays,
			Description: req.Description,
			Payer:       payer,
		})
	case payment.MethodCreditCard, payment.MethodDebitCard:
		card := gateway.CardRequest{
			OrderID:      req.OrderID,
			Amount:       req.Amount,
			Number:       validation.Digits(req.Card.Number),
			HolderName:   req.Card.HolderName,
			Expiry:       req.Card.Expiry,
			CVV:          req.Card.CVV,
			Installments: req.Installments,
			Description:  req.Description,
			Payer:        payer,
		}
		if req.Method == payment.MethodDebitCard {
			return gw.ProcessDebitCard(ctx, card)
		}
		return gw.ProcessCreditCard(ctx, card)
	}
	return nil, fmt.Errorf("unsupported payment method %q", req.Method)
}
