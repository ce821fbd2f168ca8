package gateway

import (
	"github.com/frahmantamala/estore-payments/internal/artifact"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/shopspring/decimal"
)

const (
	creditApprovalRate = 0.85
	debitApprovalRate  = 0.92
)

type cardPolicy struct {
	debit          bool
	approvalRate   float64
	declineCode    string
	declineReason  string
	declineMessage string
}

var (
	creditPolicy = cardPolicy{
		approvalRate:   creditApprovalRate,
		declineCode:    "05",
		declineReason:  "Do not honor",
		declineMessage: "Pagamento recusado pelo banco",
	}
	debitPolicy = cardPolicy{
		debit:          true,
		approvalRate:   debitApprovalRate,
		declineCode:    "51",
		declineReason:  "Insufficient funds",
		declineMessage: "Saldo insuficiente ou cartão recusado",
	}
)

func (p cardPolicy) method() payment.Method {
	if p.debit {
		return payment.MethodDebitCard
	}
	return payment.MethodCreditCard
}

// installments: debit is always paid at once.
func (p cardPolicy) installments(requested int) int {
	if p.debit || requested < 1 {
		return 1
	}
	return requested
}

func (p cardPolicy) fee(amount decimal.Decimal, cs CardSettings) decimal.Decimal {
	if p.debit {
		return artifact.DebitProcessingFee(amount, cs.FeePercent, cs.FixedFee)
	}
	return artifact.ProcessingFee(amount, cs.FeePercent, cs.FixedFee)
}

// simulateCard rolls the approval and builds the result for both simulated
// backends.
func simulateCard(gen *artifact.Generator, gatewayName string, req CardRequest, p cardPolicy, cs CardSettings) *Result {
	method := p.method()
	details := &CardDetails{
		Debit:        p.debit,
		LastFour:     artifact.LastFour(req.Number),
		Brand:        artifact.DetectCardBrand(req.Number),
		Installments: p.installments(req.Installments),
	}
	res := &Result{
		TransactionID: gen.TransactionID(method),
		Method:        method,
		GatewayName:   gatewayName,
		Details:       details,
	}

	if gen.Source().Float64() < p.approvalRate {
		details.AuthorizationCode = gen.AuthorizationCode()
		details.ProcessingFee = p.fee(req.Amount, cs)
		details.ProcessorCode = "00"
		details.ProcessorMessage = "Approved"

		res.Success = true
		res.Status = payment.StatusApproved
		res.Message = "Pagamento aprovado com sucesso"
		res.GatewayResponse = map[string]any{
			"merchant_id":        cs.MerchantID,
			"authorization_code": details.AuthorizationCode,
			"processor_response": details.ProcessorCode,
			"processor_message":  details.ProcessorMessage,
			"processing_fee":     details.ProcessingFee.StringFixed(2),
			"installments":       details.Installments,
			"card_type":          cardType(p.debit),
		}
		return res
	}

	details.ProcessorCode = p.declineCode
	details.ProcessorMessage = p.declineReason

	res.Status = payment.StatusFailed
	res.Message = p.declineMessage
	res.Failure = &Failure{Category: FailureDeclined, Code: p.declineCode, Message: p.declineMessage}
	res.GatewayResponse = map[string]any{
		"merchant_id":        cs.MerchantID,
		"processor_response": p.declineCode,
		"processor_message":  p.declineReason,
		"card_type":          cardType(p.debit),
	}
	return res
}

func cardType(debit bool) string {
	if debit {
		return "debit"
	}
	return "credit"
}
