package gateway_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/estore-payments/internal"
	"github.com/frahmantamala/estore-payments/internal/artifact"
	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/gateway"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func generatorWithRoll(roll float64) *artifact.Generator {
	return artifact.NewGenerator(artifact.FixedSource{Roll: roll}, artifact.WithClock(func() time.Time { return fixedNow }))
}

func cardRequest(installments int) gateway.CardRequest {
	return gateway.CardRequest{
		OrderID:      42,
		Amount:       decimal.RequireFromString("200.00"),
		Number:       "4111111111111111",
		HolderName:   "Maria Silva",
		Expiry:       "12/30",
		CVV:          "123",
		Installments: installments,
	}
}

var _ = Describe("Fallback", func() {
	ctx := context.Background()

	It("approves credit below the approval rate", func() {
		res, err := gateway.NewFallback(generatorWithRoll(0.5)).ProcessCreditCard(ctx, cardRequest(3))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Success).To(BeTrue())
		Expect(res.Status).To(Equal(payment.StatusApproved))
		Expect(res.TransactionID).To(HavePrefix("CC20260310120000"))

		card, ok := res.Card()
		Expect(ok).To(BeTrue())
		Expect(card.LastFour).To(Equal("1111"))
		Expect(card.Brand).To(Equal("Visa"))
		Expect(card.Installments).To(Equal(3))
		Expect(card.AuthorizationCode).To(HavePrefix("AUTH"))
		Expect(card.ProcessingFee.StringFixed(2)).To(Equal("6.48"))
		Expect(card.ProcessorCode).To(Equal("00"))
	})

	It("declines credit above the approval rate", func() {
		res, err := gateway.NewFallback(generatorWithRoll(0.9)).ProcessCreditCard(ctx, cardRequest(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Success).To(BeFalse())
		Expect(res.Status).To(Equal(payment.StatusFailed))
		Expect(res.Failure.Category).To(Equal(gateway.FailureDeclined))
		Expect(res.Failure.Code).To(Equal("05"))
		Expect(res.Message).To(Equal("Pagamento recusado pelo banco"))
	})

	It("uses the more lenient debit approval rate", func() {
		res, err := gateway.NewFallback(generatorWithRoll(0.9)).ProcessDebitCard(ctx, cardRequest(6))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.TransactionID).To(HavePrefix("DC"))

		card, _ := res.Card()
		Expect(card.Debit).To(BeTrue())
		Expect(card.Installments).To(Equal(1))
		Expect(card.ProcessingFee.StringFixed(2)).To(Equal("3.24"))
	})

	It("declines debit with insufficient funds", func() {
		res, err := gateway.NewFallback(generatorWithRoll(0.95)).ProcessDebitCard(ctx, cardRequest(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Failure.Code).To(Equal("51"))
		Expect(res.Message).To(Equal("Saldo insuficiente ou cartão recusado"))
	})

	It("issues a PIX charge with a random key", func() {
		res, err := gateway.NewFallback(generatorWithRoll(0.5)).ProcessPIX(ctx, gateway.PixRequest{Amount: decimal.RequireFromString("150.00")})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Status).To(Equal(payment.StatusPending))

		pix, ok := res.Pix()
		Expect(ok).To(BeTrue())
		Expect(pix.PixKey).To(HaveLen(32))
		Expect(pix.QRCode).To(HavePrefix("data:image/png;base64,"))
		Expect(pix.ExpiresAt).To(Equal(fixedNow.Add(30 * time.Minute)))
	})

	It("issues a generic boleto due in three days", func() {
		res, err := gateway.NewFallback(generatorWithRoll(0.5)).ProcessBoleto(ctx, gateway.BoletoRequest{Amount: decimal.RequireFromString("99.90"), DueDays: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())

		bol, ok := res.Boleto()
		Expect(ok).To(BeTrue())
		Expect(bol.Number).To(HavePrefix("34191."))
		Expect(bol.DueDate).To(Equal(fixedNow.AddDate(0, 0, 3)))
		Expect(bol.Barcode).To(Equal("3419130320260000009990" + "00"))
	})
})

var _ = Describe("Simulator", func() {
	ctx := context.Background()

	It("refuses PIX without a configured key", func() {
		sim := gateway.NewSimulator(generatorWithRoll(0.5), gateway.StaticSettings(gateway.DefaultSettings()))
		res, err := sim.ProcessPIX(ctx, gateway.PixRequest{Amount: decimal.NewFromInt(10)})
		Expect(res).To(BeNil())
		Expect(errors.Is(err, gateway.ErrNotConfigured)).To(BeTrue())
		Expect(err.Error()).To(Equal("Chave PIX não configurada. Configure no painel administrativo."))
	})

	It("refuses boleto without a bank", func() {
		settings := gateway.DefaultSettings()
		settings.Boleto.Bank = ""
		sim := gateway.NewSimulator(generatorWithRoll(0.5), gateway.StaticSettings(settings))
		_, err := sim.ProcessBoleto(ctx, gateway.BoletoRequest{Amount: decimal.NewFromInt(10)})
		Expect(errors.Is(err, gateway.ErrNotConfigured)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("Configuração bancária não encontrada"))
	})

	It("issues PIX with the operator key", func() {
		settings := gateway.DefaultSettings()
		settings.Pix.Key = "loja@example.com"
		sim := gateway.NewSimulator(generatorWithRoll(0.5), gateway.StaticSettings(settings))
		res, err := sim.ProcessPIX(ctx, gateway.PixRequest{Amount: decimal.NewFromInt(10)})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Message).To(Equal("PIX gerado para E-Store"))

		pix, _ := res.Pix()
		Expect(pix.PixKey).To(Equal("loja@example.com"))
		Expect(pix.Recipient).To(Equal("E-Store"))
	})

	It("issues a boleto for the configured bank account", func() {
		sim := gateway.NewSimulator(generatorWithRoll(0.5), gateway.StaticSettings(gateway.DefaultSettings()))
		res, err := sim.ProcessBoleto(ctx, gateway.BoletoRequest{Amount: decimal.NewFromInt(10), DueDays: 5})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Message).To(Equal("Boleto gerado - Banco 341"))

		bol, _ := res.Boleto()
		Expect(bol.Number).To(MatchRegexp(`^341\.1234\.00123456\.\d{5}$`))
		Expect(bol.DueDate).To(Equal(fixedNow.AddDate(0, 0, 5)))
		Expect(bol.Cedente).To(Equal("E-Store LTDA"))
	})

	It("charges the configured card fee", func() {
		settings := gateway.DefaultSettings()
		settings.Card.FeePercent = decimal.NewFromInt(2)
		settings.Card.FixedFee = decimal.Zero
		sim := gateway.NewSimulator(generatorWithRoll(0.1), gateway.StaticSettings(settings))
		res, err := sim.ProcessCreditCard(ctx, cardRequest(1))
		Expect(err).NotTo(HaveOccurred())

		card, _ := res.Card()
		Expect(card.ProcessingFee.StringFixed(2)).To(Equal("4.00"))
		Expect(res.GatewayResponse).To(HaveKeyWithValue("merchant_id", "MERCHANT123"))
	})
})

var _ = Describe("Select", func() {
	ctx := context.Background()

	backends := func(settings gateway.Settings) gateway.Backends {
		return gateway.Backends{Generator: generatorWithRoll(0.5), Settings: gateway.StaticSettings(settings)}
	}

	It("picks the simulator when the operator configured a bank", func() {
		gw, err := gateway.Select(ctx, internal.GatewayModeAuto, backends(gateway.DefaultSettings()))
		Expect(err).NotTo(HaveOccurred())
		Expect(gw.Name()).To(Equal("simulator"))
	})

	It("picks the fallback when nothing is configured", func() {
		gw, err := gateway.Select(ctx, internal.GatewayModeAuto, backends(gateway.Settings{}))
		Expect(err).NotTo(HaveOccurred())
		Expect(gw.Name()).To(Equal("fallback"))
	})

	It("picks remote when an acquirer is configured", func() {
		b := backends(gateway.Settings{})
		b.Acquirer = gateway.NewAcquirerClient(gateway.AcquirerConfig{BaseURL: "http://127.0.0.1:1"})
		gw, err := gateway.Select(ctx, internal.GatewayModeAuto, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(gw.Name()).To(Equal("remote"))
	})

	It("rejects remote mode without providers", func() {
		_, err := gateway.Select(ctx, internal.GatewayModeRemote, backends(gateway.DefaultSettings()))
		Expect(errors.Is(err, gateway.ErrNotConfigured)).To(BeTrue())
	})

	It("honours an explicit mode", func() {
		gw, err := gateway.Select(ctx, internal.GatewayModeFallback, backends(gateway.DefaultSettings()))
		Expect(err).NotTo(HaveOccurred())
		Expect(gw.Name()).To(Equal("fallback"))
	})
})

var _ = Describe("SimulatedSettlement", func() {
	ctx := context.Background()

	tx := func(m payment.Method, s payment.Status) *payment.Transaction {
		return &payment.Transaction{PaymentMethod: m, Status: s}
	}

	DescribeTable("settles by chance",
		func(roll float64, m payment.Method, status payment.Status, message string) {
			s := gateway.NewSimulatedSettlement(artifact.FixedSource{Roll: roll})
			got, err := s.Settle(ctx, tx(m, payment.StatusPending))
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(status))
			Expect(got.Message).To(Equal(message))
		},
		Entry("pix paid", 0.69, payment.MethodPIX, payment.StatusApproved, "Pagamento PIX confirmado"),
		Entry("pix waiting", 0.70, payment.MethodPIX, payment.StatusPending, "Aguardando pagamento PIX"),
		Entry("boleto paid", 0.59, payment.MethodBoleto, payment.StatusApproved, "Boleto pago confirmado"),
		Entry("boleto waiting", 0.65, payment.MethodBoleto, payment.StatusPending, "Aguardando pagamento do boleto"),
	)

	It("reports the stored card outcome", func() {
		s := gateway.NewSimulatedSettlement(artifact.FixedSource{Roll: 0.99})
		got, _ := s.Settle(ctx, tx(payment.MethodCreditCard, payment.StatusApproved))
		Expect(got.Status).To(Equal(payment.StatusApproved))
		Expect(got.Message).To(Equal("Pagamento com cartão aprovado"))

		got, _ = s.Settle(ctx, tx(payment.MethodDebitCard, payment.StatusFailed))
		Expect(got.Status).To(Equal(payment.StatusFailed))
	})

	It("routes by issuing gateway", func() {
		ref := "ch_1"
		router := &gateway.SettlementRouter{
			Default: gateway.NewSimulatedSettlement(artifact.FixedSource{Roll: 0.99}),
			ByName: map[string]gateway.Settler{
				"acquirer": stubSettler{status: payment.StatusApproved},
			},
		}
		got, err := router.Settle(ctx, &payment.Transaction{PaymentMethod: payment.MethodPIX, GatewayName: "acquirer", GatewayReference: &ref})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(payment.StatusApproved))

		got, err = router.Settle(ctx, &payment.Transaction{PaymentMethod: payment.MethodPIX, GatewayName: "simulator"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(payment.StatusPending))
	})

	DescribeTable("maps provider statuses",
		func(mp string, want payment.Status) {
			Expect(gateway.MapMercadoPagoStatus(mp).Status).To(Equal(want))
		},
		Entry("approved", "approved", payment.StatusApproved),
		Entry("rejected", "rejected", payment.StatusFailed),
		Entry("refunded", "refunded", payment.StatusFailed),
		Entry("charged back", "charged_back", payment.StatusFailed),
		Entry("in process", "in_process", payment.StatusPending),
		Entry("pending", "pending", payment.StatusPending),
	)
})

type stubSettler struct {
	status payment.Status
}

func (s stubSettler) Settle(context.Context, *payment.Transaction) (gateway.Settlement, error) {
	return gateway.Settlement{Status: s.status}, nil
}
