package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	mppayment "github.com/mercadopago/sdk-go/pkg/payment"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/estore-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/estore-payments/internal/gateway"
)

type fakeMercadoPago struct {
	created  []mppayment.Request
	response string
	err      error
	status   string
}

func (f *fakeMercadoPago) Create(_ context.Context, req mppayment.Request) (*mppayment.Response, error) {
	f.created = append(f.created, req)
	if f.err != nil {
		return nil, f.err
	}
	var resp mppayment.Response
	if err := json.Unmarshal([]byte(f.response), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (f *fakeMercadoPago) Get(_ context.Context, id int) (*mppayment.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &mppayment.Response{ID: id, Status: f.status}, nil
}

var _ = Describe("Remote", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		handler  http.HandlerFunc
		lastBody map[string]any
	)

	BeforeEach(func() {
		ctx = context.Background()
		lastBody = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				_ = json.NewDecoder(r.Body).Decode(&lastBody)
			}
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	remote := func(timeout time.Duration) *gateway.Remote {
		client := gateway.NewAcquirerClient(gateway.AcquirerConfig{BaseURL: server.URL, APIKey: "secret", Timeout: timeout})
		return gateway.NewRemote(generatorWithRoll(0.5), gateway.RemoteConfig{
			Cards:   client,
			Instant: gateway.NewAcquirerInstant(client),
			Timeout: timeout,
		})
	}

	respond := func(status int, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}
	}

	It("approves a card the acquirer approved", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/charges"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer secret"))
			respond(http.StatusCreated, `{"id":"ch_1","status":"approved","authorization_code":"AUTH0001","response_code":"00","response_message":"Approved","fee":"6.48"}`)(w, r)
		}
		res, err := remote(time.Second).ProcessCreditCard(ctx, cardRequest(2))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Status).To(Equal(payment.StatusApproved))
		Expect(res.GatewayName).To(Equal("acquirer"))
		Expect(res.GatewayReference).To(Equal("ch_1"))
		Expect(lastBody).To(HaveKeyWithValue("reference", res.TransactionID))
		Expect(lastBody).To(HaveKeyWithValue("method", "credit_card"))

		card, _ := res.Card()
		Expect(card.AuthorizationCode).To(Equal("AUTH0001"))
		Expect(card.ProcessingFee.StringFixed(2)).To(Equal("6.48"))
	})

	It("records an acquirer decline", func() {
		handler = respond(http.StatusCreated, `{"id":"ch_2","status":"declined","response_code":"51","response_message":"Insufficient funds"}`)
		res, err := remote(time.Second).ProcessDebitCard(ctx, cardRequest(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Failure.Category).To(Equal(gateway.FailureDeclined))
		Expect(res.Failure.Code).To(Equal("51"))
		Expect(res.Message).To(Equal("Saldo insuficiente ou cartão recusado"))
	})

	It("turns a server error into a gateway error", func() {
		handler = respond(http.StatusInternalServerError, `{"code":"boom","message":"acquirer down"}`)
		res, err := remote(time.Second).ProcessCreditCard(ctx, cardRequest(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Status).To(Equal(payment.StatusFailed))
		Expect(res.Failure.Category).To(Equal(gateway.FailureGateway))
		Expect(res.Failure.Message).To(ContainSubstring("acquirer down"))
	})

	It("turns a response without a charge into a gateway error", func() {
		handler = respond(http.StatusOK, `{}`)
		res, err := remote(time.Second).ProcessCreditCard(ctx, cardRequest(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Failure.Category).To(Equal(gateway.FailureGateway))
	})

	It("turns a timeout into a gateway error", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			respond(http.StatusCreated, `{"id":"late","status":"approved"}`)(w, r)
		}
		res, err := remote(50*time.Millisecond).ProcessCreditCard(ctx, cardRequest(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Failure.Category).To(Equal(gateway.FailureGateway))
	})

	It("issues PIX through the acquirer", func() {
		handler = respond(http.StatusCreated, `{"id":"ch_3","status":"pending","pix":{"key":"acq-key","qr_payload":"00020126PIX","expires_at":"2026-03-10T12:30:00Z"}}`)
		res, err := remote(time.Second).ProcessPIX(ctx, gateway.PixRequest{Amount: decimal.NewFromInt(150)})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Status).To(Equal(payment.StatusPending))

		pix, _ := res.Pix()
		Expect(pix.PixKey).To(Equal("acq-key"))
		Expect(pix.QRCode).To(HavePrefix("data:image/png;base64,"))
		Expect(res.GatewayResponse).To(HaveKeyWithValue("qr_payload", "00020126PIX"))
	})

	It("refuses cards when no acquirer is configured", func() {
		r := gateway.NewRemote(generatorWithRoll(0.5), gateway.RemoteConfig{})
		_, err := r.ProcessCreditCard(ctx, cardRequest(1))
		Expect(errors.Is(err, gateway.ErrNotConfigured)).To(BeTrue())
	})
})

var _ = Describe("MercadoPago", func() {
	ctx := context.Background()

	It("creates a PIX charge and keeps the copy-and-paste code", func() {
		api := &fakeMercadoPago{response: `{"id":123456,"status":"pending","point_of_interaction":{"transaction_data":{"qr_code":"00020101021226MP","qr_code_base64":"aGVsbG8="}}}`}
		mp := gateway.NewMercadoPago(api, gateway.MercadoPagoConfig{PayerEmail: "loja@example.com"})
		r := gateway.NewRemote(generatorWithRoll(0.5), gateway.RemoteConfig{Instant: mp})

		res, err := r.ProcessPIX(ctx, gateway.PixRequest{Amount: decimal.RequireFromString("150.00"), Description: "Pedido 42"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.GatewayName).To(Equal("mercadopago"))
		Expect(res.GatewayReference).To(Equal("123456"))
		Expect(res.GatewayResponse).To(HaveKeyWithValue("qr_payload", "00020101021226MP"))

		Expect(api.created).To(HaveLen(1))
		Expect(api.created[0].PaymentMethodID).To(Equal("pix"))
		Expect(api.created[0].ExternalReference).To(Equal(res.TransactionID))
		Expect(api.created[0].TransactionAmount).To(Equal(150.0))

		pix, _ := res.Pix()
		Expect(res.Status).To(Equal(payment.StatusPending))
		Expect(pix.PixKey).To(HaveLen(32))
	})

	It("shows the configured merchant key on a PIX charge", func() {
		api := &fakeMercadoPago{response: `{"id":77,"status":"pending","point_of_interaction":{"transaction_data":{"qr_code":"00020101021226MP"}}}`}
		mp := gateway.NewMercadoPago(api, gateway.MercadoPagoConfig{PixKey: "pagamentos@loja.com.br"})
		r := gateway.NewRemote(generatorWithRoll(0.5), gateway.RemoteConfig{Instant: mp})

		res, err := r.ProcessPIX(ctx, gateway.PixRequest{Amount: decimal.NewFromInt(20)})
		Expect(err).NotTo(HaveOccurred())
		pix, _ := res.Pix()
		Expect(pix.PixKey).To(Equal("pagamentos@loja.com.br"))
	})

	It("fails a PIX charge rejected at creation", func() {
		api := &fakeMercadoPago{response: `{"id":78,"status":"rejected","status_detail":"cc_rejected_high_risk","point_of_interaction":{"transaction_data":{"qr_code":"00020101021226MP"}}}`}
		r := gateway.NewRemote(generatorWithRoll(0.5), gateway.RemoteConfig{Instant: gateway.NewMercadoPago(api, gateway.MercadoPagoConfig{})})

		res, err := r.ProcessPIX(ctx, gateway.PixRequest{Amount: decimal.NewFromInt(20)})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Success).To(BeFalse())
		Expect(res.Status).To(Equal(payment.StatusFailed))
		Expect(res.Failure.Category).To(Equal(gateway.FailureDeclined))
		Expect(res.Failure.Code).To(Equal("cc_rejected_high_risk"))
		Expect(res.GatewayReference).To(Equal("78"))
	})

	It("approves a boleto the provider approved at creation", func() {
		api := &fakeMercadoPago{response: `{"id":79,"status":"approved","transaction_details":{"digitable_line":"23793381286000000000000000000000000000000000000"}}`}
		r := gateway.NewRemote(generatorWithRoll(0.5), gateway.RemoteConfig{Instant: gateway.NewMercadoPago(api, gateway.MercadoPagoConfig{})})

		res, err := r.ProcessBoleto(ctx, gateway.BoletoRequest{Amount: decimal.NewFromInt(20)})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Status).To(Equal(payment.StatusApproved))
		Expect(res.Failure).To(BeNil())
	})

	It("reports a provider failure as a gateway error", func() {
		api := &fakeMercadoPago{err: errors.New("unauthorized")}
		r := gateway.NewRemote(generatorWithRoll(0.5), gateway.RemoteConfig{Instant: gateway.NewMercadoPago(api, gateway.MercadoPagoConfig{})})

		res, err := r.ProcessBoleto(ctx, gateway.BoletoRequest{Amount: decimal.NewFromInt(10)})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Validate()).To(Succeed())
		Expect(res.Failure.Category).To(Equal(gateway.FailureGateway))
	})

	It("settles from the provider status", func() {
		api := &fakeMercadoPago{status: "approved"}
		settler := gateway.NewMercadoPagoSettlement(gateway.NewMercadoPago(api, gateway.MercadoPagoConfig{}))
		ref := "123456"

		got, err := settler.Settle(ctx, &payment.Transaction{PaymentMethod: payment.MethodPIX, GatewayReference: &ref})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(payment.StatusApproved))

		_, err = settler.Settle(ctx, &payment.Transaction{PaymentMethod: payment.MethodPIX})
		Expect(err).To(HaveOccurred())
	})
})
