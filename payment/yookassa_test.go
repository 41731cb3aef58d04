package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wagerbot/models"
	"wagerbot/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreatePayment(t *testing.T) {
	var got createPaymentRequest
	var gotKey, gotUser, gotPass string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		gotKey = r.Header.Get("Idempotence-Key")
		gotUser, gotPass, _ = r.BasicAuth()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "pay_1",
			"status": "pending",
			"confirmation": {"type": "redirect", "confirmation_url": "https://yoomoney.example/checkout/pay_1"}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "shop", "secret", "https://bot.example/return")
	session, err := client.CreatePayment(context.Background(), &models.PaymentRequest{
		Amount:         decimal.NewFromInt(50),
		Description:    "Deposit for alice",
		IdempotenceKey: "key-1",
		Metadata:       map[string]string{"telegram_user_id": "42"},
	})
	require.NoError(t, err)

	assert.Equal(t, "pay_1", session.ID)
	assert.Equal(t, "pending", session.Status)
	assert.Equal(t, "https://yoomoney.example/checkout/pay_1", session.ConfirmationURL)

	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "shop", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "50.00", got.Amount.Value)
	assert.Equal(t, "RUB", got.Amount.Currency)
	assert.Equal(t, "redirect", got.Confirmation.Type)
	assert.Equal(t, "https://bot.example/return", got.Confirmation.ReturnURL)
	assert.True(t, got.Capture)
	assert.Equal(t, "42", got.Metadata["telegram_user_id"])
}

func TestClient_CreatePayment_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"api error", http.StatusBadRequest, `{"type":"error","code":"invalid_request","description":"bad amount"}`},
		{"malformed body", http.StatusOK, `{not json`},
		{"missing confirmation", http.StatusOK, `{"id":"pay_1","status":"pending"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "shop", "secret", "https://bot.example/return")
			session, err := client.CreatePayment(context.Background(), &models.PaymentRequest{
				Amount:         decimal.NewFromInt(10),
				IdempotenceKey: "k",
			})
			assert.Error(t, err)
			assert.Nil(t, session)
		})
	}
}

func TestClient_GetPayment(t *testing.T) {
	var gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		gotUser, gotPass, _ = r.BasicAuth()
		switch r.URL.Path {
		case "/payments/pay_1":
			_, _ = w.Write([]byte(`{"id":"pay_1","status":"succeeded","amount":{"value":"50.00","currency":"RUB"}}`))
		case "/payments/pay_usd":
			_, _ = w.Write([]byte(`{"id":"pay_usd","status":"succeeded","amount":{"value":"50.00","currency":"USD"}}`))
		case "/payments/pay_other":
			_, _ = w.Write([]byte(`{"id":"pay_1","status":"succeeded","amount":{"value":"50.00","currency":"RUB"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"type":"error","code":"not_found","description":"Payment not found"}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "shop", "secret", "https://bot.example/return")
	ctx := context.Background()

	session, err := client.GetPayment(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSucceeded, session.Status)
	assert.True(t, session.Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "shop", gotUser)
	assert.Equal(t, "secret", gotPass)

	outcome, ok := session.Outcome()
	assert.True(t, ok)
	assert.Equal(t, models.DepositOutcomeSucceeded, outcome)

	_, err = client.GetPayment(ctx, "pay_missing")
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = client.GetPayment(ctx, "pay_usd")
	assert.Error(t, err)

	_, err = client.GetPayment(ctx, "pay_other")
	assert.Error(t, err)
}

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantErr     bool
		wantOutcome models.DepositOutcome
		wantAct     bool
	}{
		{
			name:        "succeeded",
			body:        `{"type":"notification","event":"payment.succeeded","object":{"id":"pay_1","status":"succeeded"}}`,
			wantOutcome: models.DepositOutcomeSucceeded,
			wantAct:     true,
		},
		{
			name:        "canceled",
			body:        `{"type":"notification","event":"payment.canceled","object":{"id":"pay_1","status":"canceled"}}`,
			wantOutcome: models.DepositOutcomeCancelled,
			wantAct:     true,
		},
		{
			name: "waiting for capture is ignored",
			body: `{"type":"notification","event":"payment.waiting_for_capture","object":{"id":"pay_1"}}`,
		},
		{name: "not json", body: `event=payment.succeeded`, wantErr: true},
		{name: "missing event", body: `{"object":{"id":"pay_1"}}`, wantErr: true},
		{name: "missing payment id", body: `{"event":"payment.succeeded","object":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParseNotification([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			outcome, ok := n.Outcome()
			assert.Equal(t, tt.wantAct, ok)
			assert.Equal(t, tt.wantOutcome, outcome)
		})
	}
}
