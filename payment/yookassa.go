package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wagerbot/models"
	"wagerbot/service"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Currency is the only currency the ledger handles
const Currency = "RUB"

// YooKassa notification event names
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
)

// Amount is the YooKassa money representation
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmationRequest struct {
	Type      string `json:"type"`
	ReturnURL string `json:"return_url"`
}

type createPaymentRequest struct {
	Amount       Amount              `json:"amount"`
	Confirmation confirmationRequest `json:"confirmation"`
	Capture      bool                `json:"capture"`
	Description  string              `json:"description,omitempty"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Amount       Amount `json:"amount"`
	Confirmation struct {
		Type            string `json:"type"`
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

type apiError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Client is a YooKassa API client. It implements service.PaymentGateway.
type Client struct {
	baseURL    string
	shopID     string
	secretKey  string
	returnURL  string
	httpClient *http.Client
}

// NewClient creates a YooKassa client authenticating with the shop credentials
func NewClient(baseURL, shopID, secretKey, returnURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		shopID:     shopID,
		secretKey:  secretKey,
		returnURL:  returnURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// CreatePayment opens a redirect-confirmed payment with immediate capture
func (c *Client) CreatePayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentSession, error) {
	body, err := json.Marshal(createPaymentRequest{
		Amount: Amount{
			Value:    req.Amount.StringFixed(2),
			Currency: Currency,
		},
		Confirmation: confirmationRequest{
			Type:      "redirect",
			ReturnURL: c.returnURL,
		},
		Capture:     true,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, "/payments", body, req.IdempotenceKey)
	if err != nil {
		return nil, err
	}

	var payment paymentResponse
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("failed to decode YooKassa response: %w", err)
	}
	if payment.ID == "" || payment.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("YooKassa response missing payment id or confirmation url")
	}

	return &models.PaymentSession{
		ID:              payment.ID,
		Status:          payment.Status,
		Amount:          parseAmount(payment.Amount),
		ConfirmationURL: payment.Confirmation.ConfirmationURL,
	}, nil
}

// GetPayment reads the current state of a payment. Notifications are only
// trusted after this confirms them.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*models.PaymentSession, error) {
	raw, err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, "")
	if err != nil {
		return nil, err
	}

	var payment paymentResponse
	if err := json.Unmarshal(raw, &payment); err != nil {
		return nil, fmt.Errorf("failed to decode YooKassa response: %w", err)
	}
	if payment.ID != paymentID {
		return nil, fmt.Errorf("YooKassa returned payment %q for %q", payment.ID, paymentID)
	}
	if payment.Amount.Currency != Currency {
		return nil, fmt.Errorf("payment %q is in %q, expected %s", paymentID, payment.Amount.Currency, Currency)
	}

	return &models.PaymentSession{
		ID:              payment.ID,
		Status:          payment.Status,
		Amount:          parseAmount(payment.Amount),
		ConfirmationURL: payment.Confirmation.ConfirmationURL,
	}, nil
}

// do sends an authenticated request and returns the body of a 200 response.
// A 404 is reported as service.ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotenceKey string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build YooKassa request: %w", err)
	}
	httpReq.SetBasicAuth(c.shopID, c.secretKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		httpReq.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call YooKassa: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read YooKassa response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		log.WithFields(log.Fields{
			"method":      method,
			"path":        path,
			"status":      resp.StatusCode,
			"code":        apiErr.Code,
			"description": apiErr.Description,
		}).Error("YooKassa request failed")
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("YooKassa has no %s: %w", path, service.ErrNotFound)
		}
		return nil, fmt.Errorf("YooKassa returned %d: %s", resp.StatusCode, apiErr.Description)
	}
	return raw, nil
}

// parseAmount reads a YooKassa amount; an unparsable value reads as zero and fails any comparison
func parseAmount(a Amount) decimal.Decimal {
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return decimal.Zero
	}
	return d
}
