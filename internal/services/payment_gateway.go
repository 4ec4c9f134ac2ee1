package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/skyroute/booking-core/internal/config"
	"github.com/skyroute/booking-core/internal/models"
)

// PaymentGateway captures funds for a booking
type PaymentGateway interface {
	CapturePayment(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.PaymentResult, error)
}

// NewPaymentGateway returns the HTTP gateway, or the sandbox gateway when no URL is configured
func NewPaymentGateway(cfg *config.PaymentConfig, logger *logrus.Logger) PaymentGateway {
	if cfg.GatewayURL == "" {
		logger.Warn("PAYMENT_GATEWAY_URL not set, payments are approved by the sandbox gateway")
		return &SandboxPaymentGateway{}
	}
	return NewHTTPPaymentGateway(cfg, logger)
}

// HTTPPaymentGateway talks to the card/PayPal acquirer over JSON
type HTTPPaymentGateway struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
}

// CaptureRequest is the body sent to the gateway capture endpoint
type CaptureRequest struct {
	MerchantID    string `json:"merchantId"`
	InvoiceID     string `json:"invoiceId"`
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currencyCode"`
	PaymentMethod string `json:"paymentMethod"`
	CheckValue    string `json:"checkValue"`
}

// CaptureResponse is the gateway's answer to a capture
type CaptureResponse struct {
	Status        string `json:"status"` // "success", "failed" or "error"
	TransactionID string `json:"transactionId"`
	Message       string `json:"message,omitempty"`
}

// NewHTTPPaymentGateway creates a new HTTP payment gateway client
func NewHTTPPaymentGateway(cfg *config.PaymentConfig, logger *logrus.Logger) *HTTPPaymentGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPaymentGateway{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// GenerateCheckValue signs a capture request
// Step 1: hash1 = SHA512(merchantKey) uppercase hex
// Step 2: SHA512("merchantId|invoiceId|amount|currencyCode|hash1") uppercase hex
func (g *HTTPPaymentGateway) GenerateCheckValue(invoiceID, amount, currencyCode string) string {
	hash1 := sha512.Sum512([]byte(g.config.MerchantKey))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		g.config.MerchantID,
		invoiceID,
		amount,
		currencyCode,
		hash1Hex,
	)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// CapturePayment charges amount for bookingID. A declined capture is not an
// error: it returns a result with Success=false.
func (g *HTTPPaymentGateway) CapturePayment(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.PaymentResult, error) {
	invoiceID := bookingID.String()
	amountStr := amount.StringFixed(moneyPlaces)

	request := &CaptureRequest{
		MerchantID:    g.config.MerchantID,
		InvoiceID:     invoiceID,
		Amount:        amountStr,
		CurrencyCode:  g.config.Currency,
		PaymentMethod: string(method),
		CheckValue:    g.GenerateCheckValue(invoiceID, amountStr, g.config.Currency),
	}

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(g.config.GatewayURL, "/") + "/captures"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	g.logger.WithFields(logrus.Fields{
		"invoice_id": invoiceID,
		"amount":     amountStr,
		"currency":   g.config.Currency,
		"method":     method,
	}).Info("Capturing payment")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).Error("Failed to call payment gateway")
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var captureResp CaptureResponse
	if err := json.Unmarshal(body, &captureResp); err != nil {
		g.logger.WithFields(logrus.Fields{
			"body":  string(body),
			"error": err.Error(),
		}).Error("Failed to parse capture response")
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	result := &models.PaymentResult{
		Success:          resp.StatusCode == http.StatusOK && captureResp.Status == "success",
		GatewayReference: captureResp.TransactionID,
		Message:          captureResp.Message,
	}

	g.logger.WithFields(logrus.Fields{
		"invoice_id":     invoiceID,
		"status_code":    resp.StatusCode,
		"status":         captureResp.Status,
		"transaction_id": captureResp.TransactionID,
	}).Info("Payment gateway responded")

	return result, nil
}

// SandboxPaymentGateway approves every capture. Used for local development.
type SandboxPaymentGateway struct{}

// CapturePayment always succeeds with a generated reference
func (SandboxPaymentGateway) CapturePayment(ctx context.Context, bookingID uuid.UUID, amount decimal.Decimal, method models.PaymentMethod) (*models.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.PaymentResult{
		Success:          true,
		GatewayReference: "sandbox-" + uuid.NewString(),
	}, nil
}
