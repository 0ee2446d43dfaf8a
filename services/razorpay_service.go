package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/cafe-orders/utils"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com"

// PaymentGateway opens a payment session for an order and returns the
// gateway's identifier for it.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (*GatewayOrder, error)
}

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// RazorpayConfig holds Razorpay configuration
type RazorpayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Currency  string
	Timeout   time.Duration
}

// RazorpayService handles Razorpay Orders API calls
type RazorpayService struct {
	config     *RazorpayConfig
	httpClient *http.Client
}

func NewRazorpayService(cfg RazorpayConfig) *RazorpayService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRazorpayBaseURL
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RazorpayService{
		config: &cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// ValidateConfig validates Razorpay configuration
func (rs *RazorpayService) ValidateConfig() error {
	if rs.config.KeyID == "" {
		return fmt.Errorf("RAZORPAY_KEY_ID is not set")
	}
	if rs.config.KeySecret == "" {
		return fmt.Errorf("RAZORPAY_KEY_SECRET is not set")
	}
	if rs.config.Currency == "" {
		return fmt.Errorf("RAZORPAY_CURRENCY is not set")
	}
	return nil
}

// CreateOrder opens a Razorpay order for amount, using the public order code
// as receipt. Amounts are sent in the currency's minor unit.
func (rs *RazorpayService) CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (*GatewayOrder, error) {
	url := strings.TrimRight(rs.config.BaseURL, "/") + "/v1/orders"

	payload := map[string]interface{}{
		"amount":   utils.ToMinorUnits(amount),
		"currency": rs.config.Currency,
		"receipt":  receipt,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.SetBasicAuth(rs.config.KeyID, rs.config.KeySecret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := rs.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("razorpay API error (status %d): %s", resp.StatusCode, string(body))
	}

	var order GatewayOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("razorpay API returned an order without id")
	}
	return &order, nil
}
