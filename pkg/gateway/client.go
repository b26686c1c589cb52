package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds configuration for the payment gateway client
type Config struct {
	Environment   string // "sandbox" or "production"
	BaseURL       string
	MerchantKey   string
	MerchantToken string // SECRET - never expose to client
	CallbackURL   string // registered callback endpoint for this deployment
}

// Client talks to the external payment gateway's merchant API
type Client struct {
	config Config
	client *http.Client
}

// NewClient creates a new payment gateway client
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateOrderRequest represents an order creation request
type CreateOrderRequest struct {
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"` // smallest currency unit
	Currency    string `json:"currency"`
	CallbackURL string `json:"callback_url"`
}

// CreateOrderResponse represents the gateway's order creation response
type CreateOrderResponse struct {
	Status      string `json:"status"`
	OrderID     string `json:"order_id"`
	CheckoutURL string `json:"checkout_url"`
	Comment     string `json:"comment"`
	ErrCode     string `json:"errCode"`
}

// RefundRequest represents a refund request against a captured payment
type RefundRequest struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

// RefundResponse represents the gateway's refund response
type RefundResponse struct {
	Status   string `json:"status"`
	RefundID string `json:"refund_id"`
	Comment  string `json:"comment"`
	ErrCode  string `json:"errCode"`
}

// CreateOrder registers an order with the gateway and returns the handle the
// client app uses to drive checkout.
func (c *Client) CreateOrder(orderID string, amount int64, currency string) (*CreateOrderResponse, error) {
	orderReq := CreateOrderRequest{
		OrderID:     orderID,
		Amount:      amount,
		Currency:    currency,
		CallbackURL: c.config.CallbackURL,
	}

	var orderResp CreateOrderResponse
	if err := c.post("/orders", orderReq, &orderResp); err != nil {
		return nil, err
	}

	if orderResp.Status != "success" {
		return nil, fmt.Errorf("order creation failed: %s (error code: %s)", orderResp.Comment, orderResp.ErrCode)
	}

	return &orderResp, nil
}

// Refund asks the gateway to return money for a captured payment.
func (c *Client) Refund(paymentID string, amount int64, reason string) (*RefundResponse, error) {
	refundReq := RefundRequest{
		PaymentID: paymentID,
		Amount:    amount,
		Reason:    reason,
	}

	var refundResp RefundResponse
	if err := c.post("/refunds", refundReq, &refundResp); err != nil {
		return nil, err
	}

	if refundResp.Status != "success" {
		return nil, fmt.Errorf("refund failed: %s (error code: %s)", refundResp.Comment, refundResp.ErrCode)
	}

	return &refundResp, nil
}

func (c *Client) post(path string, payload interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway request: %w", err)
	}

	url := fmt.Sprintf("%s%s", c.config.BaseURL, path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create gateway request: %w", err)
	}

	req.SetBasicAuth(c.config.MerchantKey, c.config.MerchantToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse gateway response: %w", err)
	}

	return nil
}

// GetName returns the name of this gateway client
func (c *Client) GetName() string {
	return fmt.Sprintf("GuideLink Payment Gateway (%s)", c.config.Environment)
}
