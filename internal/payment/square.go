package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guardportal/booking/internal/logging"
)

const squareVersion = "2024-10-17"

var ErrPaymentFailed = errors.New("payment failed")

type ChargeRequest struct {
	AmountCents    int64
	Currency       string
	SourceID       string
	IdempotencyKey string
	ReferenceID    string
	Note           string
}

type Charge struct {
	PaymentID   string
	Status      string
	AmountCents int64
}

// SquareClient charges tokenized card sources through the Square Payments API.
type SquareClient struct {
	client      *http.Client
	baseURL     string
	accessToken string
	locationID  string
	logger      logging.Logger
}

func NewSquareClient(baseURL, accessToken, locationID string, logger logging.Logger) *SquareClient {
	return &SquareClient{
		client:      &http.Client{Timeout: 15 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		locationID:  locationID,
		logger:      logger,
	}
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type createPaymentRequest struct {
	SourceID       string      `json:"source_id"`
	IdempotencyKey string      `json:"idempotency_key"`
	AmountMoney    squareMoney `json:"amount_money"`
	ReferenceID    string      `json:"reference_id,omitempty"`
	Note           string      `json:"note,omitempty"`
	LocationID     string      `json:"location_id,omitempty"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type createPaymentResponse struct {
	Payment *struct {
		ID          string      `json:"id"`
		Status      string      `json:"status"`
		AmountMoney squareMoney `json:"amount_money"`
	} `json:"payment"`
	Errors []squareError `json:"errors"`
}

// Charge creates a payment. Any non-success answer from Square is returned as
// an error wrapping ErrPaymentFailed.
func (c *SquareClient) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("%w: square access token not configured", ErrPaymentFailed)
	}

	body, err := json.Marshal(createPaymentRequest{
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		AmountMoney:    squareMoney{Amount: req.AmountCents, Currency: req.Currency},
		ReferenceID:    req.ReferenceID,
		Note:           req.Note,
		LocationID:     c.locationID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Square-Version", squareVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Error(ctx, "square.payment.request_failed", "reference_id", req.ReferenceID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrPaymentFailed, err)
	}

	var out createPaymentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Error(ctx, "square.payment.decode_failed", "status", resp.StatusCode, "error", err)
		return nil, fmt.Errorf("%w: decode response (status %d)", ErrPaymentFailed, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || out.Payment == nil {
		detail := describeErrors(out.Errors)
		c.logger.Warn(ctx, "square.payment.rejected",
			"reference_id", req.ReferenceID,
			"status", resp.StatusCode,
			"detail", detail,
		)
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, detail)
	}

	switch out.Payment.Status {
	case "FAILED", "CANCELED":
		return nil, fmt.Errorf("%w: payment %s is %s", ErrPaymentFailed, out.Payment.ID, out.Payment.Status)
	}

	return &Charge{
		PaymentID:   out.Payment.ID,
		Status:      out.Payment.Status,
		AmountCents: out.Payment.AmountMoney.Amount,
	}, nil
}

func describeErrors(errs []squareError) string {
	if len(errs) == 0 {
		return "payment creation failed"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Detail != "" {
			parts = append(parts, e.Code+": "+e.Detail)
		} else {
			parts = append(parts, e.Code)
		}
	}
	return strings.Join(parts, "; ")
}
