package agreement

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/guardportal/booking/internal/logging"
)

var ErrNotConfigured = errors.New("docusign is not configured")

type Envelope struct {
	EnvelopeID string
	Status     string
}

// Archiver keeps a copy of every agreement document that was sent.
type Archiver interface {
	Store(ctx context.Context, appointmentID string, document []byte) error
}

type DocuSignClient struct {
	client      *http.Client
	baseURL     string
	accountID   string
	accessToken string
	archive     Archiver
	logger      logging.Logger
	now         func() time.Time
}

// NewDocuSignClient creates an eSignature REST client. archive may be nil.
func NewDocuSignClient(baseURL, accountID, accessToken string, archive Archiver, logger logging.Logger) *DocuSignClient {
	return &DocuSignClient{
		client:      &http.Client{Timeout: 20 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		accountID:   accountID,
		accessToken: accessToken,
		archive:     archive,
		logger:      logger,
		now:         time.Now,
	}
}

type envelopeDefinition struct {
	EmailSubject string     `json:"emailSubject"`
	Status       string     `json:"status"`
	Documents    []document `json:"documents"`
	Recipients   recipients `json:"recipients"`
}

type document struct {
	DocumentBase64 string `json:"documentBase64"`
	Name           string `json:"name"`
	FileExtension  string `json:"fileExtension"`
	DocumentID     string `json:"documentId"`
}

type recipients struct {
	Signers []signer `json:"signers"`
}

type signer struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RecipientID  string `json:"recipientId"`
	RoutingOrder string `json:"routingOrder"`
	Tabs         tabs   `json:"tabs"`
}

type tabs struct {
	SignHereTabs []signHere `json:"signHereTabs"`
}

type signHere struct {
	AnchorString  string `json:"anchorString"`
	AnchorUnits   string `json:"anchorUnits"`
	AnchorXOffset string `json:"anchorXOffset"`
	AnchorYOffset string `json:"anchorYOffset"`
}

type envelopeSummary struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
}

// SendAgreement creates and sends an envelope holding the service agreement.
func (c *DocuSignClient) SendAgreement(ctx context.Context, req Request) (*Envelope, error) {
	if c.accountID == "" || c.accessToken == "" {
		return nil, ErrNotConfigured
	}

	doc, err := RenderDocument(req, c.now())
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(envelopeDefinition{
		EmailSubject: "GuardPortal Asset Protection Agreement - Please Sign",
		Status:       "sent",
		Documents: []document{{
			DocumentBase64: base64.StdEncoding.EncodeToString(doc),
			Name:           "Asset Protection Service Agreement",
			FileExtension:  "html",
			DocumentID:     "1",
		}},
		Recipients: recipients{Signers: []signer{{
			Email:        req.RecipientEmail,
			Name:         req.RecipientName,
			RecipientID:  "1",
			RoutingOrder: "1",
			Tabs: tabs{SignHereTabs: []signHere{{
				AnchorString:  "Signature:",
				AnchorUnits:   "pixels",
				AnchorXOffset: "20",
				AnchorYOffset: "10",
			}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	url := fmt.Sprintf("%s/v2.1/accounts/%s/envelopes", c.baseURL, c.accountID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build envelope request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send agreement: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read envelope response: %w", err)
	}

	var summary envelopeSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("decode envelope response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("send agreement: docusign status %d: %s %s", resp.StatusCode, summary.ErrorCode, summary.Message)
	}
	if summary.EnvelopeID == "" {
		return nil, errors.New("send agreement: docusign returned no envelope id")
	}

	if c.archive != nil {
		if err := c.archive.Store(ctx, req.AppointmentID, doc); err != nil {
			c.logger.Warn(ctx, "agreement.archive_failed",
				"appointment_id", req.AppointmentID,
				"envelope_id", summary.EnvelopeID,
				"error", err,
			)
		}
	}

	status := summary.Status
	if status == "" {
		status = "sent"
	}
	return &Envelope{EnvelopeID: summary.EnvelopeID, Status: status}, nil
}
