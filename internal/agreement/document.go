package agreement

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/agreement.html
var templateFS embed.FS

var agreementTmpl = template.Must(template.ParseFS(templateFS, "templates/agreement.html"))

var (
	monthlyFee = decimal.RequireFromString("100.00")
	setupFee   = decimal.RequireFromString("125.00")
)

var services = []string{
	"24/7 Property monitoring and surveillance",
	"Title fraud detection and alerts",
	"Asset documentation and protection",
	"Expert consultation and support",
}

type Request struct {
	AppointmentID  string
	RecipientEmail string
	RecipientName  string
}

type documentData struct {
	Request
	Services   []string
	MonthlyFee string
	SetupFee   string
	Total      string
	Date       string
}

// RenderDocument builds the agreement body sent for signature. The signer's
// tab is anchored on the "Signature:" line.
func RenderDocument(req Request, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := agreementTmpl.Execute(&buf, documentData{
		Request:    req,
		Services:   services,
		MonthlyFee: monthlyFee.StringFixed(2),
		SetupFee:   setupFee.StringFixed(2),
		Total:      monthlyFee.Add(setupFee).StringFixed(2),
		Date:       date.Format("January 2, 2006"),
	})
	if err != nil {
		return nil, fmt.Errorf("render agreement: %w", err)
	}
	return buf.Bytes(), nil
}
