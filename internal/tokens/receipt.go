package tokens

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

// Receipt is the printable view of a token.
type Receipt struct {
	TokenID      uuid.UUID       `json:"token_id"`
	ScanCode     string          `json:"scan_code"`
	ScanURL      string          `json:"scan_url"`
	IsUsed       bool            `json:"is_used"`
	UsedAt       *time.Time      `json:"used_at,omitempty"`
	EventName    string          `json:"event_name"`
	EventStarts  time.Time       `json:"event_starts_at"`
	Venue        string          `json:"venue,omitempty"`
	FoodIncluded bool            `json:"food_included"`
	StudentName  string          `json:"student_name"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	PaymentID    string          `json:"payment_id,omitempty"`
	Method       string          `json:"method,omitempty"`
	Status       string          `json:"payment_status"`
}

// RenderQR encodes the receipt's scan URL as a PNG.
func RenderQR(r *Receipt, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(r.ScanURL, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// RenderPDF draws a one-page A4 pass with the QR code and registration details.
func RenderPDF(r *Receipt) ([]byte, error) {
	qr, err := RenderQR(r, 256)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 12, "EVENT PASS")
	pdf.Ln(16)
	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(6)

	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 55, "F")
	pdf.SetXY(20, yStart+6)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, r.EventName)
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 12)
	line := func(format string, args ...interface{}) {
		pdf.SetX(20)
		pdf.Cell(0, 7, fmt.Sprintf(format, args...))
		pdf.Ln(6)
	}
	line("Attendee: %s", r.StudentName)
	line("Starts: %s", r.EventStarts.Format("02 Jan 2006 15:04 MST"))
	if r.Venue != "" {
		line("Venue: %s", r.Venue)
	}
	if r.FoodIncluded {
		line("Food: included")
	}
	line("Paid: %s %s", r.Amount.StringFixed(2), r.Currency)

	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 145, yStart+5, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(yStart + 62)
	pdf.SetFont("Courier", "B", 12)
	pdf.CellFormat(0, 8, r.ScanCode, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "I", 10)
	status := "Valid for one entry."
	if r.IsUsed {
		status = "ALREADY USED"
	}
	pdf.CellFormat(0, 6, status, "", 1, "C", false, 0, "")
	if r.PaymentID != "" {
		pdf.CellFormat(0, 6, "Payment reference: "+r.PaymentID, "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
