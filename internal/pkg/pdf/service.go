// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/shopspring/decimal"
	"github.com/your-org/eid-storefront/internal/config"
	"github.com/your-org/eid-storefront/internal/domain/order"
)

// Service renders order receipts
type Service struct {
	config *config.Config
	tmpl   *template.Template
	now    func() time.Time
}

// NewService creates a new PDF service
func NewService(cfg *config.Config) *Service {
	funcs := template.FuncMap{
		"money": func(d decimal.Decimal) string {
			return fmt.Sprintf("%s %s", cfg.Store.Currency, d.StringFixed(2))
		},
		"upper": strings.ToUpper,
	}
	return &Service{
		config: cfg,
		tmpl:   template.Must(template.New("receipt").Funcs(funcs).Parse(receiptTemplate)),
		now:    time.Now,
	}
}

// ReceiptData represents the data passed to the receipt template
type ReceiptData struct {
	ReceiptNumber string       `json:"receipt_number"`
	IssuedAt      string       `json:"issued_at"`
	Order         *order.Order `json:"order"`
	Company       CompanyInfo  `json:"company"`
	FreeDelivery  bool         `json:"free_delivery"`
}

// CompanyInfo represents company information
type CompanyInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

// RenderHTML renders the receipt page for o
func (s *Service) RenderHTML(o *order.Order) (string, error) {
	data := ReceiptData{
		ReceiptNumber: "RCPT-" + strings.TrimPrefix(o.ID, "ORD-"),
		IssuedAt:      s.now().Format("January 2, 2006"),
		Order:         o,
		FreeDelivery:  o.DeliveryCharge.IsZero(),
		Company: CompanyInfo{
			Name:    s.config.Store.CompanyName,
			Address: s.config.Store.CompanyAddress,
			Phone:   s.config.Store.CompanyPhone,
			Email:   s.config.Store.CompanyEmail,
			Website: s.config.Store.CompanyWebsite,
		},
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// GenerateReceipt renders o to PDF. It needs the wkhtmltopdf binary.
func (s *Service) GenerateReceipt(o *order.Order) (*bytes.Buffer, error) {
	htmlContent, err := s.RenderHTML(o)
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA5)
	pdfg.Grayscale.Set(false)

	page := wkhtmltopdf.NewPageReader(strings.NewReader(htmlContent))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	page.Zoom.Set(0.95)

	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}

	return bytes.NewBuffer(pdfg.Bytes()), nil
}

const receiptTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Receipt {{.ReceiptNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { display: flex; justify-content: space-between; border-bottom: 2px solid #eee; padding-bottom: 16px; margin-bottom: 24px; }
        .title { font-size: 26px; font-weight: bold; color: #15803d; }
        .section-title { font-size: 15px; font-weight: bold; margin-bottom: 8px; color: #374151; }
        .items { width: 100%; border-collapse: collapse; margin: 24px 0; }
        .items th, .items td { border: 1px solid #ddd; padding: 10px 8px; text-align: left; }
        .items th { background-color: #f8f9fa; }
        .num { text-align: right; }
        .totals { float: right; width: 300px; }
        .totals td { padding: 6px 8px; border-bottom: 1px solid #eee; }
        .total-row { font-size: 17px; font-weight: bold; }
        .badge { display: inline-block; padding: 3px 8px; border-radius: 4px; font-size: 12px; font-weight: bold; background: #fef3c7; color: #92400e; }
        .badge-delivered { background: #dcfce7; color: #166534; }
        .badge-cancelled { background: #fee2e2; color: #991b1b; }
        .local { color: #b45309; font-size: 12px; }
        .footer { clear: both; margin-top: 48px; border-top: 1px solid #eee; padding-top: 16px; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="header">
        <div>
            <h1>{{.Company.Name}}</h1>
            {{if .Company.Address}}<p>{{.Company.Address}}</p>{{end}}
            {{if .Company.Phone}}<p>Phone: {{.Company.Phone}}</p>{{end}}
            {{if .Company.Email}}<p>Email: {{.Company.Email}}</p>{{end}}
            {{if .Company.Website}}<p>{{.Company.Website}}</p>{{end}}
        </div>
        <div style="text-align: right;">
            <div class="title">RECEIPT</div>
            <p><strong>Receipt #:</strong> {{.ReceiptNumber}}</p>
            <p><strong>Order #:</strong> {{.Order.ID}}</p>
            <p><strong>Issued:</strong> {{.IssuedAt}}</p>
            {{if not .Order.CreatedAt.IsZero}}<p><strong>Ordered:</strong> {{.Order.CreatedAt.Format "January 2, 2006 15:04"}}</p>{{end}}
            <p><span class="badge badge-{{.Order.Status}}">{{upper (printf "%s" .Order.Status)}}</span></p>
            {{if not .Order.Synced}}<p class="local">Awaiting confirmation from the store</p>{{end}}
        </div>
    </div>

    <div>
        <div class="section-title">Deliver To:</div>
        <p><strong>{{.Order.Customer.Name}}</strong></p>
        <p>{{.Order.Customer.Address}}{{if .Order.Customer.District}}, {{.Order.Customer.District}}{{end}}</p>
        {{if .Order.Customer.Phone}}<p>Phone: {{.Order.Customer.Phone}}</p>{{end}}
        {{if .Order.Customer.Email}}<p>Email: {{.Order.Customer.Email}}</p>{{end}}
        {{if .Order.Customer.Notes}}<p><em>{{.Order.Customer.Notes}}</em></p>{{end}}
        {{if .Order.PaymentMethod}}<p>Payment: {{upper .Order.PaymentMethod}}</p>{{end}}
    </div>

    <table class="items">
        <thead>
            <tr>
                <th>Item</th>
                <th>Size</th>
                <th class="num">Qty</th>
                <th class="num">Price</th>
                <th class="num">Total</th>
            </tr>
        </thead>
        <tbody>
            {{range .Order.Items}}
            <tr>
                <td><strong>{{.Name}}</strong></td>
                <td>{{.Size}}</td>
                <td class="num">{{.Quantity}}</td>
                <td class="num">{{money .Price}}</td>
                <td class="num">{{money .Total}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>

    <div class="totals">
        <table style="width: 100%;">
            <tr><td>Subtotal:</td><td class="num">{{money .Order.Subtotal}}</td></tr>
            <tr><td>Delivery:</td><td class="num">{{if .FreeDelivery}}Free{{else}}{{money .Order.DeliveryCharge}}{{end}}</td></tr>
            <tr class="total-row"><td>Total:</td><td class="num">{{money .Order.Total}}</td></tr>
        </table>
    </div>

    <div class="footer">
        <p>Eid Mubarak! Thank you for shopping with {{.Company.Name}}.</p>
        {{if .Company.Email}}<p>Questions about this order? Contact us at {{.Company.Email}}{{if .Company.Phone}} or {{.Company.Phone}}{{end}}</p>{{end}}
    </div>
</body>
</html>
`
