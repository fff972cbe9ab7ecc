package pdf

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type ReceiptData struct {
	SellerName       string
	InvoiceID        string
	GatewayInvoiceID string
	OwnerID          string
	ProductID        string
	Description      string
	Amount           int64
	PaidAt           time.Time
	AccessUntil      *time.Time
}

type PDFProvider struct {
	sellerName string
}

func New() Provider {
	return &PDFProvider{sellerName: "Coursepay"}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seller := strings.TrimSpace(data.SellerName)
	if seller == "" {
		seller = p.sellerName
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{Pattern: "Page {current} of {total}", Place: props.RightBottom}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(14,
		text.NewCol(8, "Payment receipt", props.Text{Size: 18, Style: fontstyle.Bold}),
		text.NewCol(4, seller, props.Text{Size: 10, Align: align.Right, Top: 3}),
	)
	m.AddRow(4, line.NewCol(12))

	m.AddRow(26,
		col.New(6).Add(
			text.New("Receipt for invoice "+data.InvoiceID, props.Text{Size: 9}),
			text.New("Gateway reference: "+data.GatewayInvoiceID, props.Text{Size: 9, Top: 5}),
			text.New("Paid at: "+data.PaidAt.UTC().Format("2006-01-02 15:04 MST"), props.Text{Size: 9, Top: 10}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
			text.New(data.OwnerID, props.Text{Size: 9, Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(8,
		text.NewCol(8, "Item", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(4, "Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	item := strings.TrimSpace(data.Description)
	if item == "" {
		item = "Course " + data.ProductID
	}
	m.AddRow(10,
		text.NewCol(8, item, props.Text{Size: 9}),
		text.NewCol(4, formatAmount(data.Amount), props.Text{Size: 9, Align: align.Right}),
	)

	access := "Access: perpetual"
	if data.AccessUntil != nil {
		access = "Access until: " + data.AccessUntil.UTC().Format(time.DateOnly)
	}
	m.AddRow(12,
		text.NewCol(8, access, props.Text{Size: 9, Top: 3}),
		text.NewCol(4, "Total "+formatAmount(data.Amount), props.Text{Size: 11, Style: fontstyle.Bold, Align: align.Right, Top: 3}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}

// formatAmount groups thousands: 50000 -> "50,000".
func formatAmount(amount int64) string {
	digits := fmt.Sprintf("%d", amount)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
