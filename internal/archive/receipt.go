package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptLine is one payee line on a settlement receipt.
type ReceiptLine struct {
	Recipient string
	Amount    int64
}

// Receipt is the archived record of a settled payroll.
type Receipt struct {
	PayrollID     string
	Total         int64
	Currency      string
	Status        string
	TxExecuteHash string
	WithdrawalID  string
	SettledAt     time.Time
	Lines         []ReceiptLine
}

// RenderReceipt produces the PDF document for a settlement receipt.
func RenderReceipt(r Receipt) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(30,
		text.NewCol(12, "Payroll Settlement Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Payroll: "+r.PayrollID, props.Text{Top: 0}),
			text.New("Settled: "+r.SettledAt.Format(time.RFC3339), props.Text{Top: 4}),
			text.New("Status: "+r.Status, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("Transaction: "+r.TxExecuteHash, props.Text{Top: 0, Size: 8}),
			text.New("Withdrawal: "+r.WithdrawalID, props.Text{Top: 4, Size: 8}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Recipient", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range r.Lines {
		m.AddRow(8,
			text.NewCol(8, line.Recipient, props.Text{Size: 9}),
			text.NewCol(4, formatAmount(line.Amount, r.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, formatAmount(r.Total, r.Currency), props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

// formatAmount renders minor units with two decimal places.
func formatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, currency)
}
