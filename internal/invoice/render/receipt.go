// Package render produces the printable normalized receipt of a confirmed
// invoice.
package render

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	sygconfig "github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"github.com/smallbiznis/sygmef/internal/invoice/format"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Renderer interface {
	// RenderReceipt returns the PDF bytes of a confirmed invoice. Other
	// statuses fail with domain.ErrNotConfirmed.
	RenderReceipt(invoice domain.Invoice) ([]byte, error)
}

type Params struct {
	fx.In

	Holder *sygconfig.EMECFHolder
	Log    *zap.Logger
}

type PDFRenderer struct {
	holder *sygconfig.EMECFHolder
	log    *zap.Logger
}

func NewRenderer(p Params) Renderer {
	return &PDFRenderer{
		holder: p.Holder,
		log:    p.Log.Named("invoice.render"),
	}
}

var (
	labelStyle = props.Text{Size: 8, Style: fontstyle.Bold}
	valueStyle = props.Text{Size: 8}
	rightStyle = props.Text{Size: 8, Align: align.Right}
)

func (r *PDFRenderer) RenderReceipt(invoice domain.Invoice) ([]byte, error) {
	if invoice.Status != domain.StatusConfirmed || !invoice.HasSecurityArtifacts() {
		return nil, domain.ErrNotConfirmed
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} / {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	title := invoice.Kind.Label()
	if r.holder != nil && !r.holder.Get().IsProduction() {
		title += " (MODE TEST)"
	}
	m.AddRow(12, text.NewCol(12, title, props.Text{
		Size:  16,
		Style: fontstyle.Bold,
		Align: align.Center,
	}))

	m.AddRows(r.headerRows(invoice)...)
	m.AddRow(4, line.NewCol(12))
	m.AddRows(r.itemRows(invoice)...)
	m.AddRow(4, line.NewCol(12))
	m.AddRows(r.totalRows(invoice)...)
	m.AddRow(4, line.NewCol(12))
	m.AddRows(r.securityRows(invoice)...)

	doc, err := m.Generate()
	if err != nil {
		r.log.Warn("receipt generation failed", zap.String("uid", invoice.UID), zap.Error(err))
		return nil, fmt.Errorf("render receipt %s: %w", invoice.UID, err)
	}
	return doc.GetBytes(), nil
}

func (r *PDFRenderer) headerRows(invoice domain.Invoice) []core.Row {
	rows := []core.Row{
		pair("IFU vendeur", invoice.IFU),
		pair("Opérateur", invoice.OperatorName),
	}
	if invoice.ClientName != "" || invoice.ClientIFU != "" {
		rows = append(rows, pair("Client", invoice.ClientName))
		if invoice.ClientIFU != "" {
			rows = append(rows, pair("IFU client", invoice.ClientIFU))
		}
	}
	if invoice.Kind.IsCreditNote() && invoice.Reference != "" {
		rows = append(rows, pair("Facture d'origine", invoice.Reference))
	}
	if invoice.DateTime != nil {
		rows = append(rows, pair("Date", *invoice.DateTime))
	}
	return rows
}

func (r *PDFRenderer) itemRows(invoice domain.Invoice) []core.Row {
	rows := []core.Row{
		textRow(
			text.NewCol(6, "Désignation", labelStyle),
			text.NewCol(2, "Qté", props.Text{Size: 8, Style: fontstyle.Bold, Align: align.Right}),
			text.NewCol(2, "P.U.", props.Text{Size: 8, Style: fontstyle.Bold, Align: align.Right}),
			text.NewCol(2, "Montant", props.Text{Size: 8, Style: fontstyle.Bold, Align: align.Right}),
		),
	}
	for _, item := range invoice.Items {
		name := fmt.Sprintf("%s [%s]", item.Name, item.TaxGroup)
		if item.HasPriceModification() {
			name += fmt.Sprintf(" -%s%%", item.DiscountPercent().String())
		}
		rows = append(rows, textRow(
			text.NewCol(6, name, valueStyle),
			text.NewCol(2, format.Quantity(item.Quantity), rightStyle),
			text.NewCol(2, fmt.Sprintf("%d", item.Price), rightStyle),
			text.NewCol(2, format.Amount(item.Total()), rightStyle),
		))
	}
	return rows
}

func (r *PDFRenderer) totalRows(invoice domain.Invoice) []core.Row {
	rows := []core.Row{}
	if !invoice.HAB.IsZero() {
		rows = append(rows, amountRow("Total HT "+format.TaxGroup(domain.TaxGroupB), format.Amount(invoice.HAB)))
		rows = append(rows, amountRow("TVA "+format.TaxGroup(domain.TaxGroupB), format.Amount(invoice.VAB)))
	}
	if !invoice.HAD.IsZero() {
		rows = append(rows, amountRow("Total HT "+format.TaxGroup(domain.TaxGroupD), format.Amount(invoice.HAD)))
		rows = append(rows, amountRow("TVA "+format.TaxGroup(domain.TaxGroupD), format.Amount(invoice.VAD)))
	}
	if !invoice.TS.IsZero() {
		rows = append(rows, amountRow("Taxe spécifique", format.Amount(invoice.TS)))
	}
	if !invoice.AIBAmount.IsZero() {
		rows = append(rows, amountRow(fmt.Sprintf("AIB %d%%", invoice.AIB.Rate()), format.Amount(invoice.AIBAmount)))
	}
	rows = append(rows, textRow(
		col.New(6),
		text.NewCol(3, "TOTAL", labelStyle),
		text.NewCol(3, format.Money(invoice.Total), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	))
	for _, payment := range invoice.Payments {
		rows = append(rows, amountRow(string(payment.Method), fmt.Sprintf("%d", payment.Amount)))
	}
	return rows
}

func (r *PDFRenderer) securityRows(invoice domain.Invoice) []core.Row {
	rows := []core.Row{
		pair("Code MECeF/DGI", format.SecurityCode(invoice.CodeMECeFDGI)),
		pair("MECeF NIM", format.SecurityCode(invoice.NIM)),
		pair("Compteurs", format.SecurityCode(invoice.Counters)),
	}
	rows = append(rows, row.New(40).Add(
		col.New(4),
		code.NewQrCol(4, *invoice.QRCode, props.Rect{Center: true, Percent: 100}),
		col.New(4),
	))
	return rows
}

func pair(label, value string) core.Row {
	return textRow(
		text.NewCol(4, label, labelStyle),
		text.NewCol(8, value, valueStyle),
	)
}

func amountRow(label, value string) core.Row {
	return textRow(
		col.New(6),
		text.NewCol(3, label, valueStyle),
		text.NewCol(3, value, rightStyle),
	)
}

func textRow(cols ...core.Col) core.Row {
	return row.New(5).Add(cols...)
}
