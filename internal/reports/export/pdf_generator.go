package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFGenerator renders the one-page disclosure summary
type PDFGenerator struct {
	pdf     *gofpdf.Fpdf
	options PDFOptions
}

// PDFOptions configures PDF generation
type PDFOptions struct {
	PageSize       string     `json:"page_size"`   // A4, Letter, Legal
	Orientation    string     `json:"orientation"` // portrait, landscape
	DateFormat     string     `json:"date_format"`
	IncludePageNum bool       `json:"include_page_num"`
	HeaderColor    PDFColor   `json:"header_color"`
	AlternateRows  bool       `json:"alternate_rows"`
	AlternateColor PDFColor   `json:"alternate_color"`
	FontFamily     string     `json:"font_family"`
	FontSize       float64    `json:"font_size"`
	HeaderFontSize float64    `json:"header_font_size"`
	TitleFontSize  float64    `json:"title_font_size"`
	Margins        PDFMargins `json:"margins"`
}

// PDFColor represents an RGB color
type PDFColor struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// PDFMargins represents page margins
type PDFMargins struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// DefaultPDFOptions returns default PDF options
func DefaultPDFOptions() PDFOptions {
	return PDFOptions{
		PageSize:       "A4",
		Orientation:    "portrait",
		DateFormat:     "2006-01-02",
		IncludePageNum: true,
		HeaderColor:    PDFColor{R: 68, G: 114, B: 196},
		AlternateRows:  true,
		AlternateColor: PDFColor{R: 242, G: 242, B: 242},
		FontFamily:     "Arial",
		FontSize:       10,
		HeaderFontSize: 11,
		TitleFontSize:  16,
		Margins: PDFMargins{
			Left:   15,
			Right:  15,
			Top:    20,
			Bottom: 20,
		},
	}
}

// NewPDFGenerator creates a new PDF generator
func NewPDFGenerator(options PDFOptions) *PDFGenerator {
	orientation := "P"
	if options.Orientation == "landscape" {
		orientation = "L"
	}

	pdf := gofpdf.New(orientation, "mm", options.PageSize, "")
	pdf.SetMargins(options.Margins.Left, options.Margins.Top, options.Margins.Right)
	pdf.SetAutoPageBreak(true, options.Margins.Bottom)

	g := &PDFGenerator{pdf: pdf, options: options}
	g.setFooter()
	return g
}

// ExportSummary renders the summary of an inventory and returns the PDF bytes
func ExportSummary(inv Inventory, options PDFOptions) ([]byte, error) {
	g := NewPDFGenerator(options)
	g.WriteSummary(inv)

	var buf bytes.Buffer
	if err := g.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render summary PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSummary lays out the title block, headline figures, category table and warnings
func (g *PDFGenerator) WriteSummary(inv Inventory) {
	g.pdf.AddPage()

	title := "Greenhouse gas emissions summary"
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.TitleFontSize)
	g.pdf.SetTextColor(0, 0, 0)
	g.pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")

	subtitle := fmt.Sprintf("%s to %s", inv.PeriodStart.Format(g.options.DateFormat), inv.PeriodEnd.Format(g.options.DateFormat))
	if inv.EntityName != "" {
		subtitle = inv.EntityName + ", " + subtitle
	}
	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize+2)
	g.pdf.SetTextColor(100, 100, 100)
	g.pdf.CellFormat(0, 8, subtitle, "", 1, "C", false, 0, "")

	generated := inv.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize-1)
	g.pdf.SetTextColor(128, 128, 128)
	g.pdf.CellFormat(0, 6, "Generated: "+generated.Format(g.options.DateFormat), "", 1, "R", false, 0, "")

	g.addSection("Headline figures", inv.SummaryItems())

	rows := make([][]string, 0, len(inv.Aggregation.ByCategory))
	for _, c := range inv.Aggregation.Categories() {
		rows = append(rows, []string{c, inv.Aggregation.ByCategory[c].StringFixed(2)})
	}
	if len(rows) > 0 {
		g.pdf.Ln(6)
		g.addTable([]string{"Category", "Emissions (kgCO2e)"}, []float64{110, 70}, rows)
	}

	if len(inv.Warnings) > 0 {
		g.pdf.Ln(6)
		g.pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize+2)
		g.pdf.SetTextColor(0, 0, 0)
		g.pdf.CellFormat(0, 8, "Warnings", "", 1, "L", false, 0, "")
		g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize-1)
		for _, w := range inv.Warnings {
			g.pdf.MultiCell(0, 5, "- "+w, "", "L", false)
		}
	}

	if inv.Fingerprint != "" {
		g.pdf.Ln(6)
		g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize-2)
		g.pdf.SetTextColor(128, 128, 128)
		g.pdf.MultiCell(0, 4, "Input fingerprint: "+inv.Fingerprint, "", "L", false)
	}
}

// addSection writes label/value pairs under a section title
func (g *PDFGenerator) addSection(title string, items []SummaryItem) {
	g.pdf.Ln(6)
	g.pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize+2)
	g.pdf.SetTextColor(0, 0, 0)
	g.pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	g.pdf.Ln(2)

	for _, item := range items {
		g.pdf.SetFont(g.options.FontFamily, "B", g.options.FontSize)
		g.pdf.CellFormat(80, 6, item.Label+":", "", 0, "L", false, 0, "")
		g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		g.pdf.CellFormat(0, 6, formatValue(item.Value, g.options.DateFormat), "", 1, "L", false, 0, "")
	}
}

// addTable writes a header row and alternating data rows
func (g *PDFGenerator) addTable(labels []string, widths []float64, rows [][]string) {
	header := func() {
		g.pdf.SetFont(g.options.FontFamily, "B", g.options.HeaderFontSize)
		g.pdf.SetFillColor(g.options.HeaderColor.R, g.options.HeaderColor.G, g.options.HeaderColor.B)
		g.pdf.SetTextColor(255, 255, 255)
		for i, label := range labels {
			g.pdf.CellFormat(widths[i], 8, label, "1", 0, "C", true, 0, "")
		}
		g.pdf.Ln(-1)
		g.pdf.SetFont(g.options.FontFamily, "", g.options.FontSize)
		g.pdf.SetTextColor(0, 0, 0)
	}
	header()

	_, pageHeight := g.pdf.GetPageSize()
	for i, row := range rows {
		if g.pdf.GetY()+8 > pageHeight-g.options.Margins.Bottom {
			g.pdf.AddPage()
			header()
		}
		if g.options.AlternateRows && i%2 == 1 {
			g.pdf.SetFillColor(g.options.AlternateColor.R, g.options.AlternateColor.G, g.options.AlternateColor.B)
		} else {
			g.pdf.SetFillColor(255, 255, 255)
		}
		for j, val := range row {
			align := "L"
			if j > 0 {
				align = "R"
			}
			g.pdf.CellFormat(widths[j], 7, val, "1", 0, align, true, 0, "")
		}
		g.pdf.Ln(-1)
	}
}

// setFooter sets up the page footer
func (g *PDFGenerator) setFooter() {
	g.pdf.SetFooterFunc(func() {
		if !g.options.IncludePageNum {
			return
		}
		g.pdf.SetY(-15)
		g.pdf.SetFont(g.options.FontFamily, "", 8)
		g.pdf.SetTextColor(128, 128, 128)
		g.pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", g.pdf.PageNo()), "", 0, "C", false, 0, "")
	})
}

// formatValue formats a value for display
func formatValue(val interface{}, dateFormat string) string {
	switch v := val.(type) {
	case nil:
		return ""
	case time.Time:
		if v.IsZero() {
			return ""
		}
		return v.Format(dateFormat)
	case float64:
		return fmt.Sprintf("%.2f", v)
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprintf("%v", v)
	}
}
