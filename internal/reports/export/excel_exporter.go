package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the inventory workbook
const (
	SheetSummary    = "Summary"
	SheetCategories = "Categories"
	SheetActivities = "Activities"
	SheetExclusions = "Exclusions"
	SheetWarnings   = "Warnings"
)

// ExcelOptions configures workbook export behavior
type ExcelOptions struct {
	FreezeHeader bool              `json:"freeze_header"`
	AutoFilter   bool              `json:"auto_filter"`
	NumberFormat string            `json:"number_format"`
	HeaderStyle  *ExcelStyleConfig `json:"header_style,omitempty"`
	DataStyle    *ExcelStyleConfig `json:"data_style,omitempty"`
	AutoWidth    bool              `json:"auto_width"`
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool   `json:"font_bold"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FillColor string `json:"fill_color"`
	Alignment string `json:"alignment"` // left, center, right
	Border    bool   `json:"border"`
}

// DefaultExcelOptions returns default workbook options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		FreezeHeader: true,
		AutoFilter:   true,
		NumberFormat: "#,##0.00",
		AutoWidth:    true,
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "4472C4",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
		DataStyle: &ExcelStyleConfig{
			FontSize:  11,
			Alignment: "left",
			Border:    true,
		},
	}
}

// WorkbookExporter writes an emissions inventory to an Excel workbook
type WorkbookExporter struct {
	file    *excelize.File
	options ExcelOptions
	styles  map[*ExcelStyleConfig]int
	number  int
}

// NewWorkbookExporter creates an exporter with an empty workbook
func NewWorkbookExporter(options ExcelOptions) *WorkbookExporter {
	return &WorkbookExporter{
		file:    excelize.NewFile(),
		options: options,
		styles:  make(map[*ExcelStyleConfig]int),
	}
}

// ExportInventory renders the inventory and returns the workbook bytes
func ExportInventory(inv Inventory, options ExcelOptions) ([]byte, error) {
	e := NewWorkbookExporter(options)
	defer e.Close()

	if err := e.WriteInventory(inv); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := e.file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteInventory fills the summary, category, activity, exclusion and warning sheets
func (e *WorkbookExporter) WriteInventory(inv Inventory) error {
	if err := e.file.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	summary := [][]interface{}{
		{"Report ID", inv.ReportID},
		{"Entity", inv.EntityName},
		{"Period start", inv.PeriodStart},
		{"Period end", inv.PeriodEnd},
		{"Input fingerprint", inv.Fingerprint},
		{"Generated", inv.GeneratedAt},
	}
	for _, item := range inv.SummaryItems() {
		summary = append(summary, []interface{}{item.Label, item.Value})
	}
	if err := e.writeTable(SheetSummary, []string{"Item", "Value"}, summary); err != nil {
		return err
	}

	categories := make([][]interface{}, 0, len(inv.Aggregation.ByCategory))
	for _, c := range inv.Aggregation.Categories() {
		kg, _ := inv.Aggregation.ByCategory[c].Float64()
		categories = append(categories, []interface{}{c, kg})
	}
	if err := e.addSheet(SheetCategories, []string{"Category", "Emissions (kgCO2e)"}, categories); err != nil {
		return err
	}

	rows := inv.ActivityRows()
	activities := make([][]interface{}, len(rows))
	for i, row := range rows {
		values := make([]interface{}, len(activityColumns))
		for j, col := range activityColumns {
			values[j] = row[col]
		}
		activities[i] = values
	}
	if err := e.addSheet(SheetActivities, activityLabels, activities); err != nil {
		return err
	}

	exclusions := make([][]interface{}, len(inv.Exclusions))
	for i, x := range inv.Exclusions {
		exclusions[i] = []interface{}{x.Record.ID, string(x.Record.Scope), x.Record.Category, x.Record.ActivityType, x.Code, x.Reason}
	}
	if err := e.addSheet(SheetExclusions, []string{"ID", "Scope", "Category", "Activity type", "Code", "Reason"}, exclusions); err != nil {
		return err
	}

	warnings := make([][]interface{}, len(inv.Warnings))
	for i, w := range inv.Warnings {
		warnings[i] = []interface{}{w}
	}
	return e.addSheet(SheetWarnings, []string{"Warning"}, warnings)
}

// Close closes the workbook
func (e *WorkbookExporter) Close() error {
	return e.file.Close()
}

func (e *WorkbookExporter) addSheet(name string, header []string, rows [][]interface{}) error {
	if _, err := e.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return e.writeTable(name, header, rows)
}

// writeTable writes a styled header row followed by data rows
func (e *WorkbookExporter) writeTable(sheet string, header []string, rows [][]interface{}) error {
	headerStyle, err := e.style(e.options.HeaderStyle)
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	dataStyle, err := e.style(e.options.DataStyle)
	if err != nil {
		return fmt.Errorf("failed to create data style: %w", err)
	}

	widths := make([]float64, len(header))
	for i, col := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col); err != nil {
			return fmt.Errorf("failed to set header: %w", err)
		}
		if headerStyle > 0 {
			e.file.SetCellStyle(sheet, cell, cell, headerStyle)
		}
		widths[i] = estimateCellWidth(col)
	}

	for r, row := range rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := e.setCellValue(sheet, cell, val, dataStyle); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			if c < len(widths) {
				if w := estimateCellWidth(val); w > widths[c] {
					widths[c] = w
				}
			}
		}
	}

	if e.options.FreezeHeader {
		e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	if e.options.AutoFilter && len(rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(header), len(rows)+1)
		e.file.AutoFilter(sheet, "A1:"+last, nil)
	}
	if e.options.AutoWidth {
		for i, w := range widths {
			col, _ := excelize.ColumnNumberToName(i + 1)
			e.file.SetColWidth(sheet, col, col, min(max(w, 10), 60))
		}
	}
	return nil
}

// style creates (once) the excelize style for a config; nil yields 0
func (e *WorkbookExporter) style(config *ExcelStyleConfig) (int, error) {
	if config == nil {
		return 0, nil
	}
	if id, ok := e.styles[config]; ok {
		return id, nil
	}

	style := &excelize.Style{
		Font: &excelize.Font{
			Bold: config.FontBold,
			Size: float64(config.FontSize),
		},
	}
	if config.FontColor != "" {
		style.Font.Color = config.FontColor
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{config.FillColor},
		}
	}
	if config.Alignment != "" {
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}

	id, err := e.file.NewStyle(style)
	if err != nil {
		return 0, err
	}
	e.styles[config] = id
	return id, nil
}

// setCellValue sets a cell value with date and number formats applied
func (e *WorkbookExporter) setCellValue(sheet, cell string, val interface{}, dataStyle int) error {
	switch v := val.(type) {
	case nil:
		return e.file.SetCellValue(sheet, cell, "")
	case time.Time:
		if v.IsZero() {
			return e.file.SetCellValue(sheet, cell, "")
		}
		if err := e.file.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		style, err := e.file.NewStyle(&excelize.Style{NumFmt: 14})
		if err != nil {
			return err
		}
		return e.file.SetCellStyle(sheet, cell, cell, style)
	case float64:
		if err := e.file.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if e.options.NumberFormat != "" {
			if e.number == 0 {
				style, err := e.file.NewStyle(&excelize.Style{CustomNumFmt: &e.options.NumberFormat})
				if err != nil {
					return err
				}
				e.number = style
			}
			return e.file.SetCellStyle(sheet, cell, cell, e.number)
		}
		return nil
	default:
		if err := e.file.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if dataStyle > 0 {
			return e.file.SetCellStyle(sheet, cell, cell, dataStyle)
		}
		return nil
	}
}

// estimateCellWidth estimates the display width of a cell value
func estimateCellWidth(val interface{}) float64 {
	if val == nil {
		return 0
	}
	return float64(len(fmt.Sprintf("%v", val))) * 1.2
}
