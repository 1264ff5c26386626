// Package export writes local xlsx snapshots of synced report rows,
// one file per run, as an offline backup of what went to the sheet.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reportsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

type Exporter struct {
	dir    string
	logger zerolog.Logger
}

func NewExporter(dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		dir:    dir,
		logger: logger.With().Str("component", "export").Logger(),
	}
}

// WriteSnapshot saves rows to an xlsx file named after the run kind
// and timestamp and returns its path.
func (e *Exporter) WriteSnapshot(kind string, rows []models.ReportRow, at time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Report"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for i, header := range models.SheetHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastHeaderCell, _ := excelize.CoordinatesToCellName(len(models.SheetHeaders), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeaderCell, headerStyle)

	for i, r := range rows {
		for j, v := range r.Values() {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "B", "D", 15)
	_ = f.SetColWidth(sheetName, "E", "J", 14)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("%s_report_%s.xlsx", kind, at.Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.dir, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(rows)).Msg("Excel snapshot created")
	return filePath, nil
}
