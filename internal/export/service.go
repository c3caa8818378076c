// Package export renders stored extraction results as XLSX workbooks for
// the finance back office.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sygefi/ocr-mandats/internal/repository"
)

// Service produces XLSX bytes from the results store.
type Service struct {
	store  *repository.Store
	logger *slog.Logger
}

func NewService(store *repository.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// ExportResultsXLSX returns a workbook listing up to limit stored results,
// newest first.
func (s *Service) ExportResultsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	recs, err := s.store.List(ctx, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	return s.render(recs, start)
}

func (s *Service) render(recs []*repository.ResultRecord, start time.Time) ([]byte, error) {
	f := excelize.NewFile()
	const sheet = "Extractions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// drop the default sheet excelize creates
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Date",
		"Fichier",
		"Mandat",
		"Bordereau",
		"Exercice",
		"Moteur",
		"Fallback",
		"Confiance",
		"Valide",
		"Durée (ms)",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		if !r.CreatedAt.IsZero() {
			write(1, r.CreatedAt.Format("2006-01-02 15:04"))
		} else {
			write(1, "")
		}
		write(2, r.Filename)
		write(3, r.MandatRef)
		write(4, r.BordereauRef)
		write(5, r.Exercice)
		write(6, r.PrimaryEngine)
		write(7, r.FallbackTriggered)
		write(8, fmt.Sprintf("%.2f", r.Confidence))
		write(9, r.Success)
		write(10, r.ProcessingMS)

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 18) // date
	_ = f.SetColWidth(sheet, "B", "B", 32) // filename
	_ = f.SetColWidth(sheet, "C", "E", 14) // references
	_ = f.SetColWidth(sheet, "F", "F", 12) // engine
	_ = f.SetColWidth(sheet, "H", "H", 10) // confidence

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
