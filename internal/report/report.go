// Package report exports the media library and run history as a spreadsheet.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

const (
	SheetSummary = "Summary"
	SheetImages  = "Images"
	SheetRuns    = "Runs"
)

// Source provides the data of a report
type Source interface {
	GetImageStats(ctx context.Context, filter models.StatsFilter) (models.ImageStatistics, error)
	ListImages(ctx context.Context) ([]models.MediaImage, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// Write renders the report as an xlsx workbook into w. runLimit caps the run history.
func Write(ctx context.Context, src Source, w io.Writer, runLimit int) error {
	stats, err := src.GetImageStats(ctx, models.StatsFilter{})
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}
	images, err := src.ListImages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	runs, err := src.ListRuns(ctx, runLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	summary := [][]any{
		{"Total images", stats.TotalImages},
		{"With alt text", stats.WithAltText},
		{"Missing alt text", stats.MissingAltText},
		{"Missing (%)", stats.MissingPercentage},
		{"With alt text (%)", stats.WithAltPercentage()},
		{"Generated at", time.Now().UTC().Format(time.RFC3339)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(SheetSummary, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 20); err != nil {
		return err
	}

	if err := writeImages(f, images, bold); err != nil {
		return err
	}
	if err := writeRuns(f, runs, bold); err != nil {
		return err
	}

	return f.Write(w)
}

func writeImages(f *excelize.File, images []models.MediaImage, header int) error {
	if _, err := f.NewSheet(SheetImages); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(SheetImages)
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(2, 3, 40); err != nil {
		return err
	}
	if err := sw.SetColWidth(6, 6, 60); err != nil {
		return err
	}

	head := []any{"ID", "Object key", "Title", "Parent", "Status", "Alt text", "Processed at", "Last run"}
	if err := sw.SetRow("A1", head, excelize.RowOpts{StyleID: header}); err != nil {
		return err
	}
	for i, img := range images {
		processed := ""
		if img.ProcessedAt != nil {
			processed = img.ProcessedAt.UTC().Format(time.RFC3339)
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{img.ID, img.ObjectKey, img.Title, img.ParentID, img.AltStatus, img.AltText, processed, img.LastRunID}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func writeRuns(f *excelize.File, runs []models.RunRecord, header int) error {
	if _, err := f.NewSheet(SheetRuns); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(SheetRuns)
	if err != nil {
		return err
	}

	head := []any{"Run", "Status", "Total", "Processed", "Failed", "Language", "Overwrite", "Started", "Updated"}
	if err := sw.SetRow("A1", head, excelize.RowOpts{StyleID: header}); err != nil {
		return err
	}
	for i, run := range runs {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			run.ID,
			run.Status,
			run.Total,
			run.Processed,
			run.Failed,
			run.Options.Language,
			run.Options.OverwriteExisting,
			run.CreatedAt.UTC().Format(time.RFC3339),
			run.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}
