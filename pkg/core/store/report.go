package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sp1500_float/pkg/models"

	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet = "Results"
	errorsSheet  = "Errors"
)

// BatchReportName is the file name stem of a batch report, stamped with the
// batch start time.
func BatchReportName(res *models.BatchResult) string {
	return "batch_analysis_" + res.StartedAt.UTC().Format("20060102_150405")
}

// WriteBatchJSON writes the batch result under dir and returns the path.
func WriteBatchJSON(dir string, res *models.BatchResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch result: %w", err)
	}
	path := filepath.Join(dir, BatchReportName(res)+".json")
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// WriteBatchXLSX writes a workbook with one row per succeeded ticker on the
// Results sheet and one row per failed or skipped ticker on the Errors sheet.
func WriteBatchXLSX(dir string, res *models.BatchResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", dir, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), resultsSheet); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(errorsSheet); err != nil {
		return "", err
	}

	header := []any{"Ticker", "Company", "CIK", "Filing Date", "Filing URL"}
	for _, k := range models.ResultKeys {
		header = append(header, k)
	}
	header = append(header, "Warnings")
	if err := setRow(f, resultsSheet, 1, header); err != nil {
		return "", err
	}
	if err := setRow(f, errorsSheet, 1, []any{"Ticker", "Status", "Stage", "Message"}); err != nil {
		return "", err
	}

	resultRow, errorRow := 2, 2
	for _, out := range res.Outcomes {
		if out.Report != nil {
			rep := out.Report
			row := []any{rep.Ticker, rep.CompanyName, rep.CIK, rep.FilingDate, rep.FilingURL}
			values := rep.Result.Values()
			for _, k := range models.ResultKeys {
				row = append(row, values[k])
			}
			row = append(row, warningCodes(rep.Warnings))
			if err := setRow(f, resultsSheet, resultRow, row); err != nil {
				return "", err
			}
			resultRow++
			continue
		}
		if out.Error == nil {
			continue
		}
		row := []any{out.Ticker, string(out.Status), out.Error.Stage, out.Error.Message}
		if err := setRow(f, errorsSheet, errorRow, row); err != nil {
			return "", err
		}
		errorRow++
	}

	path := filepath.Join(dir, BatchReportName(res)+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook %s: %w", path, err)
	}
	return path, nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func warningCodes(ws []models.Warning) string {
	codes := make([]string, 0, len(ws))
	for _, w := range ws {
		codes = append(codes, string(w.Code))
	}
	return strings.Join(codes, ",")
}
