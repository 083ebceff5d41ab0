package sources

import (
	"context"
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"

	"fluve/internal/etl"
)

// ── XLSX File Source ────────────────────────────────────────
// Reads one worksheet of an Excel workbook. The lab sends results as a
// workbook with a banner above the header row, hence skipRows.

type xlsxFileSource struct{}

func init() { etl.RegisterSource(&xlsxFileSource{}) }

func (s *xlsxFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "xlsx_file",
		Label: "Excel Workbook",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Required: true, Help: "Path to the .xlsx file"},
			{Key: "sheet", Label: "Sheet", Help: "Worksheet name (default: first sheet)"},
			{Key: "hasHeader", Label: "Has Header", Options: []string{"true", "false"}, Default: "true"},
			{Key: "skipRows", Label: "Skip Rows", Default: "0", Help: "Rows to skip before the header"},
			{Key: "types", Label: "Column Types", Help: "Map of column → text|number|integer|boolean|datetime"},
		},
	}
}

func (s *xlsxFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	headers, records, err := readXLSXFile(cfg)
	if err != nil {
		return nil, err
	}
	return inferTextSchema(headers, records, typeOverrides(cfg)), nil
}

func (s *xlsxFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return readAsync(ctx, func() ([]etl.Record, error) {
		_, records, err := readXLSXFile(cfg)
		return records, err
	})
}

func readXLSXFile(cfg etl.SourceConfig) ([]string, []etl.Record, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%s: workbook has no sheets", filePath)
	}
	sheet := cfg.String("sheet")
	if sheet == "" {
		sheet = sheets[0]
	} else if !slices.Contains(sheets, sheet) {
		return nil, nil, fmt.Errorf("%s: sheet %q not found (have %v)", filePath, sheet, sheets)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	headers, data, err := splitHeader(rows, configInt(cfg, "skipRows", 0), configBool(cfg, "hasHeader", true))
	if err != nil {
		return nil, nil, fmt.Errorf("%s[%s]: %w", filePath, sheet, err)
	}
	return headers, rowsToRecords(headers, data), nil
}
