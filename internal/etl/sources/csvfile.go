package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"fluve/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local CSV file, such as a lab results export.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Required: true, Help: "Path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Default: ",", Help: "Column delimiter"},
			{Key: "hasHeader", Label: "Has Header", Options: []string{"true", "false"}, Default: "true"},
			{Key: "skipRows", Label: "Skip Rows", Default: "0", Help: "Rows to skip before the header"},
			{Key: "types", Label: "Column Types", Help: "Map of column → text|number|integer|boolean|datetime"},
		},
	}
}

func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	headers, records, err := readCSVFile(cfg)
	if err != nil {
		return nil, err
	}
	return inferTextSchema(headers, records, typeOverrides(cfg)), nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return readAsync(ctx, func() ([]etl.Record, error) {
		_, records, err := readCSVFile(cfg)
		return records, err
	})
}

func readCSVFile(cfg etl.SourceConfig) ([]string, []etl.Record, error) {
	filePath := cfg.String("filePath")
	if filePath == "" {
		return nil, nil, fmt.Errorf("filePath is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delim := cfg.String("delimiter"); delim != "" {
		reader.Comma = []rune(delim)[0]
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("empty csv file")
	}

	headers, data, err := splitHeader(rows, configInt(cfg, "skipRows", 0), configBool(cfg, "hasHeader", true))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return headers, rowsToRecords(headers, data), nil
}
