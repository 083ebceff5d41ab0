package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"fluve/internal/etl"
	"fluve/internal/frame"
)

// ── Shared helpers ─────────────────────────────────────────
// Tabular sources (csv, xlsx) share header handling and type inference;
// document sources (json, redcap) share record flattening.

// configInt reads an integer config value written either as a number or a string.
func configInt(cfg etl.SourceConfig, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// configBool reads a boolean config value; anything but "false" is true.
func configBool(cfg etl.SourceConfig, key string, def bool) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		return strings.ToLower(strings.TrimSpace(v)) != "false"
	}
	return def
}

// typeOverrides reads the optional `types:` map (column → field type).
func typeOverrides(cfg etl.SourceConfig) map[string]string {
	out := map[string]string{}
	switch m := cfg["types"].(type) {
	case map[string]any:
		for k, v := range m {
			out[k] = fmt.Sprint(v)
		}
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// splitHeader drops skipRows leading rows, then takes the header row.
// Without a header, columns are named col_1, col_2, ...
func splitHeader(rows [][]string, skipRows int, hasHeader bool) ([]string, [][]string, error) {
	if skipRows > 0 {
		if skipRows >= len(rows) {
			return nil, nil, fmt.Errorf("skipRows %d leaves no data", skipRows)
		}
		rows = rows[skipRows:]
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no rows")
	}
	if hasHeader {
		headers := make([]string, len(rows[0]))
		for i, h := range rows[0] {
			headers[i] = strings.TrimSpace(h)
			if headers[i] == "" {
				headers[i] = fmt.Sprintf("col_%d", i+1)
			}
		}
		return headers, rows[1:], nil
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	headers := make([]string, width)
	for i := range headers {
		headers[i] = fmt.Sprintf("col_%d", i+1)
	}
	return headers, rows, nil
}

// rowsToRecords zips string rows with headers. Blank cells become nil;
// short rows leave their tail nil.
func rowsToRecords(headers []string, rows [][]string) []etl.Record {
	out := make([]etl.Record, 0, len(rows))
	for _, row := range rows {
		data := make(map[string]any, len(headers))
		blank := true
		for j, h := range headers {
			var v any
			if j < len(row) {
				if s := strings.TrimSpace(row[j]); s != "" {
					v = s
					blank = false
				}
			}
			data[h] = v
		}
		if blank {
			continue
		}
		out = append(out, etl.Record{Data: data})
	}
	return out
}

// inferTextSchema types each column from its non-blank cells: all integers
// → "integer", all numbers → "number", all dates → "datetime", else "text".
// Codes with a leading zero ("007") stay text.
func inferTextSchema(headers []string, records []etl.Record, overrides map[string]string) *etl.Schema {
	schema := &etl.Schema{Fields: make([]etl.Field, len(headers))}
	for i, h := range headers {
		typ, ok := overrides[h]
		if !ok {
			typ = inferColumn(records, h)
		}
		schema.Fields[i] = etl.Field{Name: h, Type: typ}
	}
	return schema
}

func inferColumn(records []etl.Record, name string) string {
	isInt, isNum, isTime, seen := true, true, true, false
	for _, r := range records {
		s, ok := r.Data[name].(string)
		if !ok {
			continue
		}
		seen = true
		if len(s) > 1 && s[0] == '0' && s[1] != '.' {
			isInt, isNum = false, false
		}
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			isNum = false
		}
		if _, err := frame.ParseTime(s); err != nil {
			isTime = false
		}
		if !isInt && !isNum && !isTime {
			return "text"
		}
	}
	switch {
	case !seen:
		return "text"
	case isInt:
		return "integer"
	case isNum:
		return "number"
	case isTime:
		return "datetime"
	}
	return "text"
}

// toRecords converts a decoded JSON value into records.
func toRecords(raw any) []etl.Record {
	switch v := raw.(type) {
	case []any:
		records := make([]etl.Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				records = append(records, etl.Record{Data: flattenMap(m)})
			}
		}
		return records
	case map[string]any:
		return []etl.Record{{Data: flattenMap(v)}}
	default:
		return nil
	}
}

// flattenMap keeps scalar values and serializes nested ones as JSON text.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, float64, bool, nil:
			flat[k] = v
		default:
			b, _ := json.Marshal(v)
			flat[k] = string(b)
		}
	}
	return flat
}

// inferSchema types fields from the Go values of decoded documents. Field
// order is alphabetical since JSON objects carry none.
func inferSchema(records []etl.Record) *etl.Schema {
	types := make(map[string]string)
	for _, rec := range records {
		for k, v := range rec.Data {
			t := goType(v)
			prev, seen := types[k]
			switch {
			case !seen || prev == "":
				types[k] = t
			case t != "" && t != prev:
				types[k] = "text"
			}
		}
	}
	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)

	schema := &etl.Schema{Fields: make([]etl.Field, len(names))}
	for i, n := range names {
		t := types[n]
		if t == "" {
			t = "text"
		}
		schema.Fields[i] = etl.Field{Name: n, Type: t}
	}
	return schema
}

func goType(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return "text"
	}
}

// emit streams records until done or ctx is cancelled.
func emit(ctx context.Context, out chan<- etl.Record, records []etl.Record) {
	for _, rec := range records {
		select {
		case out <- rec:
		case <-ctx.Done():
			return
		}
	}
}

// readAsync runs load in a goroutine and streams its records, following the
// Read contract of etl.Source.
func readAsync(ctx context.Context, load func() ([]etl.Record, error)) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, err := load()
		if err != nil {
			errCh <- err
			return
		}
		emit(ctx, out, records)
	}()

	return out, errCh
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
