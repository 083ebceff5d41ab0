package etl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fluve/internal/frame"
)

// ── Extraction ─────────────────────────────────────────────
// Orchestrates: source.Read → transform chain → frame.Table.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// TransformConfig is a declarative transform definition, as found under a
// source's `transforms:` list in the config file.
type TransformConfig struct {
	Type   string         `json:"type" yaml:"type"` // "filter" | "rename" | "select" | "dedupe" | "type_cast" | "default_value"
	Config map[string]any `json:"config" yaml:"config"`
}

// ExtractResult is the outcome of one extraction.
type ExtractResult struct {
	SourceType string        `json:"sourceType"`
	RowsRead   int           `json:"rowsRead"`
	RowsKept   int           `json:"rowsKept"`
	Duration   time.Duration `json:"duration"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs extractions against the registered sources and publishes
// finished tables through a Destination.
type Engine struct {
	Log  *zap.Logger
	Dest Destination
}

// NewEngine returns an engine with no destination configured.
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Log: log}
}

// Extract reads every record of a source through the transform chain and
// collects the survivors into a table. Column kinds follow the discovered
// schema; fields introduced by transforms are text.
func (e *Engine) Extract(ctx context.Context, sourceType string, cfg SourceConfig, transforms []TransformConfig) (*frame.Table, *ExtractResult, error) {
	start := time.Now()
	result := &ExtractResult{SourceType: sourceType}

	source, cfg, err := resolve(sourceType, cfg)
	if err != nil {
		return nil, result, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, result, fmt.Errorf("discover: %w", err)
	}

	ts, err := buildTransformers(transforms)
	if err != nil {
		return nil, result, err
	}

	recCh, errCh := source.Read(ctx, cfg)
	var records []Record
	for rec := range recCh {
		result.RowsRead++
		if out, keep := ApplyTransformers(rec, ts); keep {
			records = append(records, out)
		}
	}
	if err := <-errCh; err != nil {
		return nil, result, fmt.Errorf("read: %w", err)
	}

	out := deriveSchemaFromRecords(records, schema)
	t := ToTable(out, records)
	result.RowsKept = t.Len()
	result.Duration = time.Since(start)

	e.logger().Info("extract complete",
		zap.String("source", sourceType),
		zap.Int("read", result.RowsRead),
		zap.Int("kept", result.RowsKept),
		zap.Duration("took", result.Duration))
	return t, result, nil
}

// Preview executes only the source read phase and returns up to maxRows records.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) ([]Record, *Schema, error) {
	source, cfg, err := resolve(sourceType, cfg)
	if err != nil {
		return nil, nil, err
	}

	schema, err := source.Discover(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("discover: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(ctx, cfg)

	var records []Record
	for rec := range recCh {
		records = append(records, rec)
		if len(records) >= maxRows {
			break
		}
	}

	// Stop the reader and drain whatever it already queued.
	cancel()
	go func() {
		for range recCh {
		}
	}()
	if err := <-errCh; err != nil && ctx.Err() == nil {
		return records, schema, err
	}

	return records, schema, nil
}

// Publish writes a finished table to the configured destination.
func (e *Engine) Publish(ctx context.Context, target string, t *frame.Table, mode SyncMode) (int, error) {
	if e.Dest == nil {
		return 0, fmt.Errorf("publish %s: no destination configured", target)
	}
	n, err := e.Dest.Write(ctx, target, t, mode)
	if err != nil {
		return n, fmt.Errorf("publish %s: %w", target, err)
	}
	e.logger().Info("published", zap.String("target", target), zap.Int("rows", n), zap.String("mode", string(mode)))
	return n, nil
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// buildTransformers converts declarative TransformConfig into Transformer instances.
func buildTransformers(configs []TransformConfig) ([]Transformer, error) {
	var ts []Transformer

	for i, tc := range configs {
		switch tc.Type {
		case "filter":
			field, _ := tc.Config["field"].(string)
			op, _ := tc.Config["op"].(string)
			if field == "" || op == "" {
				return nil, fmt.Errorf("transform %d: filter needs field and op", i)
			}
			ts = append(ts, &FilterTransform{Field: field, Op: op, Value: tc.Config["value"]})

		case "rename":
			mapping, ok := tc.Config["mapping"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("transform %d: rename needs a mapping", i)
			}
			m := make(map[string]string, len(mapping))
			for k, v := range mapping {
				m[k] = fmt.Sprint(v)
			}
			ts = append(ts, &RenameTransform{Mapping: m})

		case "select":
			fields, ok := tc.Config["fields"].([]any)
			if !ok {
				return nil, fmt.Errorf("transform %d: select needs fields", i)
			}
			ff := make([]string, 0, len(fields))
			for _, f := range fields {
				ff = append(ff, fmt.Sprint(f))
			}
			ts = append(ts, &SelectTransform{Fields: ff})

		case "dedupe":
			key, _ := tc.Config["key"].(string)
			if key == "" {
				return nil, fmt.Errorf("transform %d: dedupe needs a key", i)
			}
			ts = append(ts, NewDedupeTransform(key))

		case "type_cast":
			field, _ := tc.Config["field"].(string)
			castType, _ := tc.Config["castType"].(string)
			if field == "" || castType == "" {
				return nil, fmt.Errorf("transform %d: type_cast needs field and castType", i)
			}
			ts = append(ts, &TypeCastTransform{Field: field, CastType: castType})

		case "default_value":
			field, _ := tc.Config["field"].(string)
			if field == "" {
				return nil, fmt.Errorf("transform %d: default_value needs a field", i)
			}
			ts = append(ts, &DefaultValueTransform{Field: field, Value: tc.Config["value"]})

		default:
			return nil, fmt.Errorf("transform %d: unknown type %q", i, tc.Type)
		}
	}

	return ts, nil
}

// deriveSchemaFromRecords builds a schema from the keys present in the
// transformed records, in source order first. Types come from the source
// schema where the field survived; cast fields take the type of their value.
func deriveSchemaFromRecords(records []Record, sourceSchema *Schema) *Schema {
	if len(records) == 0 {
		if sourceSchema == nil {
			return &Schema{}
		}
		return sourceSchema
	}

	present := make(map[string]bool)
	for _, r := range records {
		for k := range r.Data {
			present[k] = true
		}
	}

	var fields []Field
	seen := make(map[string]bool)
	if sourceSchema != nil {
		for _, f := range sourceSchema.Fields {
			if present[f.Name] {
				seen[f.Name] = true
				fields = append(fields, Field{Name: f.Name, Type: observedType(records, f.Name, f.Type)})
			}
		}
	}
	for _, r := range records {
		for _, k := range sortedKeys(r.Data) {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, Field{Name: k, Type: observedType(records, k, "text")})
			}
		}
	}

	return &Schema{Fields: fields}
}

// observedType returns the type of the first non-nil value when every
// non-nil value of the field shares one Go type, otherwise fallback.
func observedType(records []Record, name, fallback string) string {
	typ := ""
	for _, r := range records {
		v := r.Data[name]
		if v == nil {
			continue
		}
		var t string
		switch v.(type) {
		case bool:
			t = "boolean"
		case int, int64:
			t = "integer"
		case float64, float32:
			t = "number"
		case time.Time:
			t = "datetime"
		default:
			return fallback
		}
		if typ != "" && typ != t {
			return fallback
		}
		typ = t
	}
	if typ == "" {
		return fallback
	}
	return typ
}
