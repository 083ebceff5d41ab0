package sources

import (
	"context"
	"fmt"
	"time"

	"fluve/internal/etl"
	"fluve/internal/frame"
	"fluve/internal/redcap"
)

// ── REDCap Source ──────────────────────────────────────────
// Exports the records of one REDCap project. The pipeline talks to REDCap
// directly; this source exists for previews and ad-hoc extracts.

type redcapSource struct{}

func init() { etl.RegisterSource(&redcapSource{}) }

func (s *redcapSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "redcap",
		Label: "REDCap Project",
		ConfigFields: []etl.ConfigField{
			{Key: "url", Label: "API URL", Required: true},
			{Key: "tokenSecret", Label: "Token Secret", Required: true, Help: "Secret store key holding the project API token"},
			{Key: "fields", Label: "Fields", Help: "List of fields to export (default: all)"},
			{Key: "forms", Label: "Forms"},
			{Key: "events", Label: "Events"},
			{Key: "rawOrLabel", Label: "Raw or Label", Options: []string{"raw", "label"}, Default: "label"},
		},
	}
}

func resolveProject(cfg etl.SourceConfig) (*redcap.HTTPClient, redcap.Project, error) {
	p := redcap.Project{
		Name:       cfg.String("tokenSecret"),
		Fields:     configList(cfg, "fields"),
		Forms:      configList(cfg, "forms"),
		Events:     configList(cfg, "events"),
		RawOrLabel: cfg.String("rawOrLabel"),
	}
	apiURL := cfg.String("url")
	if apiURL == "" || p.Name == "" {
		return nil, p, fmt.Errorf("url and tokenSecret are required")
	}
	if secretLookup == nil {
		return nil, p, fmt.Errorf("secret lookup not initialized")
	}
	token, err := secretLookup(p.Name)
	if err != nil {
		return nil, p, fmt.Errorf("token %q: %w", p.Name, err)
	}
	p.Token = token
	return redcap.NewHTTPClient(apiURL, 60*time.Second, nil), p, nil
}

func (s *redcapSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	client, p, err := resolveProject(cfg)
	if err != nil {
		return nil, err
	}
	md, err := client.ExportMetadata(ctx, p)
	if err != nil {
		return nil, err
	}
	recs, err := client.ExportRecords(ctx, p)
	if err != nil {
		return nil, err
	}

	types := md.Types()
	names := redcap.ToTable(recs, p.Fields).Names()
	schema := &etl.Schema{Fields: make([]etl.Field, len(names))}
	for i, n := range names {
		schema.Fields[i] = etl.Field{Name: n, Type: fieldType(types[n].Kind)}
	}
	return schema, nil
}

func (s *redcapSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return readAsync(ctx, func() ([]etl.Record, error) {
		client, p, err := resolveProject(cfg)
		if err != nil {
			return nil, err
		}
		recs, err := client.ExportRecords(ctx, p)
		if err != nil {
			return nil, err
		}
		out := make([]etl.Record, len(recs))
		for i, rec := range recs {
			data := make(map[string]any, len(rec))
			for k, v := range rec {
				if v != "" {
					data[k] = v
				} else {
					data[k] = nil
				}
			}
			out[i] = etl.Record{Data: data}
		}
		return out, nil
	})
}

// fieldType maps a dictionary dtype onto the source field types. Categories
// travel as text.
func fieldType(k frame.Kind) string {
	switch k {
	case frame.KindInt:
		return "integer"
	case frame.KindFloat:
		return "number"
	case frame.KindTime:
		return "datetime"
	case frame.KindBool:
		return "boolean"
	}
	return "text"
}

// configList reads a list config value written as a YAML sequence or a
// comma-separated string.
func configList(cfg etl.SourceConfig, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return splitList(v)
	}
	return nil
}
