// Package redcap exports survey metadata and records from a REDCap project.
package redcap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Project identifies one REDCap project export.
type Project struct {
	Name   string
	Token  string
	Fields []string
	Forms  []string
	Events []string
	// RawOrLabel selects coded values ("raw") or display labels ("label").
	RawOrLabel string
}

// Client is the narrow export surface the pipeline depends on.
type Client interface {
	ExportMetadata(ctx context.Context, p Project) (Metadata, error)
	ExportRecords(ctx context.Context, p Project) ([]map[string]string, error)
}

// APIError is a non-success response from the REDCap API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("redcap api %d: %s", e.Status, e.Message)
}

// ── HTTP client ────────────────────────────────────────────

// HTTPClient talks to the REDCap API endpoint with form-encoded POSTs.
type HTTPClient struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

// NewHTTPClient returns a client for apiURL with the given request timeout.
func NewHTTPClient(apiURL string, timeout time.Duration, log *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{url: apiURL, http: &http.Client{Timeout: timeout}, log: log}
}

func (c *HTTPClient) ExportMetadata(ctx context.Context, p Project) (Metadata, error) {
	form := baseForm(p.Token, "metadata")
	addList(form, "forms", p.Forms)

	var fields []Field
	if err := c.post(ctx, form, &fields); err != nil {
		return nil, fmt.Errorf("export metadata %s: %w", p.Name, err)
	}
	c.log.Debug("exported metadata", zap.String("project", p.Name), zap.Int("fields", len(fields)))
	return fields, nil
}

func (c *HTTPClient) ExportRecords(ctx context.Context, p Project) ([]map[string]string, error) {
	form := baseForm(p.Token, "record")
	form.Set("type", "flat")
	mode := p.RawOrLabel
	if mode == "" {
		mode = "label"
	}
	form.Set("rawOrLabel", mode)
	form.Set("rawOrLabelHeaders", "raw")
	form.Set("exportCheckboxLabel", "false")
	addList(form, "fields", p.Fields)
	addList(form, "forms", p.Forms)
	addList(form, "events", p.Events)

	var records []map[string]string
	if err := c.post(ctx, form, &records); err != nil {
		return nil, fmt.Errorf("export records %s: %w", p.Name, err)
	}
	c.log.Info("exported records", zap.String("project", p.Name), zap.Int("records", len(records)))
	return records, nil
}

func baseForm(token, content string) url.Values {
	form := url.Values{}
	form.Set("token", token)
	form.Set("content", content)
	form.Set("format", "json")
	form.Set("returnFormat", "json")
	return form
}

func addList(form url.Values, key string, items []string) {
	for i, item := range items {
		form.Set(fmt.Sprintf("%s[%d]", key, i), item)
	}
}

func (c *HTTPClient) post(ctx context.Context, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}

	// REDCap reports some failures as 200 with an error object.
	var apiErr struct {
		Error string `json:"error"`
	}
	if len(data) > 0 && data[0] == '{' && json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	if len(body) > 1024 {
		body = body[:1024]
	}
	return strings.TrimSpace(string(body))
}
