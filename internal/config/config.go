// Package config holds the settings of a fluve run. A Config is built once
// by Load and treated as read-only afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fluve/internal/dbclient"
	"fluve/internal/etl"
	"fluve/internal/recode"
	"fluve/internal/secret"
)

// DateLayout is the format of study window dates.
const DateLayout = "2006-01-02"

// Secret keys looked up in the secret store.
const (
	StaffingTokenKey   = "REDCAP_API_FLUVE_STAFFING_KEY"
	EnrollmentTokenKey = "REDCAP_API_FLUVE_ENROLLMENT_KEY"
)

// Config is the full fluve configuration.
type Config struct {
	REDCap     REDCapConfig     `yaml:"redcap"`
	Paths      PathsConfig      `yaml:"paths"`
	LabResults LabResultsConfig `yaml:"lab_results"`
	Cache      CacheConfig      `yaml:"cache"`
	Study      StudyConfig      `yaml:"study"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Publish    PublishConfig    `yaml:"publish"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// REDCapConfig configures the survey API. Tokens never live in the YAML
// file; they come from the environment or the secret store.
type REDCapConfig struct {
	APIURL          string `yaml:"api_url"`
	StaffingToken   string `yaml:"-"`
	EnrollmentToken string `yaml:"-"`
	Timeout         string `yaml:"timeout"`
}

// PathsConfig names the data folders.
type PathsConfig struct {
	RawData       string `yaml:"raw_data"`
	ProcessedData string `yaml:"processed_data"`
	Documents     string `yaml:"documents"`
}

// LabResultsConfig points at the lab spreadsheet and how to read it.
type LabResultsConfig struct {
	Source     string                `yaml:"source"`
	Path       string                `yaml:"path"`
	Config     etl.SourceConfig      `yaml:"config"`
	Transforms []etl.TransformConfig `yaml:"transforms"`
}

// CacheConfig controls the on-disk survey cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StudyConfig bounds the enrollment window. Empty dates leave that side open.
// Recodes are applied to the enrollment survey after the built-in ones.
type StudyConfig struct {
	FirstDate           string        `yaml:"first_study_date"`
	LastDate            string        `yaml:"last_study_date"`
	DuplicateExceptions []string      `yaml:"duplicate_exceptions"`
	Recodes             []recode.Spec `yaml:"recodes"`
}

// ScheduleConfig drives the background service.
type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	WatchLab bool   `yaml:"watch_lab"`
}

// PublishConfig describes where the final table is written after a run.
type PublishConfig struct {
	Enabled        bool                `yaml:"enabled"`
	Destination    string              `yaml:"destination"` // database or csv
	Table          string              `yaml:"table"`
	Mode           etl.SyncMode        `yaml:"mode"`
	Connection     dbclient.ConnConfig `yaml:"connection"`
	PasswordSecret string              `yaml:"password_secret"`
	Password       string              `yaml:"-"`
}

// SecretsConfig selects the secret backend: env or keychain.
type SecretsConfig struct {
	Backend string `yaml:"backend"`
}

// LoggingConfig sets verbosity (0 warn, 1 info, 2 debug) and encoder mode.
type LoggingConfig struct {
	Verbosity int    `yaml:"verbosity"`
	Mode      string `yaml:"mode"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		REDCap: REDCapConfig{
			Timeout: "60s",
		},
		Paths: PathsConfig{
			RawData:       "data/raw",
			ProcessedData: "data/processed",
			Documents:     "documents",
		},
		LabResults: LabResultsConfig{
			Source: "xlsx_file",
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Publish: PublishConfig{
			Destination: "csv",
			Table:       "fluve_records",
			Mode:        etl.SyncReplace,
		},
		Secrets: SecretsConfig{
			Backend: "env",
		},
		Logging: LoggingConfig{
			Mode: "development",
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Dotenv files are read first so their values take part in the
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	loadDotenv()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// loadDotenv reads ./.env and ~/.credentials/.env when present. Variables
// already set in the process win.
func loadDotenv() {
	files := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".credentials", ".env"))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REDCAP_API_URL"); v != "" {
		c.REDCap.APIURL = v
	}
	if v := os.Getenv(StaffingTokenKey); v != "" {
		c.REDCap.StaffingToken = v
	}
	if v := os.Getenv(EnrollmentTokenKey); v != "" {
		c.REDCap.EnrollmentToken = v
	}

	if v := os.Getenv("RAW_DATA"); v != "" {
		c.Paths.RawData = v
	}
	if v := os.Getenv("PROCESSED_DATA"); v != "" {
		c.Paths.ProcessedData = v
	}
	if v := os.Getenv("DOCUMENTS"); v != "" {
		c.Paths.Documents = v
	}

	if v := os.Getenv("VERBOSITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = n
		}
	}
	if v := os.Getenv("FLUVE_LAB_RESULTS"); v != "" {
		c.LabResults.Path = v
	}
	if v := os.Getenv("FLUVE_CACHE"); v != "" {
		c.Cache.Enabled = !strings.EqualFold(v, "false") && v != "0"
	}
}

// Validate checks the settings needed to talk to REDCap.
func (c *Config) Validate() error {
	var missing []string
	if c.REDCap.APIURL == "" {
		missing = append(missing, "REDCAP_API_URL")
	}
	if c.REDCap.StaffingToken == "" {
		missing = append(missing, StaffingTokenKey)
	}
	if c.REDCap.EnrollmentToken == "" {
		missing = append(missing, EnrollmentTokenKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("REDCap not configured (set %s)", strings.Join(missing, ", "))
	}
	if _, _, err := c.Study.Window(); err != nil {
		return err
	}
	switch c.Publish.Mode {
	case etl.SyncReplace, etl.SyncAppend:
	default:
		return fmt.Errorf("invalid publish mode: %s (valid: replace, append)", c.Publish.Mode)
	}
	return nil
}

// ResolveSecrets fills empty tokens and the publish password from store.
// A missing token is left empty for Validate to report.
func (c *Config) ResolveSecrets(store secret.SecretStore) error {
	fill := func(dst *string, key string) error {
		if *dst != "" || key == "" {
			return nil
		}
		v, err := secret.Lookup(store, key)
		if errors.Is(err, secret.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	if err := fill(&c.REDCap.StaffingToken, StaffingTokenKey); err != nil {
		return err
	}
	if err := fill(&c.REDCap.EnrollmentToken, EnrollmentTokenKey); err != nil {
		return err
	}
	return fill(&c.Publish.Password, c.Publish.PasswordSecret)
}

// GetTimeout returns the REDCap request timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.REDCap.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// CachePath is the SQLite file backing the survey cache.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Paths.RawData, "fluve_cache.db")
}

// LabPath is the lab-results file, relative paths resolved against RawData.
func (c *Config) LabPath() string {
	p := c.LabResults.Path
	if p == "" {
		p = "lab_results.xlsx"
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.RawData, p)
}

// SourceConfig merges the lab path into the configured source settings.
func (l LabResultsConfig) SourceConfig(path string) etl.SourceConfig {
	out := etl.SourceConfig{}
	for k, v := range l.Config {
		out[k] = v
	}
	if _, ok := out["filePath"]; !ok {
		out["filePath"] = path
	}
	return out
}

// Window parses the study dates. A zero time means the side is open.
func (s StudyConfig) Window() (first, last time.Time, err error) {
	if s.FirstDate != "" {
		if first, err = time.Parse(DateLayout, s.FirstDate); err != nil {
			return first, last, fmt.Errorf("invalid first_study_date: %w", err)
		}
	}
	if s.LastDate != "" {
		if last, err = time.Parse(DateLayout, s.LastDate); err != nil {
			return first, last, fmt.Errorf("invalid last_study_date: %w", err)
		}
	}
	if !first.IsZero() && !last.IsZero() && last.Before(first) {
		return first, last, fmt.Errorf("last_study_date %s is before first_study_date %s", s.LastDate, s.FirstDate)
	}
	return first, last, nil
}
