package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-extract/pkg/nebulaerrors"
)

// DefaultPageSize is the page size used when a source config names none.
const DefaultPageSize = 100

// SourceConfig holds the recognized options of one source adapter. Each
// adapter reads the subset it understands and rejects missing required
// options in Connect via Require, before any network activity.
type SourceConfig struct {
	// Type selects the adapter from the registry (e.g. "postgresql", "s3")
	Type string `yaml:"type" json:"type"`

	Host     string `yaml:"host,omitempty" json:"host,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
	Project  string `yaml:"project,omitempty" json:"project,omitempty"`

	Credentials CredentialsConfig `yaml:"credentials,omitempty" json:"credentials,omitempty"`

	// Query is the query text for relational and single-shot sources
	Query string `yaml:"query,omitempty" json:"query,omitempty"`
	// Resource names the table, collection, bucket or topic being read
	Resource string `yaml:"resource,omitempty" json:"resource,omitempty"`
	Prefix   string `yaml:"prefix,omitempty" json:"prefix,omitempty"`

	// StartKey and StopKey bound key-range scans; StartKey is inclusive,
	// StopKey exclusive.
	StartKey string `yaml:"start_key,omitempty" json:"start_key,omitempty"`
	StopKey  string `yaml:"stop_key,omitempty" json:"stop_key,omitempty"`

	PageSize  int `yaml:"page_size,omitempty" json:"page_size,omitempty"`
	BatchSize int `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`

	// RateLimit caps page fetches per second; zero disables throttling
	RateLimit float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`

	Timeouts TimeoutConfig `yaml:"timeouts,omitempty" json:"timeouts,omitempty"`

	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// CredentialsConfig is passed through to drivers verbatim.
type CredentialsConfig struct {
	Username        string `yaml:"username,omitempty" json:"username,omitempty"`
	Password        string `yaml:"password,omitempty" json:"password,omitempty"`
	DSN             string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Token           string `yaml:"token,omitempty" json:"token,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
}

// TimeoutConfig defines per-operation timeouts for an adapter
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect,omitempty" json:"connect,omitempty"`
	Request time.Duration `yaml:"request,omitempty" json:"request,omitempty"`
}

// NewSourceConfig creates a source config with defaults applied.
func NewSourceConfig(sourceType string) *SourceConfig {
	cfg := &SourceConfig{Type: sourceType}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *SourceConfig) ApplyDefaults() {
	if c.Timeouts.Connect == 0 {
		c.Timeouts.Connect = 30 * time.Second
	}
	if c.Timeouts.Request == 0 {
		c.Timeouts.Request = 5 * time.Minute
	}
	if c.Options == nil {
		c.Options = make(map[string]string)
	}
}

// PageLimit returns the page size an adapter should request. page_size wins
// over batch_size; both default to DefaultPageSize.
func (c *SourceConfig) PageLimit() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultPageSize
}

// Option returns a free-form option or def when it is unset.
func (c *SourceConfig) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// OptionDuration parses a free-form option as a duration.
func (c *SourceConfig) OptionDuration(key string, def time.Duration) (time.Duration, error) {
	v := c.Option(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, nebulaerrors.Wrapf(err, nebulaerrors.ErrorTypeConfig, "option %s", key)
	}
	return d, nil
}

// OptionInt parses a free-form option as an integer.
func (c *SourceConfig) OptionInt(key string, def int) (int, error) {
	v := c.Option(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, nebulaerrors.Wrapf(err, nebulaerrors.ErrorTypeConfig, "option %s", key)
	}
	return n, nil
}

// Validate checks the shape of the config. Backend-specific requirements are
// checked by each adapter with Require.
func (c *SourceConfig) Validate() error {
	if c.Type == "" {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "source type is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "port %d out of range", c.Port)
	}
	if c.PageSize < 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "page_size must not be negative")
	}
	if c.BatchSize < 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "batch_size must not be negative")
	}
	if c.RateLimit < 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "rate_limit must not be negative")
	}
	return nil
}

// Require validates the shape of the config and reports every named option
// that is missing. Names use the YAML spelling, with "credentials." and
// "options." prefixes for nested values. A name of the form "a|b" is satisfied
// by either option.
func (c *SourceConfig) Require(fields ...string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	var missing []string
	for _, field := range fields {
		satisfied := false
		for _, alt := range strings.Split(field, "|") {
			if c.lookup(alt) != "" {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing = append(missing, strings.ReplaceAll(field, "|", " or "))
		}
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Strings(missing)
	return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "%s source: missing required options: %s",
		c.Type, strings.Join(missing, ", ")).
		WithDetail("missing", missing)
}

func (c *SourceConfig) lookup(field string) string {
	if key, ok := strings.CutPrefix(field, "options."); ok {
		return c.Options[key]
	}
	switch field {
	case "host":
		return c.Host
	case "port":
		if c.Port == 0 {
			return ""
		}
		return strconv.Itoa(c.Port)
	case "database":
		return c.Database
	case "endpoint":
		return c.Endpoint
	case "region":
		return c.Region
	case "project":
		return c.Project
	case "query":
		return c.Query
	case "resource":
		return c.Resource
	case "prefix":
		return c.Prefix
	case "start_key":
		return c.StartKey
	case "stop_key":
		return c.StopKey
	case "credentials.username":
		return c.Credentials.Username
	case "credentials.password":
		return c.Credentials.Password
	case "credentials.dsn":
		return c.Credentials.DSN
	case "credentials.token":
		return c.Credentials.Token
	case "credentials.credentials_file":
		return c.Credentials.CredentialsFile
	default:
		return ""
	}
}

// SinkConfig selects and configures the batch sink.
type SinkConfig struct {
	Type        string   `yaml:"type" json:"type"`
	Path        string   `yaml:"path,omitempty" json:"path,omitempty"`
	Bucket      string   `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix      string   `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Region      string   `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint    string   `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Project     string   `yaml:"project,omitempty" json:"project,omitempty"`
	Topic       string   `yaml:"topic,omitempty" json:"topic,omitempty"`
	Brokers     []string `yaml:"brokers,omitempty" json:"brokers,omitempty"`
	Compression string   `yaml:"compression,omitempty" json:"compression,omitempty"`
}

// Validate checks that the options needed by the selected sink are present.
func (c *SinkConfig) Validate() error {
	switch c.Type {
	case "file":
		if c.Path == "" {
			return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "file sink requires path")
		}
	case "s3", "gcs":
		if c.Bucket == "" {
			return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "%s sink requires bucket", c.Type)
		}
	case "kafka":
		if c.Topic == "" || len(c.Brokers) == 0 {
			return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "kafka sink requires topic and brokers")
		}
	case "":
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "sink type is required")
	}
	return nil
}

// StateConfig selects the job state store.
type StateConfig struct {
	Type string `yaml:"type" json:"type"`
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	DSN  string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	// Lock serializes runs of the same job ID within this process
	Lock bool `yaml:"lock,omitempty" json:"lock,omitempty"`
}

// Validate checks the store type and its location.
func (c *StateConfig) Validate() error {
	switch c.Type {
	case "memory":
	case "file", "sqlite":
		if c.Path == "" {
			return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "%s state store requires path", c.Type)
		}
	case "postgres":
		if c.DSN == "" {
			return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "postgres state store requires dsn")
		}
	default:
		return nebulaerrors.Newf(nebulaerrors.ErrorTypeConfig, "unknown state store type %q", c.Type)
	}
	return nil
}

// JobConfig is the top-level document of a job file.
type JobConfig struct {
	JobID  string       `yaml:"job_id" json:"job_id"`
	Source SourceConfig `yaml:"source" json:"source"`
	Sink   SinkConfig   `yaml:"sink" json:"sink"`
	State  StateConfig  `yaml:"state" json:"state"`

	// Timeout bounds a whole run; zero means no deadline
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// EmptyPollInterval is slept between consecutive empty, non-exhausted pages
	EmptyPollInterval time.Duration `yaml:"empty_poll_interval,omitempty" json:"empty_poll_interval,omitempty"`
	// MaxPages aborts a run that fetches more pages than this; zero is unlimited
	MaxPages int `yaml:"max_pages,omitempty" json:"max_pages,omitempty"`
}

// NewJobConfig creates a job config with defaults applied.
func NewJobConfig() *JobConfig {
	cfg := &JobConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *JobConfig) ApplyDefaults() {
	c.Source.ApplyDefaults()
	if c.State.Type == "" {
		c.State.Type = "memory"
	}
	if c.Sink.Compression == "" {
		c.Sink.Compression = "none"
	}
	if c.EmptyPollInterval == 0 {
		c.EmptyPollInterval = 250 * time.Millisecond
	}
}

// Validate checks the whole job document.
func (c *JobConfig) Validate() error {
	if c.JobID == "" {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "job_id is required")
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	if err := c.State.Validate(); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if c.Timeout < 0 || c.EmptyPollInterval < 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "durations must not be negative")
	}
	if c.MaxPages < 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "max_pages must not be negative")
	}
	return nil
}
