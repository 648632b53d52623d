// Package config loads command settings in layers: built-in defaults, then an
// optional YAML file, then CHATEXTRACT_* environment variables (read with
// envconfig). Commands apply explicitly set flags last.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"chatextract/internal/extract"
	"chatextract/internal/transcript"
)

// EnvPrefix names the environment keys. Nested fields join with '_', so
// Batch.MinDelay is read from CHATEXTRACT_BATCH_MIN_DELAY.
const EnvPrefix = "CHATEXTRACT"

// Selectors mirror extract.Overrides in file form.
type Selectors struct {
	Container     string            `yaml:"container"`
	User          string            `yaml:"user"`
	Model         string            `yaml:"model"`
	Content       string            `yaml:"content"`
	RoleAttribute string            `yaml:"role_attribute" split_words:"true"`
	RoleValues    map[string]string `yaml:"role_values" split_words:"true"`
}

type HTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent" split_words:"true"`
	// Retries is how many times a failed fetch (network error, 429, 5xx) is
	// retried.
	Retries int `yaml:"retries"`
}

type Batch struct {
	Out      string        `yaml:"out"`
	Progress string        `yaml:"progress"`
	Cookies  string        `yaml:"cookies"`
	MinDelay time.Duration `yaml:"min_delay" split_words:"true"`
	MaxDelay time.Duration `yaml:"max_delay" split_words:"true"`
}

type Storage struct {
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

type Metrics struct {
	// Backend is "", "datadog" or "prompush".
	Backend        string   `yaml:"backend"`
	PushgatewayURL string   `yaml:"pushgateway_url" split_words:"true"`
	DatadogTags    []string `yaml:"datadog_tags" split_words:"true"`
}

// Config is everything the commands can be told outside of flags.
type Config struct {
	Template      string    `yaml:"template"`
	TemplatesFile string    `yaml:"templates_file" split_words:"true"`
	Selectors     Selectors `yaml:"selectors"`

	// Format is the transcript output format: text, json or pdf.
	Format string `yaml:"format"`

	LogLevel  string `yaml:"log_level" split_words:"true"`
	LogFormat string `yaml:"log_format" split_words:"true"`

	HTTP    HTTP    `yaml:"http"`
	Batch   Batch   `yaml:"batch"`
	Storage Storage `yaml:"storage"`
	Metrics Metrics `yaml:"metrics"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Format:    string(transcript.FormatText),
		LogLevel:  "info",
		LogFormat: "console",
		HTTP: HTTP{
			Timeout:   30 * time.Second,
			UserAgent: extract.DefaultUserAgent,
			Retries:   2,
		},
		Batch: Batch{
			Out:      "transcripts",
			Progress: "progress.json",
			MinDelay: 2 * time.Second,
			MaxDelay: 5 * time.Second,
		},
	}
}

// Load layers path (skipped when empty) and then the CHATEXTRACT_*
// environment over Default. Unset variables leave the file value alone.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format %q: want console or json", c.LogFormat)
	}
	if _, err := transcript.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative")
	}
	if c.HTTP.Retries < 0 {
		return fmt.Errorf("http.retries must not be negative")
	}
	if c.Batch.MinDelay < 0 || c.Batch.MaxDelay < 0 {
		return fmt.Errorf("batch delays must not be negative")
	}
	if c.Batch.MaxDelay < c.Batch.MinDelay {
		return fmt.Errorf("batch.max_delay (%s) is below batch.min_delay (%s)", c.Batch.MaxDelay, c.Batch.MinDelay)
	}
	if c.Storage.Kind != "" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required when storage.kind is %q", c.Storage.Kind)
	}
	switch c.Metrics.Backend {
	case "", "datadog":
	case "prompush":
		if c.Metrics.PushgatewayURL == "" {
			return fmt.Errorf("metrics.pushgateway_url is required for prompush")
		}
	default:
		return fmt.Errorf("metrics.backend %q: want datadog or prompush", c.Metrics.Backend)
	}
	return nil
}

// Overrides converts the selector settings for extract.Resolve.
func (c Config) Overrides() (extract.Overrides, error) {
	s := c.Selectors
	ov := extract.Overrides{
		Container:     s.Container,
		UserSelector:  s.User,
		ModelSelector: s.Model,
		Content:       s.Content,
		RoleAttribute: s.RoleAttribute,
	}
	if len(s.RoleValues) > 0 {
		ov.RoleValues = make(map[string]transcript.Role, len(s.RoleValues))
		for k, v := range s.RoleValues {
			role, err := transcript.ParseRole(v)
			if err != nil {
				return extract.Overrides{}, fmt.Errorf("selectors.role_values[%s]: %w", k, err)
			}
			ov.RoleValues[k] = role
		}
	}
	return ov, nil
}
