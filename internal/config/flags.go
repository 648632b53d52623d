package config

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// Flags binds command-line flags onto a Config. Only flags the user actually
// set are applied, so a flag's zero default never masks a file or env value.
type Flags struct {
	fs     *flag.FlagSet
	config *string
	apply  map[string]func(*Config) error
}

// Bind registers the flags shared by every command on fs.
func Bind(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs, apply: map[string]func(*Config) error{}}
	f.config = fs.String("config", "", "YAML config file (precedence: flags, CHATEXTRACT_* env, file, defaults)")

	f.str("template", "template ID, see -list-templates (default generic)", func(c *Config, v string) { c.Template = v })
	f.str("templates", "YAML/JSON file with extra templates", func(c *Config, v string) { c.TemplatesFile = v })
	f.str("container", "CSS (or xpath:) selector for message containers", func(c *Config, v string) { c.Selectors.Container = v })
	f.str("user-selector", "selector identifying user containers", func(c *Config, v string) { c.Selectors.User = v })
	f.str("model-selector", "selector identifying model containers", func(c *Config, v string) { c.Selectors.Model = v })
	f.str("content-selector", "selector for the text inside a container", func(c *Config, v string) { c.Selectors.Content = v })
	f.str("role-attr", "attribute carrying the author role", func(c *Config, v string) { c.Selectors.RoleAttribute = v })

	rv := fs.String("role-values", "", `role attribute values, e.g. "human=User,ai=Model"`)
	f.apply["role-values"] = func(c *Config) error {
		m, err := ParseRoleValues(*rv)
		if err != nil {
			return err
		}
		c.Selectors.RoleValues = m
		return nil
	}

	f.str("log-level", "debug, info, warn or error (default info)", func(c *Config, v string) { c.LogLevel = v })
	f.str("log-format", "console or json (default console)", func(c *Config, v string) { c.LogFormat = v })
	f.str("user-agent", "User-Agent for URL fetches", func(c *Config, v string) { c.HTTP.UserAgent = v })
	f.str("cookies", "JSON cookie file, loaded before and saved after fetching", func(c *Config, v string) { c.Batch.Cookies = v })
	f.str("format", "transcript format: text, json or pdf (default text)", func(c *Config, v string) { c.Format = v })
	f.dur("timeout", "timeout per URL fetch (default 30s)", func(c *Config, v time.Duration) { c.HTTP.Timeout = v })

	retries := fs.Int("retries", 0, "retries for a failed fetch: network errors, 429 and 5xx (default 2)")
	f.apply["retries"] = func(c *Config) error {
		c.HTTP.Retries = *retries
		return nil
	}
	return f
}

// BindBatch adds the flags only the batch command takes.
func (f *Flags) BindBatch() {
	f.str("out", "directory for transcript files (default transcripts)", func(c *Config, v string) { c.Batch.Out = v })
	f.str("progress", "progress file used to resume (default progress.json)", func(c *Config, v string) { c.Batch.Progress = v })
	f.dur("min-delay", "minimum delay between fetches (default 2s)", func(c *Config, v time.Duration) { c.Batch.MinDelay = v })
	f.dur("max-delay", "maximum delay between fetches (default 5s)", func(c *Config, v time.Duration) { c.Batch.MaxDelay = v })
	f.str("storage", "also store transcripts: sqlite, postgres or mssql", func(c *Config, v string) { c.Storage.Kind = v })
	f.str("dsn", "storage DSN (sqlite: file path)", func(c *Config, v string) { c.Storage.DSN = v })
	f.str("metrics-backend", "datadog or prompush (default none)", func(c *Config, v string) { c.Metrics.Backend = v })
	f.str("pushgateway-url", "Prometheus Pushgateway URL for -metrics-backend=prompush", func(c *Config, v string) { c.Metrics.PushgatewayURL = v })
	f.str("datadog-tags", `extra Datadog tags, e.g. "env:prod,team:research"`, func(c *Config, v string) { c.Metrics.DatadogTags = splitCSV(v) })
}

func (f *Flags) str(name, usage string, set func(*Config, string)) {
	p := f.fs.String(name, "", usage)
	f.apply[name] = func(c *Config) error {
		set(c, strings.TrimSpace(*p))
		return nil
	}
}

func (f *Flags) dur(name, usage string, set func(*Config, time.Duration)) {
	p := f.fs.Duration(name, 0, usage)
	f.apply[name] = func(c *Config) error {
		set(c, *p)
		return nil
	}
}

// Load builds the effective Config after fs.Parse: defaults, the -config
// file, the environment, then every flag set on the command line.
func (f *Flags) Load() (Config, error) {
	cfg, err := Load(*f.config)
	if err != nil {
		return Config{}, err
	}
	var first error
	f.fs.Visit(func(fl *flag.Flag) {
		ap, ok := f.apply[fl.Name]
		if !ok || first != nil {
			return
		}
		if err := ap(&cfg); err != nil {
			first = fmt.Errorf("-%s: %w", fl.Name, err)
		}
	})
	if first != nil {
		return Config{}, first
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseRoleValues parses "value=Role" pairs separated by commas.
func ParseRoleValues(s string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range splitCSV(s) {
		k, v, ok := strings.Cut(part, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("role value %q: want value=Role", part)
		}
		out[k] = v
	}
	return out, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
