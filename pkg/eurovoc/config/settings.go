// Package config loads miner settings and builds the process logger.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/eurovoc/pkg/eurovoc/httpx"
	"github.com/cognicore/eurovoc/pkg/eurovoc/ingest"
	"github.com/cognicore/eurovoc/pkg/eurovoc/internalerr"
	"github.com/cognicore/eurovoc/pkg/eurovoc/sparql"
	"github.com/cognicore/eurovoc/pkg/eurovoc/taxonomy"
)

// EnvPrefix prefixes every environment override, e.g. EUROVOC_DAYS.
const EnvPrefix = "EUROVOC"

// OutputSettings configures where artifacts are written
type OutputSettings struct {
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// RetrySettings configures the shared HTTP retry policy
type RetrySettings struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// LogSettings configures the process logger
type LogSettings struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
	File   string `mapstructure:"file"`   // optional, in addition to stderr
}

// Settings application settings
type Settings struct {
	SparqlEndpoint string         `mapstructure:"sparql_endpoint"`
	TaxonomyURL    string         `mapstructure:"taxonomy_url"`
	UserAgent      string         `mapstructure:"user_agent"`
	CacheDir       string         `mapstructure:"cache_dir"`
	Output         OutputSettings `mapstructure:"output"`

	Days       int    `mapstructure:"days"`
	WindowDays int    `mapstructure:"window_days"`
	Start      string `mapstructure:"start"` // YYYY-MM-DD, empty for today
	Lang       string `mapstructure:"lang"`
	Workers    int    `mapstructure:"workers"` // 0 uses every CPU

	Keywords    []string `mapstructure:"keywords"`
	UniqueOn    string   `mapstructure:"unique_on"`
	OnlyMatches bool     `mapstructure:"only_matches"`

	Retry       RetrySettings `mapstructure:"retry"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	TaxonomyTTL time.Duration `mapstructure:"taxonomy_ttl"`

	Log         LogSettings `mapstructure:"log"`
	MetricsAddr string      `mapstructure:"metrics_addr"`
}

// flagKeys maps CLI flag names to settings keys.
var flagKeys = map[string]string{
	"sparql-endpoint":    "sparql_endpoint",
	"taxonomy-url":       "taxonomy_url",
	"user-agent":         "user_agent",
	"cache-dir":          "cache_dir",
	"output-dir":         "output.dir",
	"days":               "days",
	"window-days":        "window_days",
	"start":              "start",
	"lang":               "lang",
	"workers":            "workers",
	"keywords":           "keywords",
	"unique-on":          "unique_on",
	"only-matches":       "only_matches",
	"retry-max-attempts": "retry.max_attempts",
	"http-timeout":       "http_timeout",
	"taxonomy-ttl":       "taxonomy_ttl",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"log-file":           "log.file",
	"metrics-addr":       "metrics_addr",
}

// RegisterFlags defines the CLI flags that LoadSettings understands.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML settings file")
	fs.String("sparql-endpoint", sparql.DefaultEndpoint, "SPARQL endpoint URL")
	fs.String("taxonomy-url", taxonomy.DefaultURL, "vocabulary document URL")
	fs.String("user-agent", httpx.DefaultUserAgent, "User-Agent sent with every request")
	fs.String("cache-dir", "cache", "directory holding the body cache database")
	fs.String("output-dir", "files", "directory for output artifacts")
	fs.Int("days", 1, "number of days to look back")
	fs.Int("window-days", 1, "days covered by each query window")
	fs.String("start", "", "most recent day to mine, YYYY-MM-DD (default today)")
	fs.String("lang", "", "language filter, e.g. ENG, SPA, FRA")
	fs.Int("workers", 0, "concurrent body fetches (0 = number of CPUs)")
	fs.StringSlice("keywords", nil, "keywords to tag as match_<keyword> columns")
	fs.String("unique-on", "", "column to deduplicate on, keeping the last row")
	fs.Bool("only-matches", false, "keep only rows matching at least one keyword")
	fs.Int("retry-max-attempts", 5, "attempts per HTTP request")
	fs.Duration("http-timeout", 120*time.Second, "timeout for a single HTTP attempt")
	fs.Duration("taxonomy-ttl", taxonomy.DefaultTTL, "how long a loaded taxonomy stays fresh")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "text", "log format: text or json")
	fs.String("log-file", "", "also append logs to this file")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
}

// LoadSettings resolves settings. Priority: CLI flags > environment
// variables > YAML file > defaults. flags may be nil.
func LoadSettings(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("sparql_endpoint", sparql.DefaultEndpoint)
	v.SetDefault("taxonomy_url", taxonomy.DefaultURL)
	v.SetDefault("user_agent", httpx.DefaultUserAgent)
	v.SetDefault("cache_dir", "cache")
	v.SetDefault("output.dir", "files")
	v.SetDefault("output.prefix", "dataset_")
	v.SetDefault("days", 1)
	v.SetDefault("window_days", 1)
	v.SetDefault("start", "")
	v.SetDefault("lang", "")
	v.SetDefault("workers", 0)
	v.SetDefault("keywords", []string{})
	v.SetDefault("unique_on", "")
	v.SetDefault("only_matches", false)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_interval", time.Second)
	v.SetDefault("retry.max_interval", 30*time.Second)
	v.SetDefault("http_timeout", 120*time.Second)
	v.SetDefault("taxonomy_ttl", taxonomy.DefaultTTL)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics_addr", "")

	configFile := os.Getenv(EnvPrefix + "_CONFIG")
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			configFile = f.Value.String()
		}
	}
	if configFile != "" {
		values, err := readYAML(configFile)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, fmt.Errorf("merge %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	settings.Keywords = filterEmptyStrings(settings.Keywords)
	settings.Lang = strings.ToUpper(strings.TrimSpace(settings.Lang))
	settings.CacheDir = expandHomeDir(settings.CacheDir)
	settings.Output.Dir = expandHomeDir(settings.Output.Dir)

	return &settings, nil
}

// readYAML decodes a settings file into a nested map for viper to merge.
func readYAML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	return values, nil
}

var (
	langPattern = regexp.MustCompile(`^[A-Za-z]{2,3}$`)
	logLevels   = []string{"debug", "info", "warn", "error"}
)

// Validate checks settings for values the miner cannot run with.
func (s *Settings) Validate() error {
	if s.Days < 1 {
		return fmt.Errorf("%w: days must be at least 1, got %d", internalerr.ErrInvalidConfig, s.Days)
	}
	if s.WindowDays < 1 {
		return fmt.Errorf("%w: window_days must be at least 1, got %d", internalerr.ErrInvalidConfig, s.WindowDays)
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", internalerr.ErrInvalidConfig, s.Workers)
	}
	if s.Lang != "" && !langPattern.MatchString(s.Lang) {
		return fmt.Errorf("%w: lang must be a 2 or 3 letter code, got %q", internalerr.ErrInvalidConfig, s.Lang)
	}
	if _, err := s.StartDate(time.Now()); err != nil {
		return err
	}
	if s.SparqlEndpoint == "" {
		return fmt.Errorf("%w: sparql_endpoint is required", internalerr.ErrInvalidConfig)
	}
	if s.TaxonomyURL == "" {
		return fmt.Errorf("%w: taxonomy_url is required", internalerr.ErrInvalidConfig)
	}
	if s.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir is required", internalerr.ErrInvalidConfig)
	}
	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1, got %d", internalerr.ErrInvalidConfig, s.Retry.MaxAttempts)
	}
	if s.Retry.InitialInterval < 0 || s.Retry.MaxInterval < 0 {
		return fmt.Errorf("%w: retry intervals must not be negative", internalerr.ErrInvalidConfig)
	}
	if s.HTTPTimeout < 0 {
		return fmt.Errorf("%w: http_timeout must not be negative", internalerr.ErrInvalidConfig)
	}
	if s.TaxonomyTTL <= 0 {
		return fmt.Errorf("%w: taxonomy_ttl must be positive", internalerr.ErrInvalidConfig)
	}

	if !slices.Contains(logLevels, strings.ToLower(s.Log.Level)) {
		return fmt.Errorf("%w: unknown log level %q", internalerr.ErrInvalidConfig, s.Log.Level)
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format must be text or json, got %q", internalerr.ErrInvalidConfig, s.Log.Format)
	}

	return nil
}

// StartDate returns the most recent day to mine, defaulting to the day of now.
func (s *Settings) StartDate(now time.Time) (time.Time, error) {
	if s.Start == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(ingest.DateLayout, s.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start must be YYYY-MM-DD, got %q", internalerr.ErrInvalidConfig, s.Start)
	}
	return t, nil
}

// RetryPolicy converts the retry settings for the HTTP client.
func (s *Settings) RetryPolicy() httpx.RetryPolicy {
	return httpx.RetryPolicy{
		MaxAttempts:     s.Retry.MaxAttempts,
		InitialInterval: s.Retry.InitialInterval,
		MaxInterval:     s.Retry.MaxInterval,
	}
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// filterEmptyStrings trims values and removes empty ones
func filterEmptyStrings(s []string) []string {
	result := []string{}
	for _, str := range s {
		if str = strings.TrimSpace(str); str != "" {
			result = append(result, str)
		}
	}
	return result
}
