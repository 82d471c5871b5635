package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fulmenhq/draftfix/pkg/platform"
)

// Config holds all configuration for draftfix
type Config struct {
	Target      string            `mapstructure:"target"`
	Policy      string            `mapstructure:"policy"`
	WorkDir     string            `mapstructure:"work_dir"`
	Concurrency int               `mapstructure:"concurrency"`
	Jobs        int               `mapstructure:"jobs"`
	Output      OutputConfig      `mapstructure:"output"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	S3          S3Config          `mapstructure:"s3"`
	Placeholder PlaceholderConfig `mapstructure:"placeholder"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
}

// OutputConfig controls where repaired bundles land
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	Suffix       string `mapstructure:"suffix"`
	KeepUnpacked bool   `mapstructure:"keep_unpacked"`
}

// FetchConfig holds remote asset download settings
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
	Backoff      time.Duration `mapstructure:"backoff"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
	HostHeaders  []HostHeaders `mapstructure:"host_headers"`
	CacheDir     string        `mapstructure:"cache_dir"`
	CacheEntries int           `mapstructure:"cache_entries"`
}

// HostHeaders is an extra header set sent to hosts matching Host (exact or
// dot-suffix match). Kept as a list because viper splits map keys on dots.
type HostHeaders struct {
	Host    string            `mapstructure:"host"`
	Headers map[string]string `mapstructure:"headers"`
}

// S3Config configures the s3:// source and asset fetcher
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// PlaceholderConfig controls synthetic media for assets with no remote locator
type PlaceholderConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	FFmpegPath string        `mapstructure:"ffmpeg_path"`
	Duration   time.Duration `mapstructure:"duration"`
}

// ArchiveConfig holds unpack settings
type ArchiveConfig struct {
	Exclude []string `mapstructure:"exclude"`
}

// Policy names accepted by Validate.
var knownPolicies = []string{"patch", "offline", "diagnose"}

// DefaultExcludes are skipped on unpack and never packed.
var DefaultExcludes = []string{"__MACOSX/**", "**/.DS_Store", "**/*.corrupt"}

// doubaoHost serves generated media that rejects requests without a browser-like referer.
const doubaoHost = "ark-content-generation-cn-beijing.tos-cn-beijing.volces.com"

var defaultConfig = Config{
	Target:      "windows",
	Policy:      "patch",
	Concurrency: 4,
	Jobs:        1,
	Output: OutputConfig{
		Dir:    "fixed_drafts",
		Suffix: "_fixed",
	},
	Fetch: FetchConfig{
		Timeout:   parseDurationDefault("180s"),
		Retries:   3,
		Backoff:   parseDurationDefault("1s"),
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MaxBytes:  2 << 30,
		HostHeaders: []HostHeaders{
			{
				Host: doubaoHost,
				Headers: map[string]string{
					"accept":          "video/mp4,video/*,*/*;q=0.9",
					"accept-language": "zh-CN,zh;q=0.9,en;q=0.8",
					"referer":         "https://doubao.com/",
				},
			},
		},
		CacheEntries: 256,
	},
	S3: S3Config{
		Region: "us-east-1",
		UseSSL: true,
	},
	Placeholder: PlaceholderConfig{
		Enabled:    false,
		FFmpegPath: "ffmpeg",
		Duration:   parseDurationDefault("5s"),
	},
	Archive: ArchiveConfig{
		Exclude: DefaultExcludes,
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Fetch.HostHeaders = append([]HostHeaders(nil), defaultConfig.Fetch.HostHeaders...)
	c.Archive.Exclude = append([]string(nil), defaultConfig.Archive.Exclude...)
	return &c
}

// LoadOptions selects optional config sources
type LoadOptions struct {
	// ConfigFile, when set, is read instead of searching the default paths.
	ConfigFile string
	// EnvFile is a dotenv file loaded into the process environment before
	// env overrides are applied. Missing files are ignored.
	EnvFile string
}

// LoadConfig loads configuration from defaults, config file, and DRAFTFIX_* env vars
func LoadConfig(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("draftfix")
		v.AddConfigPath(".")
		if home, err := GetDraftfixHome(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("DRAFTFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig
	v.SetDefault("target", d.Target)
	v.SetDefault("policy", d.Policy)
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("jobs", d.Jobs)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.suffix", d.Output.Suffix)
	v.SetDefault("output.keep_unpacked", d.Output.KeepUnpacked)

	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.retries", d.Fetch.Retries)
	v.SetDefault("fetch.backoff", d.Fetch.Backoff)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("fetch.max_bytes", d.Fetch.MaxBytes)
	v.SetDefault("fetch.host_headers", d.Fetch.HostHeaders)
	v.SetDefault("fetch.cache_dir", d.Fetch.CacheDir)
	v.SetDefault("fetch.cache_entries", d.Fetch.CacheEntries)

	// S3 credentials usually come from env or .env rather than the config file.
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.access_key", d.S3.AccessKey)
	v.SetDefault("s3.secret_key", d.S3.SecretKey)
	v.SetDefault("s3.use_ssl", d.S3.UseSSL)

	v.SetDefault("placeholder.enabled", d.Placeholder.Enabled)
	v.SetDefault("placeholder.ffmpeg_path", d.Placeholder.FFmpegPath)
	v.SetDefault("placeholder.duration", d.Placeholder.Duration)

	v.SetDefault("archive.exclude", d.Archive.Exclude)
}

// Validate rejects settings the engine cannot run with and normalizes the target alias.
func (c *Config) Validate() error {
	family, err := platform.ParseFamily(c.Target)
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	c.Target = string(family)

	policy := strings.ToLower(strings.TrimSpace(c.Policy))
	valid := false
	for _, p := range knownPolicies {
		if policy == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid policy %q (expected one of %s)", c.Policy, strings.Join(knownPolicies, ", "))
	}
	c.Policy = policy

	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("jobs must be positive, got %d", c.Jobs)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must not be negative, got %d", c.Fetch.Retries)
	}
	if c.Fetch.MaxBytes < 0 {
		return fmt.Errorf("fetch.max_bytes must not be negative, got %d", c.Fetch.MaxBytes)
	}
	if c.Output.Dir == "" {
		return errors.New("output.dir must not be empty")
	}
	return nil
}

// HeadersFor returns the merged extra headers configured for host.
func (f FetchConfig) HeadersFor(host string) map[string]string {
	host = strings.ToLower(host)
	out := map[string]string{}
	for _, hh := range f.HostHeaders {
		h := strings.ToLower(hh.Host)
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			for k, v := range hh.Headers {
				out[k] = v
			}
		}
	}
	return out
}

// Settings returns the configuration as a nested map with durations rendered
// as strings; used by `draftfix config` for yaml/toml output. Secrets are masked.
func (c *Config) Settings() map[string]interface{} {
	hostHeaders := make([]map[string]interface{}, 0, len(c.Fetch.HostHeaders))
	for _, hh := range c.Fetch.HostHeaders {
		hostHeaders = append(hostHeaders, map[string]interface{}{"host": hh.Host, "headers": hh.Headers})
	}
	return map[string]interface{}{
		"target":      c.Target,
		"policy":      c.Policy,
		"work_dir":    c.WorkDir,
		"concurrency": c.Concurrency,
		"jobs":        c.Jobs,
		"output": map[string]interface{}{
			"dir":           c.Output.Dir,
			"suffix":        c.Output.Suffix,
			"keep_unpacked": c.Output.KeepUnpacked,
		},
		"fetch": map[string]interface{}{
			"timeout":       c.Fetch.Timeout.String(),
			"retries":       c.Fetch.Retries,
			"backoff":       c.Fetch.Backoff.String(),
			"user_agent":    c.Fetch.UserAgent,
			"max_bytes":     c.Fetch.MaxBytes,
			"host_headers":  hostHeaders,
			"cache_dir":     c.Fetch.CacheDir,
			"cache_entries": c.Fetch.CacheEntries,
		},
		"s3": map[string]interface{}{
			"endpoint":   c.S3.Endpoint,
			"region":     c.S3.Region,
			"access_key": mask(c.S3.AccessKey),
			"secret_key": mask(c.S3.SecretKey),
			"use_ssl":    c.S3.UseSSL,
		},
		"placeholder": map[string]interface{}{
			"enabled":     c.Placeholder.Enabled,
			"ffmpeg_path": c.Placeholder.FFmpegPath,
			"duration":    c.Placeholder.Duration.String(),
		},
		"archive": map[string]interface{}{
			"exclude": c.Archive.Exclude,
		},
	}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// parseDurationDefault is a helper to create default duration values from string literal
func parseDurationDefault(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// GetDraftfixHome returns the draftfix home directory
func GetDraftfixHome() (string, error) {
	if home := os.Getenv("DRAFTFIX_HOME"); home != "" {
		return home, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".draftfix"), nil
}
