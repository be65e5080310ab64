package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	lambdaModeInvoke = "invoke"
	lambdaModeS3     = "s3"
)

// Config is assembled from defaults, an optional TOML file named by
// CHATFETCH_CONFIG and CHATFETCH_* environment variables, in that order.
type Config struct {
	LogLevel   string         `toml:"log_level"`
	LambdaMode string         `toml:"lambda_mode"`
	Fetcher    fetcherConfig  `toml:"fetcher"`
	Archive    archiveConfig  `toml:"archive"`
	Heuristics heuristicRules `toml:"heuristics"`
}

type fetcherConfig struct {
	UserAgent      string `toml:"user_agent"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (f fetcherConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// archiveConfig controls S3 storage. An empty bucket disables archiving of
// invoke mode results; S3 mode writes next to the source object.
type archiveConfig struct {
	Bucket       string `toml:"bucket"`
	Prefix       string `toml:"prefix"`
	OutputPrefix string `toml:"output_prefix"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel:   "info",
		LambdaMode: lambdaModeInvoke,
		Fetcher: fetcherConfig{
			UserAgent:      defaultUserAgent,
			TimeoutSeconds: int(defaultTimeout / time.Second),
		},
		Archive: archiveConfig{
			Prefix:       "transcripts/",
			OutputPrefix: "rendered/",
		},
		Heuristics: defaultHeuristicRules(),
	}
}

func loadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CHATFETCH_CONFIG"); path != "" {
		user, err := loadFromTOML(path)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
		cfg = merge(cfg, user)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromTOML(path string) (*Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return &cfg, nil
}

// merge layers user config on top of defaults. Only non-zero values override,
// and rule lists replace the default lists wholesale.
func merge(defaults, user *Config) *Config {
	result := *defaults

	overrideString(&result.LogLevel, user.LogLevel)
	overrideString(&result.LambdaMode, user.LambdaMode)

	overrideString(&result.Fetcher.UserAgent, user.Fetcher.UserAgent)
	if user.Fetcher.TimeoutSeconds != 0 {
		result.Fetcher.TimeoutSeconds = user.Fetcher.TimeoutSeconds
	}

	overrideString(&result.Archive.Bucket, user.Archive.Bucket)
	overrideString(&result.Archive.Prefix, user.Archive.Prefix)
	overrideString(&result.Archive.OutputPrefix, user.Archive.OutputPrefix)

	h := &result.Heuristics
	if user.Heuristics.MinScriptLength != 0 {
		h.MinScriptLength = user.Heuristics.MinScriptLength
	}
	overrideString(&h.ScriptMarker, user.Heuristics.ScriptMarker)
	overrideString(&h.TitlePrefix, user.Heuristics.TitlePrefix)
	if len(user.Heuristics.Literals) > 0 {
		h.Literals = user.Heuristics.Literals
	}
	if len(user.Heuristics.Sections) > 0 {
		h.Sections = user.Heuristics.Sections
	}
	if len(user.Heuristics.Keywords) > 0 {
		h.Keywords = user.Heuristics.Keywords
	}

	return &result
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyEnv reads CHATFETCH_* variables, which win over the config file.
func applyEnv(cfg *Config) error {
	overrideString(&cfg.LogLevel, os.Getenv("CHATFETCH_LOG_LEVEL"))
	overrideString(&cfg.LambdaMode, os.Getenv("CHATFETCH_LAMBDA_MODE"))
	overrideString(&cfg.Fetcher.UserAgent, os.Getenv("CHATFETCH_USER_AGENT"))
	overrideString(&cfg.Archive.Bucket, os.Getenv("CHATFETCH_ARCHIVE_BUCKET"))
	overrideString(&cfg.Archive.Prefix, os.Getenv("CHATFETCH_ARCHIVE_PREFIX"))
	overrideString(&cfg.Archive.OutputPrefix, os.Getenv("CHATFETCH_OUTPUT_PREFIX"))

	if v := os.Getenv("CHATFETCH_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHATFETCH_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Fetcher.TimeoutSeconds = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher timeout must be positive, got %d", c.Fetcher.TimeoutSeconds)
	}
	switch c.LambdaMode {
	case lambdaModeInvoke, lambdaModeS3:
	default:
		return fmt.Errorf("unknown lambda mode %q, expected %q or %q", c.LambdaMode, lambdaModeInvoke, lambdaModeS3)
	}
	if c.LambdaMode == lambdaModeS3 && c.Archive.OutputPrefix == "" {
		return fmt.Errorf("s3 mode needs an output prefix")
	}
	for i, l := range c.Heuristics.Literals {
		switch l.Role {
		case "", RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("heuristic literal #%d: unknown role %q", i, l.Role)
		}
	}
	if _, err := c.Heuristics.compileSections(); err != nil {
		return fmt.Errorf("heuristics: %w", err)
	}
	return nil
}
