// Package config loads gitrails settings from defaults, gitrails.yaml,
// GITRAILS_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/thiagokokada/gitrails/internal/git/backend"
	"github.com/thiagokokada/gitrails/internal/history"
	"github.com/thiagokokada/gitrails/internal/watch"
)

const (
	EnvPrefix = "GITRAILS"
	FileName  = "gitrails"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Color string

const (
	ColorAuto  Color = "auto"
	ColorLight Color = "light"
	ColorDark  Color = "dark"
	ColorNever Color = "never"
)

type Config struct {
	Backend   string          `mapstructure:"backend"`
	Slack     int             `mapstructure:"slack"`
	Lookahead int             `mapstructure:"lookahead"`
	Stash     bool            `mapstructure:"stash"`
	Color     Color           `mapstructure:"color"`
	Reduction ReductionConfig `mapstructure:"reduction"`
	Log       LogConfig       `mapstructure:"log"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

type ReductionConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", string(backend.KindNative))
	v.SetDefault("slack", history.DefaultSlack)
	v.SetDefault("lookahead", history.DefaultLookahead)
	v.SetDefault("stash", false)
	v.SetDefault("color", string(ColorAuto))
	v.SetDefault("reduction.max_depth", history.DefaultMaxDepth)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("watch.debounce", watch.DefaultDelay)
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file and decodes v. An explicit file must exist;
// otherwise gitrails.yaml is looked up in repoPath and the user config dir.
func Load(v *viper.Viper, repoPath, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, dir := range searchPaths(repoPath) {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		slog.Debug("config file loaded", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decoderOption()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}

func searchPaths(repoPath string) []string {
	var dirs []string
	if repoPath != "" {
		dirs = append(dirs, repoPath)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, FileName))
	}
	return dirs
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := backend.ParseKind(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.Slack <= 0 {
		errs = append(errs, fmt.Errorf("slack must be positive, got %d", c.Slack))
	}
	if c.Lookahead <= 0 {
		errs = append(errs, fmt.Errorf("lookahead must be positive, got %d", c.Lookahead))
	}
	if c.Reduction.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("reduction.max_depth must be positive, got %d", c.Reduction.MaxDepth))
	}
	if !slices.Contains([]Color{ColorAuto, ColorLight, ColorDark, ColorNever}, c.Color) {
		errs = append(errs, fmt.Errorf("unknown color mode %q", c.Color))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SlogLevel parses Level as a slog level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", l.Level)
	}
	return level, nil
}

// HistoryOptions maps the config to session options.
func (c *Config) HistoryOptions() history.Options {
	return history.Options{
		Slack:        c.Slack,
		Lookahead:    c.Lookahead,
		IncludeStash: c.Stash,
		MaxDepth:     c.Reduction.MaxDepth,
	}
}
