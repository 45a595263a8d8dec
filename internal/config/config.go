package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "STOROZH_"

// Config is read once at startup and never mutated afterwards.
type Config struct {
	DatabaseDSN  string        `yaml:"database_dsn"`
	HTTPAddr     string        `yaml:"http_addr"`
	GRPCAddr     string        `yaml:"grpc_addr"`
	GatewayURL   string        `yaml:"gateway_url"`
	GatewayToken string        `yaml:"gateway_token"`
	AuthSecret   string        `yaml:"auth_secret"`
	LogLevel     string        `yaml:"log_level"`
	DefaultMute  time.Duration `yaml:"default_mute"`
	CallTimeout  time.Duration `yaml:"call_timeout"`

	PlatformRatePerSec int `yaml:"platform_rate_per_sec"`
	PlatformRateBurst  int `yaml:"platform_rate_burst"`

	Audit  AuditConfig  `yaml:"audit"`
	Quorum QuorumConfig `yaml:"quorum"`
}

// AuditConfig describes the two-tier retention of the audit log.
type AuditConfig struct {
	PrimaryWindow time.Duration `yaml:"primary_window"`
	ArchiveWindow time.Duration `yaml:"archive_window"`
	Archive       bool          `yaml:"archive"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// QuorumConfig controls confirmation-gated commands.
type QuorumConfig struct {
	Window          time.Duration `yaml:"window"`
	RequireDistinct bool          `yaml:"require_distinct"`
	// BypassRole is the lowest role that executes gated commands without confirmation.
	BypassRole int `yaml:"bypass_role"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTPAddr:           ":8080",
		GRPCAddr:           ":9090",
		LogLevel:           "info",
		DefaultMute:        600 * time.Second,
		CallTimeout:        10 * time.Second,
		PlatformRatePerSec: 20,
		PlatformRateBurst:  30,
		Audit: AuditConfig{
			PrimaryWindow: 48 * time.Hour,
			ArchiveWindow: 96 * time.Hour,
			Archive:       true,
			SweepInterval: time.Hour,
		},
		Quorum: QuorumConfig{
			Window:          10 * time.Minute,
			RequireDistinct: true,
			BypassRole:      2,
		},
	}
}

// Load builds the configuration from .env, an optional YAML file named by
// STOROZH_CONFIG, and STOROZH_* environment variables, in that order.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.DatabaseDSN, "DATABASE_DSN")
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.GRPCAddr, "GRPC_ADDR")
	setString(&cfg.GatewayURL, "GATEWAY_URL")
	setString(&cfg.GatewayToken, "GATEWAY_TOKEN")
	setString(&cfg.AuthSecret, "AUTH_SECRET")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	var errs []error
	errs = append(errs,
		setDuration(&cfg.DefaultMute, "DEFAULT_MUTE"),
		setDuration(&cfg.CallTimeout, "CALL_TIMEOUT"),
		setInt(&cfg.PlatformRatePerSec, "PLATFORM_RATE_PER_SEC"),
		setInt(&cfg.PlatformRateBurst, "PLATFORM_RATE_BURST"),
		setDuration(&cfg.Audit.PrimaryWindow, "AUDIT_PRIMARY_WINDOW"),
		setDuration(&cfg.Audit.ArchiveWindow, "AUDIT_ARCHIVE_WINDOW"),
		setBool(&cfg.Audit.Archive, "AUDIT_ARCHIVE"),
		setDuration(&cfg.Audit.SweepInterval, "AUDIT_SWEEP_INTERVAL"),
		setDuration(&cfg.Quorum.Window, "QUORUM_WINDOW"),
		setBool(&cfg.Quorum.RequireDistinct, "QUORUM_REQUIRE_DISTINCT"),
		setInt(&cfg.Quorum.BypassRole, "QUORUM_BYPASS_ROLE"),
	)
	return errors.Join(errs...)
}

// Validate reports the first set of invalid values.
func (c Config) Validate() error {
	var errs []error
	if c.DefaultMute <= 0 {
		errs = append(errs, errors.New("default_mute must be > 0"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call_timeout must be > 0"))
	}
	if c.PlatformRatePerSec <= 0 || c.PlatformRateBurst <= 0 {
		errs = append(errs, errors.New("platform rate and burst must be > 0"))
	}
	if c.Audit.PrimaryWindow <= 0 {
		errs = append(errs, errors.New("audit.primary_window must be > 0"))
	}
	if c.Audit.Archive && c.Audit.ArchiveWindow <= c.Audit.PrimaryWindow {
		errs = append(errs, errors.New("audit.archive_window must exceed audit.primary_window"))
	}
	if c.Audit.SweepInterval <= 0 {
		errs = append(errs, errors.New("audit.sweep_interval must be > 0"))
	}
	if c.Quorum.Window <= 0 {
		errs = append(errs, errors.New("quorum.window must be > 0"))
	}
	if c.Quorum.BypassRole < 1 || c.Quorum.BypassRole > 4 {
		errs = append(errs, errors.New("quorum.bypass_role must be within 1..4"))
	}
	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}

// setDuration accepts Go durations ("90s", "48h") or bare seconds.
func setDuration(dst *time.Duration, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	*dst = d
	return nil
}
