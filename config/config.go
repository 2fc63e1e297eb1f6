// Package config loads fabrikd's daemon configuration from a TOML file,
// environment variables and command-line flags, layered the way the
// teacher's InitConfig does it: defaults, then config file, then
// environment, then explicit flags, each later layer overriding the
// former. Much of the teacher's multi-cluster/git/cloud config surface
// is out of scope here — this daemon configures one fleet, not a
// cluster-of-clusters — but the loading mechanism itself is kept.
package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of daemon settings. Fields carry mapstructure
// tags matching their flag names (hyphenated), the way the teacher's
// config.Config does with its toml tags.
type Config struct {
	ConfigFile string `mapstructure:"config-file"`

	// State store
	StoreDSN     string `mapstructure:"store-dsn"`
	StoreMigrate bool   `mapstructure:"store-migrate"`

	// Connection pool
	PoolMaxIdlePerBackend int           `mapstructure:"pool-max-idle-per-backend"`
	PoolDialTimeout       time.Duration `mapstructure:"pool-dial-timeout"`

	// Executor
	ExecutorWorkers int `mapstructure:"executor-workers"`

	// HA / sharding replication credentials, applied to every managed
	// group; per-group credentials are out of scope (§1).
	ReplicationUser   string `mapstructure:"replication-user"`
	ReplicationPasswd string `mapstructure:"replication-passwd"`

	// HTTP API
	ListenAddress string `mapstructure:"listen-address"`
	JWTSecret     string `mapstructure:"jwt-secret"`

	// Periodic reconciliation
	ReconcileInterval time.Duration `mapstructure:"reconcile-interval"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`
}

// Defaults mirrors the teacher's pattern of a package-level default map
// consulted before the config file is read.
func Defaults() Config {
	return Config{
		StoreDSN:              "fabrikd:fabrikd@tcp(127.0.0.1:3306)/fabrikd?parseTime=true",
		PoolMaxIdlePerBackend: 4,
		PoolDialTimeout:       5 * time.Second,
		ExecutorWorkers:       4,
		ListenAddress:         ":10001",
		ReconcileInterval:     30 * time.Second,
		LogLevel:              "info",
	}
}

// BindFlags registers every config field as a pflag, the way the
// teacher's server command wires flags ahead of InitConfig.
func BindFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String("config-file", "", "path to fabrikd.toml")
	flags.String("store-dsn", d.StoreDSN, "DSN of the state store database")
	flags.Bool("store-migrate", false, "run pending state store migrations on startup")
	flags.Int("pool-max-idle-per-backend", d.PoolMaxIdlePerBackend, "max idle connections kept per managed backend")
	flags.Duration("pool-dial-timeout", d.PoolDialTimeout, "dial timeout for a new backend connection")
	flags.Int("executor-workers", d.ExecutorWorkers, "procedure executor worker pool size")
	flags.String("replication-user", "", "replication user configured on every managed backend")
	flags.String("replication-passwd", "", "replication password configured on every managed backend")
	flags.String("listen-address", d.ListenAddress, "HTTP API listen address")
	flags.String("jwt-secret", "", "HMAC secret for HTTP API JWT bearer auth")
	flags.Duration("reconcile-interval", d.ReconcileInterval, "read-only drift reconciliation sweep interval")
	flags.String("log-level", d.LogLevel, "panic|fatal|error|warn|info|debug|trace")
	flags.String("log-file", "", "log to this file instead of stderr")
}

// Load reads defaults, then a TOML config file (if found), then
// environment variables (FABRIKD_ prefix), then bound flags, in
// increasing priority — the same layering order as the teacher's
// InitConfig, minus the multi-cluster/git/cloud machinery this daemon
// doesn't have.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetConfigType("toml")
	v.SetEnvPrefix("FABRIKD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return Config{}, fmt.Errorf("config: bind flags: %w", err)
	}

	if cf, _ := flags.GetString("config-file"); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", cf, err)
		}
	} else {
		v.SetConfigName("fabrikd")
		v.AddConfigPath("/etc/fabrikd")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return Config{}, fmt.Errorf("config: read config file: %w", err)
			}
			log.Debug("config: no fabrikd.toml found, using defaults/env/flags only")
		}
	}

	cfg := defaults
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// ApplyLogging configures the package-level logrus logger per cfg,
// mirroring the teacher's server.Run log setup (level + optional file
// hook) without the syslog/rotation machinery this daemon doesn't use.
func ApplyLogging(cfg Config) error {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config: invalid log-level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	if cfg.LogFile != "" {
		f, err := openLogFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("config: open log file: %w", err)
		}
		log.SetOutput(f)
	}
	return nil
}
