package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "MINI"

// Config holds all application configuration.
type Config struct {
	Host            string
	Port            int
	Workers         int
	QueueCapacity   int
	MaxConns        int
	Directory       string
	// Zero disables the read, write and shutdown bounds.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Env             string
	LogLevel        string
	ConfigFile      string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            4221,
		Workers:         runtime.NumCPU(),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Env:             "development",
		LogLevel:        "info",
	}
}

// New loads configuration from the process arguments and environment.
// It exits on bad input.
func New() *Config {
	cfg, err := Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// Load builds a Config from defaults, then the JSON file named by -config,
// then MINI_* environment variables, then flags. Later sources win.
func Load(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("mini-server", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Interface to bind")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of worker goroutines")
	fs.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "Pending connection queue size (0 = unbounded)")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum open connections (0 = unlimited)")
	fs.StringVar(&cfg.Directory, "directory", cfg.Directory, "Directory served under /files/")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Per-request read timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Per-response write timeout")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown bound (0 = wait for in-flight requests)")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development/production)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "JSON configuration file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicit[strings.ReplaceAll(f.Name, "-", "_")] = true
	})

	m := NewManager()
	if cfg.ConfigFile != "" {
		if err := m.LoadFromJSON(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	if lookupEnv != nil {
		m.LoadFromEnv(EnvPrefix, Keys, lookupEnv)
	}

	if err := cfg.merge(m, explicit); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Keys lists every configuration key, as used in JSON files. Environment
// variables are the upper-cased key behind EnvPrefix, e.g. MINI_MAX_CONNS.
var Keys = []string{
	"host", "port", "workers", "queue_capacity", "max_conns", "directory",
	"read_timeout", "write_timeout", "shutdown_timeout", "env", "log_level",
}

// merge copies values from m for every key not set by a flag.
func (c *Config) merge(m *Manager, explicit map[string]bool) error {
	strs := map[string]*string{
		"host":      &c.Host,
		"directory": &c.Directory,
		"env":       &c.Env,
		"log_level": &c.LogLevel,
	}
	ints := map[string]*int{
		"port":           &c.Port,
		"workers":        &c.Workers,
		"queue_capacity": &c.QueueCapacity,
		"max_conns":      &c.MaxConns,
	}
	durs := map[string]*time.Duration{
		"read_timeout":     &c.ReadTimeout,
		"write_timeout":    &c.WriteTimeout,
		"shutdown_timeout": &c.ShutdownTimeout,
	}

	for key, dst := range strs {
		if v, ok := m.GetString(key); ok && !explicit[key] {
			*dst = v
		}
	}
	for key, dst := range ints {
		if explicit[key] {
			continue
		}
		v, ok, err := m.GetInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	for key, dst := range durs {
		if explicit[key] {
			continue
		}
		v, ok, err := m.GetDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("config: port %d out of range", c.Port)
	case c.Workers < 1:
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	case c.QueueCapacity < 0:
		return fmt.Errorf("config: queue_capacity must not be negative, got %d", c.QueueCapacity)
	case c.MaxConns < 0:
		return fmt.Errorf("config: max_conns must not be negative, got %d", c.MaxConns)
	case c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0:
		return errors.New("config: timeouts must not be negative")
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether Env selects production behaviour.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
