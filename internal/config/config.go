package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runger/bikeshare/internal/settings"
)

// Config represents the bikeshare process configuration. Business settings
// live in the settings tables, not here.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Lock   LockConfig   `yaml:"lock"`
	Daemon DaemonConfig `yaml:"daemon"`
	Sheets SheetsConfig `yaml:"sheets"`
}

// StoreConfig selects the table store.
type StoreConfig struct {
	Driver string `yaml:"driver"`  // sqlite or memory
	DBPath string `yaml:"db_path"` // SQLite file (overrides default)
}

// LockConfig configures the global pipeline lock.
type LockConfig struct {
	Mode            string `yaml:"mode"`              // process or file
	TimeoutMs       int    `yaml:"timeout_ms"`        // Bounded wait for the lock
	RetryIntervalMs int    `yaml:"retry_interval_ms"` // File lock poll interval
}

// DaemonConfig holds daemon-related settings.
type DaemonConfig struct {
	SocketPath          string `yaml:"socket_path"`           // Unix socket path (overrides default)
	MetricsAddr         string `yaml:"metrics_addr"`          // Prometheus listen address (empty = off)
	AccrualIntervalMins int    `yaml:"accrual_interval_mins"` // Usage accrual period (0 = off)
	LogLevel            string `yaml:"log_level"`             // debug, info, warn, error
}

// SheetsConfig names the tables backing each settings section.
type SheetsConfig struct {
	System     string `yaml:"system"`
	Thresholds string `yaml:"thresholds"`
	Lists      string `yaml:"lists"`
	Contacts   string `yaml:"contacts"`
	Messages   string `yaml:"messages"`
	Schedule   string `yaml:"schedule"`
	Sheets     string `yaml:"sheets"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Lock: LockConfig{
			Mode:            "file",
			TimeoutMs:       30000,
			RetryIntervalMs: 50,
		},
		Daemon: DaemonConfig{
			MetricsAddr:         "127.0.0.1:9464",
			AccrualIntervalMins: 60,
			LogLevel:            "info",
		},
		Sheets: SheetsConfig{
			System:     "System",
			Thresholds: "Thresholds",
			Lists:      "Lists",
			Contacts:   "Contacts",
			Messages:   "Messages",
			Schedule:   "Schedule",
			Sheets:     "Sheets",
		},
	}
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DBPath returns the configured SQLite path or the default one.
func (c *Config) DBPath(p *Paths) string {
	if c.Store.DBPath != "" {
		return c.Store.DBPath
	}
	return p.DatabaseFile()
}

// SocketPath returns the configured socket path or the default one.
func (c *Config) SocketPath(p *Paths) string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return p.SocketFile()
}

// LockTimeout returns lock.timeout_ms as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutMs) * time.Millisecond
}

// LockRetryInterval returns lock.retry_interval_ms as a duration.
func (c *Config) LockRetryInterval() time.Duration {
	return time.Duration(c.Lock.RetryIntervalMs) * time.Millisecond
}

// AccrualInterval returns daemon.accrual_interval_mins as a duration.
func (c *Config) AccrualInterval() time.Duration {
	return time.Duration(c.Daemon.AccrualIntervalMins) * time.Minute
}

// SettingsSections returns the settings layout with the configured tables.
func (c *Config) SettingsSections() []settings.Section {
	tables := map[string]string{
		settings.SectionSystem:     c.Sheets.System,
		settings.SectionThresholds: c.Sheets.Thresholds,
		settings.SectionLists:      c.Sheets.Lists,
		settings.SectionContacts:   c.Sheets.Contacts,
		settings.SectionMessages:   c.Sheets.Messages,
		settings.SectionSchedule:   c.Sheets.Schedule,
		settings.SectionSheets:     c.Sheets.Sheets,
	}
	sections := settings.DefaultSections()
	for i := range sections {
		if t := tables[sections[i].Name]; t != "" {
			sections[i].Table = t
		}
	}
	return sections
}

// Get retrieves a configuration value by dot-separated key.
// For example: "lock.timeout_ms" or "store.driver"
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "store":
		return c.getStoreField(field)
	case "lock":
		return c.getLockField(field)
	case "daemon":
		return c.getDaemonField(field)
	case "sheets":
		return c.getSheetsField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "store":
		return c.setStoreField(field, value)
	case "lock":
		return c.setLockField(field, value)
	case "daemon":
		return c.setDaemonField(field, value)
	case "sheets":
		return c.setSheetsField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func splitKey(key string) (string, string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func (c *Config) getStoreField(field string) (string, error) {
	switch field {
	case "driver":
		return c.Store.Driver, nil
	case "db_path":
		return c.Store.DBPath, nil
	default:
		return "", fmt.Errorf("unknown field: store.%s", field)
	}
}

func (c *Config) setStoreField(field, value string) error {
	switch field {
	case "driver":
		if !isValidDriver(value) {
			return fmt.Errorf("invalid driver: %s (must be sqlite or memory)", value)
		}
		c.Store.Driver = value
	case "db_path":
		c.Store.DBPath = value
	default:
		return fmt.Errorf("unknown field: store.%s", field)
	}
	return nil
}

func (c *Config) getLockField(field string) (string, error) {
	switch field {
	case "mode":
		return c.Lock.Mode, nil
	case "timeout_ms":
		return strconv.Itoa(c.Lock.TimeoutMs), nil
	case "retry_interval_ms":
		return strconv.Itoa(c.Lock.RetryIntervalMs), nil
	default:
		return "", fmt.Errorf("unknown field: lock.%s", field)
	}
}

func (c *Config) setLockField(field, value string) error {
	switch field {
	case "mode":
		if !isValidLockMode(value) {
			return fmt.Errorf("invalid mode: %s (must be process or file)", value)
		}
		c.Lock.Mode = value
	case "timeout_ms":
		v, err := positiveInt(field, value)
		if err != nil {
			return err
		}
		c.Lock.TimeoutMs = v
	case "retry_interval_ms":
		v, err := positiveInt(field, value)
		if err != nil {
			return err
		}
		c.Lock.RetryIntervalMs = v
	default:
		return fmt.Errorf("unknown field: lock.%s", field)
	}
	return nil
}

func (c *Config) getDaemonField(field string) (string, error) {
	switch field {
	case "socket_path":
		return c.Daemon.SocketPath, nil
	case "metrics_addr":
		return c.Daemon.MetricsAddr, nil
	case "accrual_interval_mins":
		return strconv.Itoa(c.Daemon.AccrualIntervalMins), nil
	case "log_level":
		return c.Daemon.LogLevel, nil
	default:
		return "", fmt.Errorf("unknown field: daemon.%s", field)
	}
}

func (c *Config) setDaemonField(field, value string) error {
	switch field {
	case "socket_path":
		c.Daemon.SocketPath = value
	case "metrics_addr":
		c.Daemon.MetricsAddr = value
	case "accrual_interval_mins":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for accrual_interval_mins: %w", err)
		}
		if v < 0 {
			return fmt.Errorf("invalid accrual_interval_mins: must be non-negative")
		}
		c.Daemon.AccrualIntervalMins = v
	case "log_level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", value)
		}
		c.Daemon.LogLevel = value
	default:
		return fmt.Errorf("unknown field: daemon.%s", field)
	}
	return nil
}

func (c *Config) sheetsField(field string) *string {
	switch field {
	case "system":
		return &c.Sheets.System
	case "thresholds":
		return &c.Sheets.Thresholds
	case "lists":
		return &c.Sheets.Lists
	case "contacts":
		return &c.Sheets.Contacts
	case "messages":
		return &c.Sheets.Messages
	case "schedule":
		return &c.Sheets.Schedule
	case "sheets":
		return &c.Sheets.Sheets
	default:
		return nil
	}
}

func (c *Config) getSheetsField(field string) (string, error) {
	p := c.sheetsField(field)
	if p == nil {
		return "", fmt.Errorf("unknown field: sheets.%s", field)
	}
	return *p, nil
}

func (c *Config) setSheetsField(field, value string) error {
	p := c.sheetsField(field)
	if p == nil {
		return fmt.Errorf("unknown field: sheets.%s", field)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("invalid sheets.%s: table name must not be empty", field)
	}
	*p = value
	return nil
}

func positiveInt(field, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", field, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", field)
	}
	return v, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !isValidDriver(c.Store.Driver) {
		return fmt.Errorf("store.driver must be sqlite or memory (got: %s)", c.Store.Driver)
	}

	if !isValidLockMode(c.Lock.Mode) {
		return fmt.Errorf("lock.mode must be process or file (got: %s)", c.Lock.Mode)
	}

	if c.Lock.TimeoutMs <= 0 {
		return errors.New("lock.timeout_ms must be > 0")
	}

	if c.Lock.RetryIntervalMs <= 0 {
		return errors.New("lock.retry_interval_ms must be > 0")
	}

	if c.Daemon.AccrualIntervalMins < 0 {
		return errors.New("daemon.accrual_interval_mins must be >= 0")
	}

	if !isValidLogLevel(c.Daemon.LogLevel) {
		return fmt.Errorf("daemon.log_level must be debug, info, warn, or error (got: %s)", c.Daemon.LogLevel)
	}

	if c.Sheets.System == "" {
		return errors.New("sheets.system must not be empty")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidDriver(driver string) bool {
	switch driver {
	case "sqlite", "memory":
		return true
	default:
		return false
	}
}

func isValidLockMode(mode string) bool {
	switch mode {
	case "process", "file":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BIKESHARE_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("BIKESHARE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Daemon.LogLevel = "debug"
		}
	}
	if v := os.Getenv("BIKESHARE_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Daemon.LogLevel = v
		}
	}
	if v := os.Getenv("BIKESHARE_SOCKET_PATH"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("BIKESHARE_LOCK_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Lock.TimeoutMs = ms
		}
	}
}

// ListKeys returns the configuration keys accepted by Get and Set.
func ListKeys() []string {
	return []string{
		"store.driver",
		"store.db_path",
		"lock.mode",
		"lock.timeout_ms",
		"lock.retry_interval_ms",
		"daemon.socket_path",
		"daemon.metrics_addr",
		"daemon.accrual_interval_mins",
		"daemon.log_level",
		"sheets.system",
		"sheets.thresholds",
		"sheets.lists",
		"sheets.contacts",
		"sheets.messages",
		"sheets.schedule",
		"sheets.sheets",
	}
}
