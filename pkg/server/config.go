package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration loaded from YAML.
type Config struct {
	// --- Identity ---
	MudName string `yaml:"mud_name"`
	Banner  string `yaml:"banner"`

	// --- Network ---
	Port        int    `yaml:"port"`
	Bind        string `yaml:"bind"`
	MaxClients  int    `yaml:"max_clients"`
	MaxPerHost  int    `yaml:"max_per_host"`
	DenyFile    string `yaml:"deny_file"`
	TextDir     string `yaml:"text_dir"`
	MetricsPort int    `yaml:"metrics_port"`

	// --- Sessions ---
	ActivityTimeout int `yaml:"activity_timeout"` // minutes, 0 disables
	InputLimit      int `yaml:"input_limit"`
	PollInterval    int `yaml:"poll_interval_ms"`

	// --- Accounts ---
	AccountsDB      string `yaml:"accounts_db"`
	AccountCreation bool   `yaml:"account_creation"`
	CharsPerAccount int    `yaml:"chars_per_account"`

	// --- Backups ---
	BackupDir      string `yaml:"backup_dir"`
	BackupInterval int    `yaml:"backup_interval"` // minutes, 0 disables
	BackupRetain   int    `yaml:"backup_retain"`   // 0 keeps everything

	Debug bool `yaml:"debug"`

	// ConfPath is the file the config was loaded from, if any.
	ConfPath string `yaml:"-"`
}

// DefaultConfig returns a Config with stock defaults.
func DefaultConfig() *Config {
	return &Config{
		MudName:         "Source MUD",
		Banner:          DefaultBanner,
		Port:            4545,
		MaxClients:      1000,
		MaxPerHost:      10,
		DenyFile:        "data/deny",
		ActivityTimeout: 15,
		InputLimit:      1024,
		PollInterval:    1000,
		AccountsDB:      "data/accounts.db",
		AccountCreation: true,
		CharsPerAccount: 4,
		BackupDir:       "data/backups",
		BackupRetain:    7,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.ConfPath = path
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("metrics_port %d out of range", c.MetricsPort)
	}
	if c.MaxClients < 0 || c.MaxPerHost < 0 {
		return fmt.Errorf("connection limits must not be negative")
	}
	if c.ActivityTimeout < 0 {
		return fmt.Errorf("activity_timeout must not be negative")
	}
	if c.InputLimit < 0 {
		return fmt.Errorf("input_limit must not be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	if c.BackupInterval < 0 || c.BackupRetain < 0 {
		return fmt.Errorf("backup settings must not be negative")
	}
	if c.BackupInterval > 0 && c.BackupDir == "" {
		return fmt.Errorf("backup_interval requires backup_dir")
	}
	if c.AccountsDB == "" {
		return fmt.Errorf("accounts_db is required")
	}
	return nil
}

// Addr is the listen address for the telnet port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Timeout is the idle limit as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ActivityTimeout) * time.Minute
}
