package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"

	"github.com/tracyhatemice/mail2md/internal/filter"
)

// Environment variables that override credentials from the config file.
const (
	EnvUsername = "MAIL2MD_USERNAME"
	EnvPassword = "MAIL2MD_PASSWORD"
)

// Config is the top-level application configuration.
type Config struct {
	LogLevel             string `yaml:"log_level"`
	Provider             string `yaml:"provider"` // informational, e.g. "gmail"
	Protocol             string `yaml:"protocol"` // "imap" or "pop3"
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	UseTLS               bool   `yaml:"use_tls"`
	Username             string `yaml:"username"`
	Password             string `yaml:"password"`
	Folder               string `yaml:"folder"`
	SearchCriteria       string `yaml:"search_criteria"`
	SavePath             string `yaml:"save_path"`
	MaxEmails            int    `yaml:"max_emails"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	FlattenHTML          bool   `yaml:"flatten_html"`
	Filter               Filter `yaml:"filter"`
}

// Filter holds the sender/subject keyword filter.
type Filter struct {
	Mode     string   `yaml:"mode"`
	Keywords []string `yaml:"keywords"`
}

// CheckInterval returns the polling interval, or 0 for a single pass.
func (c *Config) CheckInterval() time.Duration {
	if c.CheckIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// Policy returns the configured filter policy.
func (c *Config) Policy() filter.Policy {
	mode, err := filter.ParseMode(c.Filter.Mode)
	if err != nil {
		mode = filter.ModeNone
	}
	return filter.New(mode, c.Filter.Keywords)
}

// Load reads and parses a YAML configuration file. When envFile is not empty
// it is loaded first as a dotenv file; a missing env file is not an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{
		LogLevel:       "info",
		Protocol:       "imap",
		UseTLS:         true,
		Folder:         "INBOX",
		SearchCriteria: "ALL",
		SavePath:       "./emails",
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv(EnvUsername); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		cfg.Password = v
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort(cfg.Protocol, cfg.UseTLS)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaultPort(protocol string, useTLS bool) int {
	switch {
	case protocol == "pop3" && useTLS:
		return 995
	case protocol == "pop3":
		return 110
	case useTLS:
		return 993
	default:
		return 143
	}
}

func (c *Config) validate() error {
	if c.Protocol != "pop3" && c.Protocol != "imap" {
		return fmt.Errorf("protocol must be pop3 or imap")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.SavePath == "" {
		return fmt.Errorf("save_path is required")
	}
	if c.MaxEmails < 0 {
		return fmt.Errorf("max_emails must not be negative")
	}
	if _, err := filter.ParseMode(c.Filter.Mode); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	return nil
}
