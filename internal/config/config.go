package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Templates TemplatesConfig `yaml:"templates"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Resume    ResumeConfig    `yaml:"resume"`
	Sending   SendingConfig   `yaml:"sending"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// SMTPConfig holds SMTP relay credentials
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// TemplatesConfig holds the role template source directory
type TemplatesConfig struct {
	Directory string `yaml:"directory"`
}

// SheetsConfig holds Google Sheets service account credentials.
// PrivateKey is the PEM key of the service account; when loaded from the
// environment, literal "\n" sequences are unescaped.
type SheetsConfig struct {
	ClientEmail string `yaml:"client_email"`
	PrivateKey  string `yaml:"private_key"`
	SheetID     string `yaml:"sheet_id"`
	Range       string `yaml:"range"`
}

// Enabled reports whether sheet integration is configured at all.
func (s SheetsConfig) Enabled() bool {
	return s.ClientEmail != "" && s.PrivateKey != ""
}

// TrackingConfig holds open-tracking settings
type TrackingConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

// ResumeConfig holds the resume attachment location
type ResumeConfig struct {
	Path string `yaml:"path"`
}

// SendingConfig holds the fixed inter-send delays used to respect
// relay rate limits. These are deliberate fixed sleeps, not backoff.
type SendingConfig struct {
	PerRecipientDelayMs int `yaml:"per_recipient_delay_ms"`
	BulkRowDelayMs      int `yaml:"bulk_row_delay_ms"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:3000"
	}
	if cfg.SMTP.Host == "" {
		cfg.SMTP.Host = "smtp.gmail.com"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.Templates.Directory == "" {
		cfg.Templates.Directory = "templates"
	}
	if cfg.Sheets.Range == "" {
		cfg.Sheets.Range = "A:Z"
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = cfg.Server.BaseURL
	}
	if cfg.Resume.Path == "" {
		cfg.Resume.Path = "assets/resume.pdf"
	}
	if cfg.Sending.PerRecipientDelayMs == 0 {
		cfg.Sending.PerRecipientDelayMs = 2000
	}
	if cfg.Sending.BulkRowDelayMs == 0 {
		cfg.Sending.BulkRowDelayMs = 3000
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		cfg.Server.BaseURL = baseURL
		cfg.Tracking.BaseURL = baseURL
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTP.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.SMTP.Port = p
		}
	}
	if user := os.Getenv("GMAIL_USER"); user != "" {
		cfg.SMTP.Username = user
	}
	if pass := os.Getenv("GMAIL_APP_PASSWORD"); pass != "" {
		cfg.SMTP.Password = pass
	}
	if from := os.Getenv("GMAIL_FROM"); from != "" {
		cfg.SMTP.From = from
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}
	if dir := os.Getenv("TEMPLATES_DIR"); dir != "" {
		cfg.Templates.Directory = dir
	}
	if email := os.Getenv("GOOGLE_CLIENT_EMAIL"); email != "" {
		cfg.Sheets.ClientEmail = email
	}
	if key := os.Getenv("GOOGLE_PRIVATE_KEY"); key != "" {
		// PEM keys arrive from the environment with escaped newlines
		cfg.Sheets.PrivateKey = strings.ReplaceAll(key, `\n`, "\n")
	}
	if sheetID := os.Getenv("GOOGLE_SHEET_ID"); sheetID != "" {
		cfg.Sheets.SheetID = sheetID
	}
	if enabled := os.Getenv("TRACKING_ENABLED"); enabled != "" {
		cfg.Tracking.Enabled = enabled != "false"
	} else {
		cfg.Tracking.Enabled = true
	}
	if resume := os.Getenv("DEFAULT_RESUME_PATH"); resume != "" {
		cfg.Resume.Path = resume
	}

	return cfg, nil
}
