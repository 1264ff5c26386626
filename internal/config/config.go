package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google_sheets"`
	Groups     GroupsConfig     `yaml:"groups"`
	Session    SessionConfig    `yaml:"session"`
	History    HistoryConfig    `yaml:"history"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	SSLVerify   *bool             `yaml:"ssl_verify"`
	Login       LoginConfig       `yaml:"login"`
	DataSending DataSendingConfig `yaml:"data_sending"`
}

// LoginConfig describes the reporting API login endpoint. The URL is
// the full login path; the base URL for data endpoints is derived from
// it by stripping the login suffix.
type LoginConfig struct {
	URL        string `yaml:"url"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TOTPSecret string `yaml:"totp_secret"`
}

const loginPath = "/api/Login/Login"

// BaseURL returns the API host part of the login URL.
func (l LoginConfig) BaseURL() string {
	return strings.TrimSuffix(l.URL, loginPath)
}

type DataSendingConfig struct {
	HourlyReport HourlyReportConfig `yaml:"hourly_report"`
	DailyReport  DailyReportConfig  `yaml:"daily_report"`
}

type HourlyReportConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
	ReportType      int  `yaml:"report_type"`
}

type DailyReportConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SendTime   string `yaml:"send_time"` // HH:MM in the reporting timezone
	ReportType int    `yaml:"report_type"`
}

// ParseSendTime splits SendTime into hour and minute.
func (d DailyReportConfig) ParseSendTime() (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(d.SendTime), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid send_time %q", d.SendTime)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid send_time hour %q", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid send_time minute %q", parts[1])
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("send_time %q out of range", d.SendTime)
	}
	return hour, minute, nil
}

type GoogleConfig struct {
	CredentialsFile   string            `yaml:"credentials_file"`
	DailySheetName    string            `yaml:"daily_sheet_name"`
	HourlySheetName   string            `yaml:"hourly_sheet_name"`
	GroupSpreadsheets map[string]string `yaml:"group_spreadsheets"`
}

type GroupsConfig map[string]GroupConfig

type GroupConfig struct {
	Name       string       `yaml:"name"`
	TgGroup    int64        `yaml:"tg_group"`
	ChannelIDs []ChannelRef `yaml:"channel_ids"`
}

type ChannelRef struct {
	ID string `yaml:"id"`
}

type SessionConfig struct {
	TokenFile string `yaml:"token_file"`
	UseRedis  bool   `yaml:"use_redis"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type ExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads the YAML config, expanding ${ENV} references after
// loading an optional .env file.
func Load(configPath string) (*Config, error) {
	// .env is optional; environment wins when both are set.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.API.Login.URL == "" {
		return errors.New("api.login.url is required")
	}
	if c.API.Login.Username == "" || c.API.Login.Password == "" {
		return errors.New("api.login credentials are required")
	}
	if c.API.Login.TOTPSecret == "" {
		return errors.New("api.login.totp_secret is required")
	}
	if c.Google.CredentialsFile == "" {
		return errors.New("google_sheets.credentials_file is required")
	}
	for name, group := range c.Groups {
		if len(group.ChannelIDs) == 0 {
			return fmt.Errorf("group %q has no channel_ids", name)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "reportsync"
	}
	if c.Google.DailySheetName == "" {
		c.Google.DailySheetName = "Daily-Report"
	}
	if c.Google.HourlySheetName == "" {
		c.Google.HourlySheetName = "Hourly-Report"
	}
	if c.API.DataSending.HourlyReport.IntervalMinutes == 0 {
		c.API.DataSending.HourlyReport.IntervalMinutes = 30
	}
	if c.API.DataSending.DailyReport.SendTime == "" {
		c.API.DataSending.DailyReport.SendTime = "18:00"
	}
	if c.Session.TokenFile == "" {
		c.Session.TokenFile = "token_cache.json"
	}
	if c.History.Path == "" {
		c.History.Path = "data/history.db"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// SSLVerify reports whether TLS certificates should be verified.
// Defaults to true when unset.
func (c *Config) SSLVerify() bool {
	if c.API.SSLVerify == nil {
		return true
	}
	return *c.API.SSLVerify
}

// GroupSpreadsheetID returns the spreadsheet id configured for a group,
// or empty when the group has no sheet binding.
func (c *Config) GroupSpreadsheetID(groupName string) string {
	return c.Google.GroupSpreadsheets[groupName]
}

// GroupDisplayName returns the configured display name for a group,
// falling back to the map key.
func (c *Config) GroupDisplayName(groupName string) string {
	if g, ok := c.Groups[groupName]; ok && g.Name != "" {
		return g.Name
	}
	return groupName
}

// GroupForChannel finds the group owning a channel id.
func (c *Config) GroupForChannel(channelID string) (string, bool) {
	for name, group := range c.Groups {
		for _, ch := range group.ChannelIDs {
			if ch.ID == channelID {
				return name, true
			}
		}
	}
	return "", false
}

// ChannelIDs returns every channel id referenced by any group.
func (c *Config) ChannelIDs() []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, group := range c.Groups {
		for _, ch := range group.ChannelIDs {
			if _, ok := seen[ch.ID]; ok || ch.ID == "" {
				continue
			}
			seen[ch.ID] = struct{}{}
			ids = append(ids, ch.ID)
		}
	}
	return ids
}
