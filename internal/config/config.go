package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir" mapstructure:"data_dir" validate:"required"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Render   RenderConfig   `yaml:"render" mapstructure:"render"`
	Summary  SummaryConfig  `yaml:"summary" mapstructure:"summary"`
	Notify   NotifyConfig   `yaml:"notify" mapstructure:"notify"`
	Journal  JournalConfig  `yaml:"journal" mapstructure:"journal"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Sites    []Site         `yaml:"sites" mapstructure:"sites" validate:"dive"`
}

// Site describes one watched page. Sites are immutable configuration
// input; runtime state such as the last-successful identity lives
// outside the config (see internal/fetch).
type Site struct {
	Name     string `yaml:"name" mapstructure:"name" validate:"required"`
	URL      string `yaml:"url" mapstructure:"url" validate:"required,url"`
	Selector string `yaml:"selector" mapstructure:"selector" validate:"required"`
	Render   bool   `yaml:"render" mapstructure:"render"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	AcceptLanguage string   `yaml:"accept_language" mapstructure:"accept_language"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	UserAgents     []string `yaml:"user_agents" mapstructure:"user_agents" validate:"min=1"`
}

// RenderConfig configures the headless rendering collaborator.
type RenderConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
}

// SummaryConfig configures change summarization.
type SummaryConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	APIKey        string `yaml:"api_key" mapstructure:"api_key"`
	Model         string `yaml:"model" mapstructure:"model"`
	MaxTokens     int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxInputChars int    `yaml:"max_input_chars" mapstructure:"max_input_chars"`
}

// NotifyConfig configures change notification delivery.
type NotifyConfig struct {
	DryRun     bool       `yaml:"dry_run" mapstructure:"dry_run"`
	WebhookURL string     `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	Mail       MailConfig `yaml:"mail" mapstructure:"mail"`
}

// MailConfig holds SMTP delivery settings.
type MailConfig struct {
	Enabled  bool     `yaml:"enabled" mapstructure:"enabled"`
	Host     string   `yaml:"host" mapstructure:"host"`
	Port     int      `yaml:"port" mapstructure:"port"`
	Username string   `yaml:"username" mapstructure:"username"`
	Password string   `yaml:"password" mapstructure:"password"`
	From     string   `yaml:"from" mapstructure:"from"`
	To       []string `yaml:"to" mapstructure:"to"`
}

// JournalConfig configures the run journal backend.
type JournalConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// PipelineConfig configures run execution.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"min=1"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SiteByName returns the site with the given name, or false.
func (c *Config) SiteByName(name string) (Site, bool) {
	for _, s := range c.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return Site{}, false
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("pagewatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.pagewatch")
	v.AddConfigPath("/etc/pagewatch")

	// Environment
	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("fetch.max_body_bytes", 10*1024*1024)
	v.SetDefault("fetch.accept_language", "ja,en-US;q=0.9,en;q=0.8")
	v.SetDefault("fetch.rate_limit_rps", 1.0)
	v.SetDefault("fetch.user_agents", defaultUserAgents)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.timeout_secs", 45)
	v.SetDefault("summary.enabled", false)
	v.SetDefault("summary.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("summary.max_tokens", 512)
	v.SetDefault("summary.max_input_chars", 12000)
	v.SetDefault("notify.dry_run", false)
	v.SetDefault("notify.mail.enabled", false)
	v.SetDefault("notify.mail.port", 587)
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("server.addr", ":8787")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks structural constraints. A validation failure is
// treated the same as a parse failure: fatal to the process.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}

	seen := make(map[string]struct{}, len(c.Sites))
	for _, s := range c.Sites {
		if _, dup := seen[s.Name]; dup {
			return eris.Errorf("config: duplicate site name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	return nil
}

// defaultUserAgents is the identity pool used when none is configured,
// ordered by how commonly each appears in real traffic.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
