package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
)

const (
	DefaultPath         = "/etc/techhome/config.yaml"
	DefaultGRPCAddr     = "0.0.0.0:9000"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultDashboardDir = "/var/lib/techhome/dashboards"
	DefaultTechBaseURL  = "https://emodul.eu/api/v1"
)

// Config is the techhome runtime configuration.
type Config struct {
	Core    CoreConfig    `yaml:"core"`
	Tech    TechConfig    `yaml:"tech"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`
}

type CoreConfig struct {
	GRPCAddr     string `yaml:"grpcAddr" env:"TECHHOME_GRPC_ADDR" env-default:"0.0.0.0:9000"`
	HTTPAddr     string `yaml:"httpAddr" env:"TECHHOME_HTTP_ADDR" env-default:"0.0.0.0:8080"`
	DashboardDir string `yaml:"dashboardDir" env:"TECHHOME_DASHBOARD_DIR" env-default:"/var/lib/techhome/dashboards"`
}

// TechConfig configures the Tech (emodul) plugin. It is enabled when a module is set.
type TechConfig struct {
	BaseURL               string `yaml:"baseUrl" env:"TECH_BASE_URL" env-default:"https://emodul.eu/api/v1"`
	UserID                string `yaml:"userId" env:"TECH_USER_ID"`
	Token                 string `yaml:"token" env:"TECH_TOKEN"`
	TokenFile             string `yaml:"tokenFile" env:"TECH_TOKEN_FILE"`
	ModuleID              string `yaml:"moduleId" env:"TECH_MODULE_ID"`
	PollIntervalSeconds   int    `yaml:"pollIntervalSeconds" env:"TECH_POLL_INTERVAL_SECONDS" env-default:"30"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds" env:"TECH_REQUEST_TIMEOUT_SECONDS" env-default:"15"`
	MaxRequestsPerMinute  int    `yaml:"maxRequestsPerMinute" env:"TECH_MAX_REQUESTS_PER_MINUTE" env-default:"60"`
	DisableCoalescing     bool   `yaml:"disableCoalescing" env:"TECH_DISABLE_COALESCING"`
}

// Enabled reports whether a Tech module is configured.
func (t TechConfig) Enabled() bool {
	return strings.TrimSpace(t.ModuleID) != ""
}

// MQTTConfig configures the Home Assistant bridge. An empty broker disables it.
type MQTTConfig struct {
	Broker          string `yaml:"broker" env:"MQTT_BROKER"`
	Username        string `yaml:"username" env:"MQTT_USERNAME"`
	Password        string `yaml:"password" env:"MQTT_PASSWORD"`
	ClientID        string `yaml:"clientId" env:"MQTT_CLIENT_ID" env-default:"techhome"`
	DiscoveryPrefix string `yaml:"discoveryPrefix" env:"MQTT_DISCOVERY_PREFIX" env-default:"homeassistant"`
	TopicPrefix     string `yaml:"topicPrefix" env:"MQTT_TOPIC_PREFIX" env-default:"techhome"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return strings.TrimSpace(m.Broker) != ""
}

// Load reads the YAML config at path, applies env overrides and defaults, and validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate enforces invariants beyond YAML typing and normalizes enum values.
func (c *Config) Validate() error {
	if c.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpcAddr is required")
	}
	if c.Core.HTTPAddr == "" {
		return fmt.Errorf("core.httpAddr is required")
	}

	if c.Tech.Enabled() {
		if err := c.Tech.validate(); err != nil {
			return err
		}
	}

	if c.MQTT.Enabled() {
		if c.MQTT.DiscoveryPrefix == "" {
			return fmt.Errorf("mqtt.discoveryPrefix is required")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topicPrefix is required")
		}
	}

	return ValidateLogging(&c.Logging)
}

func (t *TechConfig) validate() error {
	if t.BaseURL == "" {
		t.BaseURL = DefaultTechBaseURL
	}
	if t.UserID == "" {
		return fmt.Errorf("tech.userId is required")
	}
	if t.Token == "" && t.TokenFile == "" {
		return fmt.Errorf("tech.token or tech.tokenFile is required")
	}
	if t.PollIntervalSeconds < 1 {
		return fmt.Errorf("tech.pollIntervalSeconds must be at least 1")
	}
	if t.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("tech.requestTimeoutSeconds must be at least 1")
	}
	if t.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("tech.maxRequestsPerMinute must be at least 1")
	}
	return nil
}

// ResolveToken returns the inline token or the trimmed contents of the token file.
func (t TechConfig) ResolveToken() (string, error) {
	if t.Token != "" {
		return t.Token, nil
	}
	data, err := os.ReadFile(t.TokenFile)
	if err != nil {
		return "", fmt.Errorf("read tech token: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("tech token file %s is empty", t.TokenFile)
	}
	return token, nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Tech.Enabled() {
		enabled["tech"] = true
	}
	return enabled
}

// PrintConfig logs the configuration with secrets masked.
func (c *Config) PrintConfig(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("grpc_addr", c.Core.GRPCAddr),
		zap.String("http_addr", c.Core.HTTPAddr),
		zap.String("dashboard_dir", c.Core.DashboardDir),
		zap.Bool("tech_enabled", c.Tech.Enabled()),
		zap.Bool("mqtt_enabled", c.MQTT.Enabled()),
		zap.String("log_format", c.Logging.Format),
		zap.String("log_level", c.Logging.Level),
	}
	if c.Tech.Enabled() {
		fields = append(fields,
			zap.String("tech_base_url", c.Tech.BaseURL),
			zap.String("tech_user_id", c.Tech.UserID),
			zap.String("tech_module_id", c.Tech.ModuleID),
			zap.Bool("tech_token_set", c.Tech.Token != "" || c.Tech.TokenFile != ""),
			zap.Int("tech_poll_interval_seconds", c.Tech.PollIntervalSeconds),
			zap.Int("tech_max_requests_per_minute", c.Tech.MaxRequestsPerMinute),
			zap.Bool("tech_disable_coalescing", c.Tech.DisableCoalescing),
		)
	}
	if c.MQTT.Enabled() {
		fields = append(fields,
			zap.String("mqtt_broker", c.MQTT.Broker),
			zap.String("mqtt_username", c.MQTT.Username),
			zap.Bool("mqtt_password_set", c.MQTT.Password != ""),
			zap.String("mqtt_discovery_prefix", c.MQTT.DiscoveryPrefix),
			zap.String("mqtt_topic_prefix", c.MQTT.TopicPrefix),
		)
	}
	logger.Info("configuration loaded", fields...)
}
