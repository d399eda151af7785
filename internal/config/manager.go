// Package config provides environment-based configuration management.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"claude-relay/internal/types"
	"claude-relay/internal/utils"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Constants holds validation boundaries and defaults.
type Constants struct {
	MinPort    int
	MaxPort    int
	MinTimeout int
}

// DefaultConstants defines the default configuration constants
var DefaultConstants = Constants{
	MinPort:    1,
	MaxPort:    65535,
	MinTimeout: 1,
}

// Config holds the resolved application configuration.
type Config struct {
	Server      types.ServerConfig      `json:"server"`
	Auth        types.AuthConfig        `json:"auth"`
	CORS        types.CORSConfig        `json:"cors"`
	Performance types.PerformanceConfig `json:"performance"`
	Log         types.LogConfig         `json:"log"`
	Upstream    types.UpstreamConfig    `json:"upstream"`
}

// Manager implements types.ConfigManager backed by environment variables.
// A .env file in the working directory is loaded first; real environment
// variables take precedence.
type Manager struct {
	config *Config
}

// NewManager creates a configuration manager and loads the configuration.
func NewManager() (*Manager, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	manager := &Manager{}
	if err := manager.ReloadConfig(); err != nil {
		return nil, err
	}
	return manager, nil
}

// ReloadConfig re-reads the environment and validates the result.
func (m *Manager) ReloadConfig() error {
	config := &Config{
		Server: types.ServerConfig{
			Port:                    parseInteger(os.Getenv("PORT"), 3001),
			Host:                    getEnvOrDefault("HOST", "0.0.0.0"),
			ReadTimeout:             parseInteger(os.Getenv("SERVER_READ_TIMEOUT"), 60),
			WriteTimeout:            parseInteger(os.Getenv("SERVER_WRITE_TIMEOUT"), 0),
			IdleTimeout:             parseInteger(os.Getenv("SERVER_IDLE_TIMEOUT"), 120),
			GracefulShutdownTimeout: parseInteger(os.Getenv("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT"), 10),
		},
		Auth: types.AuthConfig{
			Key: strings.TrimSpace(os.Getenv("AUTH_KEY")),
		},
		CORS: types.CORSConfig{
			Enabled:          parseBoolean(os.Getenv("ENABLE_CORS"), false),
			AllowedOrigins:   utils.SplitAndTrim(os.Getenv("ALLOWED_ORIGINS"), ","),
			AllowedMethods:   parseArray(os.Getenv("ALLOWED_METHODS"), []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   parseArray(os.Getenv("ALLOWED_HEADERS"), []string{"*"}),
			AllowCredentials: parseBoolean(os.Getenv("ALLOW_CREDENTIALS"), false),
		},
		Performance: types.PerformanceConfig{
			MaxConcurrentRequests: parseInteger(os.Getenv("MAX_CONCURRENT_REQUESTS"), 100),
		},
		Log: types.LogConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			Format:     getEnvOrDefault("LOG_FORMAT", "text"),
			EnableFile: parseBoolean(os.Getenv("LOG_ENABLE_FILE"), false),
			FilePath:   getEnvOrDefault("LOG_FILE_PATH", "./data/logs/app.log"),
		},
		Upstream: types.UpstreamConfig{
			BaseURL:               strings.TrimRight(strings.TrimSpace(os.Getenv("UPSTREAM_BASE_URL")), "/"),
			APIKey:                strings.TrimSpace(os.Getenv("UPSTREAM_API_KEY")),
			RequestTimeout:        parseInteger(os.Getenv("UPSTREAM_REQUEST_TIMEOUT"), 600),
			ConnectTimeout:        parseInteger(os.Getenv("UPSTREAM_CONNECT_TIMEOUT"), 15),
			IdleConnTimeout:       parseInteger(os.Getenv("UPSTREAM_IDLE_CONN_TIMEOUT"), 120),
			ResponseHeaderTimeout: parseInteger(os.Getenv("UPSTREAM_RESPONSE_HEADER_TIMEOUT"), 600),
			MaxIdleConns:          parseInteger(os.Getenv("UPSTREAM_MAX_IDLE_CONNS"), 100),
			MaxIdleConnsPerHost:   parseInteger(os.Getenv("UPSTREAM_MAX_IDLE_CONNS_PER_HOST"), 50),
			ProxyURL:              strings.TrimSpace(os.Getenv("PROXY_URL")),
		},
	}

	// Graceful shutdown needs a floor to drain in-flight streams
	if config.Server.GracefulShutdownTimeout < 10 {
		config.Server.GracefulShutdownTimeout = 10
	}

	m.config = config
	return m.Validate()
}

// Validate checks the configuration and collects every violation.
func (m *Manager) Validate() error {
	var validationErrors []string

	if m.config.Server.Port < DefaultConstants.MinPort || m.config.Server.Port > DefaultConstants.MaxPort {
		validationErrors = append(validationErrors,
			fmt.Sprintf("port must be between %d and %d", DefaultConstants.MinPort, DefaultConstants.MaxPort))
	}

	if m.config.Performance.MaxConcurrentRequests < 1 {
		validationErrors = append(validationErrors, "max concurrent requests cannot be less than 1")
	}

	if m.config.Upstream.BaseURL == "" {
		validationErrors = append(validationErrors, "UPSTREAM_BASE_URL is required")
	} else if parsed, err := url.Parse(m.config.Upstream.BaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		validationErrors = append(validationErrors, "UPSTREAM_BASE_URL must be a valid absolute URL")
	}

	if m.config.Upstream.RequestTimeout < DefaultConstants.MinTimeout {
		validationErrors = append(validationErrors, "upstream request timeout cannot be less than 1 second")
	}

	if m.config.CORS.Enabled && len(m.config.CORS.AllowedOrigins) == 0 {
		validationErrors = append(validationErrors, "ALLOWED_ORIGINS is required when CORS is enabled")
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(validationErrors, "; "))
	}

	if m.config.Auth.Key == "" {
		logrus.Warn("AUTH_KEY is not set, the relay accepts unauthenticated requests")
	}

	return nil
}

// GetAuthConfig returns authentication configuration
func (m *Manager) GetAuthConfig() types.AuthConfig {
	return m.config.Auth
}

// GetCORSConfig returns CORS configuration
func (m *Manager) GetCORSConfig() types.CORSConfig {
	return m.config.CORS
}

// GetPerformanceConfig returns performance configuration
func (m *Manager) GetPerformanceConfig() types.PerformanceConfig {
	return m.config.Performance
}

// GetLogConfig returns logging configuration
func (m *Manager) GetLogConfig() types.LogConfig {
	return m.config.Log
}

// GetUpstreamConfig returns the upstream endpoint configuration
func (m *Manager) GetUpstreamConfig() types.UpstreamConfig {
	return m.config.Upstream
}

// GetEffectiveServerConfig returns the server configuration
func (m *Manager) GetEffectiveServerConfig() types.ServerConfig {
	return m.config.Server
}

// DisplayServerConfig logs the resolved configuration at startup.
func (m *Manager) DisplayServerConfig() {
	server := m.config.Server
	upstream := m.config.Upstream

	logrus.Info("")
	logrus.Info("======= Server Configuration =======")
	logrus.Infof("  Listen:              %s:%d", server.Host, server.Port)
	logrus.Infof("  Upstream:            %s", upstream.BaseURL)
	if upstream.APIKey != "" {
		logrus.Infof("  Upstream credential: %s", utils.MaskAPIKey(upstream.APIKey))
	} else {
		logrus.Info("  Upstream credential: client passthrough")
	}
	if m.config.Auth.Key != "" {
		logrus.Info("  Client auth:         enabled")
	} else {
		logrus.Info("  Client auth:         disabled")
	}
	logrus.Infof("  CORS:                %t", m.config.CORS.Enabled)
	logrus.Infof("  Max concurrency:     %d", m.config.Performance.MaxConcurrentRequests)
	logrus.Infof("  Log level:           %s", m.config.Log.Level)
	if m.config.Log.EnableFile {
		logrus.Infof("  Log file:            %s", m.config.Log.FilePath)
	}
	logrus.Info("====================================")
	logrus.Info("")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInteger(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolean(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseArray(value string, defaultValue []string) []string {
	if value == "" {
		return defaultValue
	}
	return utils.SplitAndTrim(value, ",")
}
