package types

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetAuthConfig() AuthConfig
	GetCORSConfig() CORSConfig
	GetPerformanceConfig() PerformanceConfig
	GetLogConfig() LogConfig
	GetUpstreamConfig() UpstreamConfig
	GetEffectiveServerConfig() ServerConfig
	Validate() error
	DisplayServerConfig()
	ReloadConfig() error
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port                    int    `json:"port"`
	Host                    string `json:"host"`
	ReadTimeout             int    `json:"read_timeout"`
	WriteTimeout            int    `json:"write_timeout"`
	IdleTimeout             int    `json:"idle_timeout"`
	GracefulShutdownTimeout int    `json:"graceful_shutdown_timeout"`
}

// AuthConfig represents authentication configuration. An empty key disables
// the credential gate entirely.
type AuthConfig struct {
	Key string `json:"key"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// PerformanceConfig represents performance configuration
type PerformanceConfig struct {
	MaxConcurrentRequests int `json:"max_concurrent_requests"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	EnableFile bool   `json:"enable_file"`
	FilePath   string `json:"file_path"`
}

// UpstreamConfig represents the endpoint requests are relayed to.
// APIKey, when set, replaces the client's credential on forwarded requests.
type UpstreamConfig struct {
	BaseURL               string `json:"base_url"`
	APIKey                string `json:"-"`
	RequestTimeout        int    `json:"request_timeout"`
	ConnectTimeout        int    `json:"connect_timeout"`
	IdleConnTimeout       int    `json:"idle_conn_timeout"`
	ResponseHeaderTimeout int    `json:"response_header_timeout"`
	MaxIdleConns          int    `json:"max_idle_conns"`
	MaxIdleConnsPerHost   int    `json:"max_idle_conns_per_host"`
	ProxyURL              string `json:"proxy_url"`
}
