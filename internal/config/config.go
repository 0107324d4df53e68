package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNotBootstrapped is returned when the deployment section is missing the
// values every console needs (the identity server origin)
var ErrNotBootstrapped = errors.New("deployment configuration is not initialized")

// Connection test modes
const (
	ConnectionTestRemote = "remote"
	ConnectionTestDirect = "direct"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Identity server API configuration
	Identity IdentityConfig

	// Deployment configuration served to the consoles
	Deployment DeploymentConfig

	// UI configuration served to the consoles
	UI UIConfig

	// i18n configuration served to the consoles
	I18n I18nConfig

	// API authentication configuration
	Auth AuthConfig

	// CORS configuration
	CORS CORSConfig

	// Edit session configuration
	Session SessionConfig

	// Logging configuration
	Log LogConfig

	// Monitoring configuration
	Monitoring MonitoringConfig

	// WebSocket configuration
	WebSocket WebSocketConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port            string
	Host            string
	Env             string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// IdentityConfig holds the identity server REST API settings
type IdentityConfig struct {
	AccessToken    string
	Username       string
	Password       string
	Timeout        time.Duration
	MaxRetries     int
	ConnectionTest string
	DirectTimeout  time.Duration
}

// RoutesConfig holds the console's own routes
type RoutesConfig struct {
	Home   string
	Login  string
	Logout string
}

// ConsoleAppConfig points to the admin console
type ConsoleAppConfig struct {
	Path string
}

// DeploymentConfig describes where the consoles and the identity server live
type DeploymentConfig struct {
	ConsoleApp             ConsoleAppConfig
	AppBase                string
	AppBaseWithTenant      string
	Routes                 RoutesConfig
	ClientOrigin           string
	ClientOriginWithTenant string
	ClientID               string
	IdpConfigs             map[string]interface{}
	LoginCallbackURL       string
	ProductVersion         string
	ServerOrigin           string
	ServerOriginWithTenant string
	SuperTenant            string
	Tenant                 string
	TenantPath             string
}

// UIConfig holds branding and feature toggles for the consoles
type UIConfig struct {
	Announcements                []map[string]interface{}
	AppName                      string
	AppTitle                     string
	AppCopyright                 string
	AuthenticatorApp             map[string]interface{}
	Features                     map[string]interface{}
	I18nConfigs                  map[string]interface{}
	IsCookieConsentBannerEnabled bool
	IsHeaderAvatarLabelAllowed   bool
	IsProfileUsernameReadonly    bool
	PrivacyPolicyConfigs         map[string]interface{}
	ProductName                  string
	ProductVersionConfig         map[string]interface{}
	Theme                        map[string]interface{}
	DisableMFAForSuperTenantUser bool
	ShowAppSwitchButton          bool
}

// I18nConfig holds the i18n module options
type I18nConfig struct {
	FallbackLanguage        string
	DefaultNamespace        string
	Namespaces              []string
	LangAutoDetectEnabled   bool
	XHRBackendPluginEnabled bool
	OverrideOptions         bool
	NamespaceDirectories    map[string]string
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	SecretKey string
	Issuer    string
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// SessionConfig holds edit session configuration
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string
	Format     string
	Output     string
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	MetricsEnabled bool
	MetricsPath    string
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
	AlertBacklog    int
}

// Load loads configuration from environment variables and config files.
// An empty configFile searches the default locations.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/iamconsole/")
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Set default values
	setDefaults(v)

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicitly bind environment variables for nested structures
	bindEnvVars(v)

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}

	cfg.Deployment.deriveTenantValues()

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.requesttimeout", "30s")
	v.SetDefault("server.shutdowntimeout", "10s")

	// Identity server defaults
	v.SetDefault("identity.timeout", "30s")
	v.SetDefault("identity.maxretries", 3)
	v.SetDefault("identity.connectiontest", ConnectionTestRemote)
	v.SetDefault("identity.directtimeout", "10s")

	// Deployment defaults
	v.SetDefault("deployment.consoleapp.path", "/console")
	v.SetDefault("deployment.appbase", "myaccount")
	v.SetDefault("deployment.routes.home", "/overview")
	v.SetDefault("deployment.routes.login", "/login")
	v.SetDefault("deployment.routes.logout", "/logout")
	v.SetDefault("deployment.clientorigin", "https://localhost:9443")
	v.SetDefault("deployment.clientid", "MY_ACCOUNT")
	v.SetDefault("deployment.logincallbackurl", "/myaccount/login")
	v.SetDefault("deployment.serverorigin", "https://localhost:9443")
	v.SetDefault("deployment.supertenant", "carbon.super")
	v.SetDefault("deployment.tenant", "carbon.super")

	// UI defaults
	v.SetDefault("ui.appname", "My Account")
	v.SetDefault("ui.apptitle", "My Account")
	v.SetDefault("ui.appcopyright", "${copyright} ${year} Identity Server")
	v.SetDefault("ui.productname", "Identity Server")
	v.SetDefault("ui.iscookieconsentbannerenabled", true)
	v.SetDefault("ui.isheaderavatarlabelallowed", true)
	v.SetDefault("ui.showappswitchbutton", true)

	// i18n defaults
	v.SetDefault("i18n.fallbacklanguage", "en-US")
	v.SetDefault("i18n.defaultnamespace", "common")
	v.SetDefault("i18n.namespaces", []string{"common", "myAccount"})
	v.SetDefault("i18n.langautodetectenabled", true)
	v.SetDefault("i18n.xhrbackendpluginenabled", true)
	v.SetDefault("i18n.overrideoptions", false)
	v.SetDefault("i18n.namespacedirectories", map[string]string{
		"common":    "portals",
		"myAccount": "portals",
	})

	// Auth defaults
	v.SetDefault("auth.issuer", "iamconsole-api")

	// CORS defaults
	v.SetDefault("cors.allowedorigins", []string{"https://localhost:9000"})
	v.SetDefault("cors.allowedmethods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"})
	v.SetDefault("cors.allowedheaders", []string{"Content-Type", "Authorization", "X-Requested-With"})
	v.SetDefault("cors.allowcredentials", true)

	// Session defaults
	v.SetDefault("session.idletimeout", "30m")
	v.SetDefault("session.sweepinterval", "1m")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.maxsize", 100)
	v.SetDefault("log.maxbackups", 3)
	v.SetDefault("log.maxage", 7)
	v.SetDefault("log.compress", true)

	// Monitoring defaults
	v.SetDefault("monitoring.metricsenabled", true)
	v.SetDefault("monitoring.metricspath", "/metrics")

	// WebSocket defaults
	v.SetDefault("websocket.readbuffersize", 1024)
	v.SetDefault("websocket.writebuffersize", 1024)
	v.SetDefault("websocket.pingperiod", "54s")
	v.SetDefault("websocket.pongwait", "60s")
	v.SetDefault("websocket.alertbacklog", 50)
}

// deriveTenantValues fills the tenant qualified values the bootstrap script
// of the consoles used to compute
func (d *DeploymentConfig) deriveTenantValues() {
	if d.TenantPath == "" && d.Tenant != "" && d.Tenant != d.SuperTenant {
		d.TenantPath = "/t/" + d.Tenant
	}
	if d.ServerOriginWithTenant == "" && d.ServerOrigin != "" {
		d.ServerOriginWithTenant = strings.TrimSuffix(d.ServerOrigin, "/") + d.TenantPath
	}
	if d.ClientOriginWithTenant == "" && d.ClientOrigin != "" {
		d.ClientOriginWithTenant = strings.TrimSuffix(d.ClientOrigin, "/") + d.TenantPath
	}
	if d.AppBaseWithTenant == "" && d.AppBase != "" {
		d.AppBaseWithTenant = d.TenantPath + "/" + strings.TrimPrefix(d.AppBase, "/")
	}
}

// validate validates the configuration
func validate(cfg *Config) error {
	// Server validation
	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	// Deployment validation
	if cfg.Deployment.ServerOrigin == "" {
		return fmt.Errorf("%w: deployment server origin is required", ErrNotBootstrapped)
	}

	// Identity validation
	switch cfg.Identity.ConnectionTest {
	case ConnectionTestRemote, ConnectionTestDirect:
	default:
		return fmt.Errorf("identity connection test mode must be %q or %q", ConnectionTestRemote, ConnectionTestDirect)
	}
	if cfg.Identity.MaxRetries < 0 {
		return fmt.Errorf("identity max retries must not be negative")
	}

	// Auth validation
	if cfg.Auth.SecretKey == "" && cfg.IsProduction() {
		return fmt.Errorf("auth secret key is required in production")
	}

	// WebSocket validation
	if cfg.WebSocket.ReadBufferSize <= 0 {
		return fmt.Errorf("websocket read buffer size must be positive")
	}
	if cfg.WebSocket.WriteBufferSize <= 0 {
		return fmt.Errorf("websocket write buffer size must be positive")
	}
	if cfg.WebSocket.AlertBacklog <= 0 {
		return fmt.Errorf("websocket alert backlog must be positive")
	}

	return nil
}

// bindEnvVars explicitly binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.env", "SERVER_ENV", "ENV")
	v.BindEnv("server.requesttimeout", "SERVER_REQUEST_TIMEOUT")
	v.BindEnv("server.shutdowntimeout", "SERVER_SHUTDOWN_TIMEOUT")

	// Identity
	v.BindEnv("identity.accesstoken", "IDENTITY_ACCESS_TOKEN")
	v.BindEnv("identity.username", "IDENTITY_USERNAME")
	v.BindEnv("identity.password", "IDENTITY_PASSWORD")
	v.BindEnv("identity.timeout", "IDENTITY_TIMEOUT")
	v.BindEnv("identity.maxretries", "IDENTITY_MAX_RETRIES")
	v.BindEnv("identity.connectiontest", "IDENTITY_CONNECTION_TEST")
	v.BindEnv("identity.directtimeout", "IDENTITY_DIRECT_TIMEOUT")

	// Deployment
	v.BindEnv("deployment.serverorigin", "SERVER_ORIGIN")
	v.BindEnv("deployment.clientorigin", "CLIENT_ORIGIN")
	v.BindEnv("deployment.clientid", "CLIENT_ID")
	v.BindEnv("deployment.tenant", "TENANT")
	v.BindEnv("deployment.supertenant", "SUPER_TENANT")
	v.BindEnv("deployment.productversion", "PRODUCT_VERSION")

	// Auth
	v.BindEnv("auth.secretkey", "AUTH_SECRET_KEY")
	v.BindEnv("auth.issuer", "AUTH_ISSUER")

	// CORS
	v.BindEnv("cors.allowedorigins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("cors.allowedmethods", "CORS_ALLOWED_METHODS")
	v.BindEnv("cors.allowedheaders", "CORS_ALLOWED_HEADERS")
	v.BindEnv("cors.allowcredentials", "CORS_ALLOW_CREDENTIALS")

	// Session
	v.BindEnv("session.idletimeout", "SESSION_IDLE_TIMEOUT")
	v.BindEnv("session.sweepinterval", "SESSION_SWEEP_INTERVAL")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
	v.BindEnv("log.output", "LOG_OUTPUT")
	v.BindEnv("log.filepath", "LOG_FILE_PATH")

	// Monitoring
	v.BindEnv("monitoring.metricsenabled", "METRICS_ENABLED")
	v.BindEnv("monitoring.metricspath", "METRICS_PATH")

	// WebSocket
	v.BindEnv("websocket.readbuffersize", "WEBSOCKET_READ_BUFFER_SIZE")
	v.BindEnv("websocket.writebuffersize", "WEBSOCKET_WRITE_BUFFER_SIZE")
	v.BindEnv("websocket.pingperiod", "WEBSOCKET_PING_PERIOD")
	v.BindEnv("websocket.pongwait", "WEBSOCKET_PONG_WAIT")
	v.BindEnv("websocket.alertbacklog", "WEBSOCKET_ALERT_BACKLOG")
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.Server.Env == "test"
}

// Address returns the host:port the HTTP server listens on
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}
