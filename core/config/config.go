package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Gupshup    GupshupConfig
	Amo        AmoConfig
	WorkerPool WorkerPoolConfig
	Security   SecurityConfig
	HTTP       HTTPConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir  string
	Statics  string
	Media    string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type GupshupConfig struct {
	APIKey        string
	AppName       string
	SourceNumber  string
	BaseURL       string
	WebhookSecret string
}

// Configured reports whether outbound sends can be attempted.
func (g GupshupConfig) Configured() bool {
	return g.APIKey != "" && g.SourceNumber != ""
}

type AmoConfig struct {
	Subdomain    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AccessToken  string
	RefreshToken string
	BaseURL      string
	TokenURL     string
	AuthURL      string
	PipelineID   int64
	StatusID     int64
	TokenStore   string // env | settings | valkey
	EnvFile      string
}

// Configured reports whether the OAuth client can talk to the CRM at all.
func (a AmoConfig) Configured() bool {
	return a.Subdomain != "" && a.ClientID != "" && a.ClientSecret != ""
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

type SecurityConfig struct {
	SecretKey string
}

type HTTPConfig struct {
	Timeout time.Duration
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	} else if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		debug = true
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	port := getEnv("APP_PORT", getEnv("PORT", "3001"))

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               port,
		Debug:              debug,
		Environment:        getEnv("APP_ENV", getEnv("NODE_ENV", "development")),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:"+port),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Statics:  getEnv("PATH_STATICS", "statics"),
		Media:    getEnv("PATH_MEDIA", filepath.Join("statics", "media")),
		Storages: baseDir,
	}

	dbDriver := getEnv("DB_DRIVER", "sqlite")
	dbName := filepath.Join(pathsCfg.Storages, "bridge.db")
	if dbDriver == "postgres" {
		dbName = getEnv("DB_NAME", "whatsapp_amo")
	} else if v := os.Getenv("DB_NAME"); v != "" {
		dbName = v
	}
	dbCfg := DatabaseConfig{
		Driver:          dbDriver,
		Name:            dbName,
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "waamo:"),
	}

	gupshupCfg := GupshupConfig{
		APIKey:        getEnv("GUPSHUP_API_KEY", ""),
		AppName:       getEnv("GUPSHUP_APP_NAME", ""),
		SourceNumber:  getEnv("GUPSHUP_SOURCE_NUMBER", ""),
		BaseURL:       strings.TrimRight(getEnv("GUPSHUP_BASE_URL", "https://api.gupshup.io/sm/api/v1"), "/"),
		WebhookSecret: getEnv("GUPSHUP_WEBHOOK_SECRET", ""),
	}

	subdomain := getEnv("AMO_SUBDOMAIN", "")
	amoCfg := AmoConfig{
		Subdomain:    subdomain,
		ClientID:     getEnv("AMO_CLIENT_ID", ""),
		ClientSecret: getEnv("AMO_CLIENT_SECRET", ""),
		RedirectURI:  getEnv("AMO_REDIRECT_URI", "http://localhost:"+port+"/api/amo/callback"),
		AccessToken:  getEnv("AMO_ACCESS_TOKEN", ""),
		RefreshToken: getEnv("AMO_REFRESH_TOKEN", ""),
		BaseURL:      strings.TrimRight(getEnv("AMO_BASE_URL", amoHost(subdomain)+"/api/v4"), "/"),
		TokenURL:     getEnv("AMO_TOKEN_URL", amoHost(subdomain)+"/oauth2/access_token"),
		AuthURL:      getEnv("AMO_AUTH_URL", "https://www.amocrm.ru/oauth"),
		PipelineID:   getEnvInt64("AMO_PIPELINE_ID", 0),
		StatusID:     getEnvInt64("AMO_STATUS_ID", 0),
		TokenStore:   strings.ToLower(getEnv("AMO_TOKEN_STORE", "env")),
		EnvFile:      getEnv("AMO_ENV_FILE", ".env"),
	}

	cfg := &Config{
		App:        appCfg,
		Paths:      pathsCfg,
		Database:   dbCfg,
		Gupshup:    gupshupCfg,
		Amo:        amoCfg,
		WorkerPool: WorkerPoolConfig{Size: getEnvInt("MESSAGE_WORKER_POOL_SIZE", 8), QueueSize: getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", 500)},
		Security:   SecurityConfig{SecretKey: getEnv("APP_SECRET_KEY", "")},
		HTTP:       HTTPConfig{Timeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second)},
	}

	Global = cfg
	return cfg, nil
}

func amoHost(subdomain string) string {
	if subdomain == "" {
		return "https://example.amocrm.ru"
	}
	return "https://" + subdomain + ".amocrm.ru"
}
