package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "config.yaml"

// minJWTSecretLength is the shortest accepted HMAC secret.
const minJWTSecretLength = 16

// AppConfig carries command line options.
type AppConfig struct {
	ConfigPath string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TimeZone        string        `yaml:"timezone"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"` // retry budget at start-up
}

// JWTConfig holds token signing configuration.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// RedisConfig enables the redis revocation store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds log level and optional rotating file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// BillingConfig holds the fallback price per ton.
type BillingConfig struct {
	RatePerTon string `yaml:"rate_per_ton"`
}

// Rate parses RatePerTon. An empty value yields zero.
func (b BillingConfig) Rate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(b.RatePerTon)
	if raw == "" {
		return decimal.Zero, nil
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("billing.rate_per_ton: %w", err)
	}
	return rate, nil
}

// BootstrapConfig seeds the first superadmin. A missing password is generated
// and logged once.
type BootstrapConfig struct {
	SuperAdminEmail    string `yaml:"superadmin_email"`
	SuperAdminPassword string `yaml:"superadmin_password"`
	SuperAdminName     string `yaml:"superadmin_name"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Billing   BillingConfig   `yaml:"billing"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ResolveConfigPath picks the config file: the explicit path, then CONFIG_PATH,
// then DefaultConfigFile when it exists. It returns "" when none applies.
func ResolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("CONFIG_PATH")); p != "" {
		return p
	}
	if ConfigExists(DefaultConfigFile) {
		return DefaultConfigFile
	}
	return ""
}

// ConfigExists reports whether path names a regular file.
func ConfigExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads .env files, the YAML file at path (if any) and environment
// overrides, then applies defaults and validates.
func Load(path string) (*Config, error) {
	loadEnv(path)

	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		data, errRead := os.ReadFile(path)
		if errRead != nil {
			return nil, fmt.Errorf("read config %s: %w", path, errRead)
		}
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, errUnmarshal)
		}
	}
	if errEnv := cfg.applyEnv(); errEnv != nil {
		return nil, errEnv
	}
	cfg.applyDefaults()
	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

// LoadDatabaseDSN loads only what is needed to reach the database.
func LoadDatabaseDSN(path string) (string, error) {
	cfg, err := Load(path)
	if err != nil {
		return "", err
	}
	return cfg.Database.DSN, nil
}

// LoadJWTConfig loads only the token signing settings.
func LoadJWTConfig(path string) (JWTConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return JWTConfig{}, err
	}
	return cfg.JWT, nil
}

// loadEnv loads .env next to the config file and in the working directory.
// Variables already present in the environment win.
func loadEnv(path string) {
	candidates := []string{".env"}
	if dir := filepath.Dir(strings.TrimSpace(path)); path != "" && dir != "." {
		candidates = append([]string{filepath.Join(dir, ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if _, errStat := os.Stat(candidate); errStat != nil {
			continue
		}
		if errLoad := godotenv.Load(candidate); errLoad != nil {
			log.WithError(errLoad).Warnf("config: load %s", candidate)
		}
	}
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	setDuration := func(key string, dst *time.Duration) error {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("HOST", &c.Server.Host)
	setString("DATABASE_URL", &c.Database.DSN)
	setString("JWT_SECRET", &c.JWT.Secret)
	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)
	setString("RATE_PER_TON", &c.Billing.RatePerTon)
	setString("SUPERADMIN_EMAIL", &c.Bootstrap.SuperAdminEmail)
	setString("SUPERADMIN_PASSWORD", &c.Bootstrap.SuperAdminPassword)
	setString("SUPERADMIN_NAME", &c.Bootstrap.SuperAdminName)
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		c.CORS.AllowedOrigins = splitList(v)
	}

	return errors.Join(
		setInt("PORT", &c.Server.Port),
		setInt("REDIS_DB", &c.Redis.DB),
		setDuration("JWT_EXPIRY", &c.JWT.Expiry),
	)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.ConnectTimeout <= 0 {
		c.Database.ConnectTimeout = 30 * time.Second
	}
	if c.JWT.Expiry <= 0 {
		c.JWT.Expiry = 24 * time.Hour
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 30
	}
	if strings.TrimSpace(c.Bootstrap.SuperAdminName) == "" {
		c.Bootstrap.SuperAdminName = "Super Admin"
	}
	c.CORS.AllowedOrigins = splitList(strings.Join(c.CORS.AllowedOrigins, ","))
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required (or set DATABASE_URL)"))
	}
	if len(c.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("jwt.secret must be at least %d characters (or set JWT_SECRET)", minJWTSecretLength))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if _, errLevel := log.ParseLevel(c.Logging.Level); errLevel != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", errLevel))
	}
	if rate, errRate := c.Billing.Rate(); errRate != nil {
		errs = append(errs, errRate)
	} else if rate.IsNegative() {
		errs = append(errs, errors.New("billing.rate_per_ton must not be negative"))
	}
	if strings.TrimSpace(c.Bootstrap.SuperAdminEmail) == "" && c.Bootstrap.SuperAdminPassword != "" {
		errs = append(errs, errors.New("bootstrap.superadmin_password requires superadmin_email"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
