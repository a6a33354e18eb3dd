package config

import (
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Checkout  CheckoutConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Schema   string
}

// DSN builds a postgres connection string for the pgx driver
func (c DatabaseConfig) DSN() string {
	q := url.Values{}
	q.Set("sslmode", "disable")
	q.Set("search_path", c.Schema)
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

type RateLimitConfig struct {
	AuthRequests int
	AuthWindow   time.Duration
}

// CheckoutConfig holds the outbound chat destinations used at checkout
type CheckoutConfig struct {
	WhatsAppPhone   string
	InstagramHandle string
}

type AdminConfig struct {
	DeleteConfirmationTTL time.Duration
	ImageMaxBytes         int64
}

// IsDevelopment reports whether the server runs outside production
func (c *Config) IsDevelopment() bool {
	return c.Server.Env != "production"
}

func Load() *Config {
	// Values already present in the environment win over .env
	_ = godotenv.Load()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 10)
	viper.SetDefault("RATE_LIMIT_AUTH_WINDOW", "1m")
	viper.SetDefault("CHECKOUT_WHATSAPP_PHONE", "5519992483502")
	viper.SetDefault("CHECKOUT_INSTAGRAM_HANDLE", "viniciuss.lucas")
	viper.SetDefault("ADMIN_DELETE_CONFIRMATION_TTL", "2m")
	viper.SetDefault("ADMIN_IMAGE_MAX_BYTES", 2<<20)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Env:            viper.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_DATABASE"),
			Schema:   viper.GetString("DB_SCHEMA"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		RateLimit: RateLimitConfig{
			AuthRequests: viper.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
			AuthWindow:   viper.GetDuration("RATE_LIMIT_AUTH_WINDOW"),
		},
		Checkout: CheckoutConfig{
			WhatsAppPhone:   viper.GetString("CHECKOUT_WHATSAPP_PHONE"),
			InstagramHandle: viper.GetString("CHECKOUT_INSTAGRAM_HANDLE"),
		},
		Admin: AdminConfig{
			DeleteConfirmationTTL: viper.GetDuration("ADMIN_DELETE_CONFIRMATION_TTL"),
			ImageMaxBytes:         viper.GetInt64("ADMIN_IMAGE_MAX_BYTES"),
		},
	}
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
