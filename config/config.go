package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Convoy   ConvoyConfig
	Redis    RedisConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	ReadTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// CallTimeout bounds every repository call.
	CallTimeout time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// ConvoyConfig holds the tunable limits of convoy sessions and nearby search.
type ConvoyConfig struct {
	DefaultMaxMembers int
	NearbyMaxRadiusKm float64
	NearbyMaxLimit    int
	// LocationBroadcast pushes member location fixes to live websocket rooms.
	LocationBroadcast bool
}

// RedisConfig enables the cross-instance location bus. Empty Addr keeps fan-out in process.
type RedisConfig struct {
	Addr    string
	Channel string
}

type LogConfig struct {
	Mode string // dev | prod
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8099"),
			Env:         getEnv("APP_ENV", "development"),
			ReadTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			// clientFoundRows makes RowsAffected count matched rows, which the
			// conditional center update relies on.
			DSN:             getEnv("DATABASE_DSN", "convoy:convoy@tcp(localhost:3306)/convoyhub?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true"),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: time.Hour,
			CallTimeout:     5 * time.Second,
		},
		JWT: JWTConfig{
			AccessSecret:  getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: getEnv("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "convoyhub",
		},
		Convoy: ConvoyConfig{
			DefaultMaxMembers: getEnvInt("CONVOY_DEFAULT_MAX_MEMBERS", 20),
			NearbyMaxRadiusKm: getEnvFloat("NEARBY_MAX_RADIUS_KM", 100),
			NearbyMaxLimit:    getEnvInt("NEARBY_MAX_LIMIT", 50),
			LocationBroadcast: getEnv("CONVOY_LOCATION_BROADCAST", "true") != "false",
		},
		Redis: RedisConfig{
			Addr:    strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Channel: getEnv("REDIS_CHANNEL", "convoy-events"),
		},
		Log: LogConfig{
			Mode: getEnv("LOG_MODE", "dev"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
