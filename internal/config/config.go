package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DBDriver               string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	ProductCacheTTLSeconds int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	SeedAdminPassword      string
	ReadErrorPolicy        string
}

const DefaultSeedAdminPassword = "admin123"

// Load reads an optional .env file from the working directory, then the
// process environment, then the defaults below.
func Load() Config {
	return load(".env")
}

func load(envFile string) Config {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[config] WARN: read %s: %v", envFile, err)
	}

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DATABASE_URL", "tillbook.db")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PRODUCT_CACHE_TTL_SECONDS", 30)
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("SEED_ADMIN_PASSWORD", DefaultSeedAdminPassword)
	v.SetDefault("READ_ERROR_POLICY", "propagate")

	cacheTTL := v.GetInt("PRODUCT_CACHE_TTL_SECONDS")
	if cacheTTL < 1 {
		cacheTTL = 30
	}
	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}

	return Config{
		Port:                   strings.TrimSpace(v.GetString("PORT")),
		AllowedOrigin:          strings.TrimSpace(v.GetString("ALLOWED_ORIGIN")),
		DBDriver:               strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
		DatabaseURL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:              strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		ProductCacheTTLSeconds: cacheTTL,
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		SeedAdminPassword:      v.GetString("SEED_ADMIN_PASSWORD"),
		ReadErrorPolicy:        strings.TrimSpace(v.GetString("READ_ERROR_POLICY")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ProductCacheTTL() time.Duration {
	return time.Duration(c.ProductCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
