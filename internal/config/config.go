package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	AppPort    string
	AppEnv     string
	LogLevel   string

	OrderStore string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret         string
	InternalSecretKey string

	AdminEmail        string
	AdminPasswordHash string

	// GOPay holds the raw gateway options as the admin form would submit them.
	GOPay map[string]string
}

// gopayEnv maps admin option names to their environment variables.
var gopayEnv = map[string]string{
	"enabled":          "GOPAY_ENABLED",
	"title":            "GOPAY_TITLE",
	"description":      "GOPAY_DESCRIPTION",
	"instructions":     "GOPAY_INSTRUCTIONS",
	"merchant_id":      "GOPAY_MERCHANT_ID",
	"api_key":          "GOPAY_API_KEY",
	"trans_key":        "GOPAY_TRANS_KEY",
	"test_mode":        "GOPAY_TEST_MODE",
	"test_url":         "GOPAY_TEST_URL",
	"live_url":         "GOPAY_LIVE_URL",
	"return_url":       "GOPAY_RETURN_URL",
	"callback_url":     "GOPAY_CALLBACK_URL",
	"signature_scheme": "GOPAY_SIGNATURE_SCHEME",
	"direct_post":      "GOPAY_DIRECT_POST",
	"timeout":          "GOPAY_TIMEOUT",
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:            os.Getenv("DB_HOST"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		DBPort:            os.Getenv("DB_PORT"),
		DBSSLMode:         getEnv("DB_SSLMODE", "disable"),
		AppPort:           getEnv("APP_PORT", "8080"),
		AppEnv:            os.Getenv("APP_ENV"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		OrderStore:        getEnv("ORDER_STORE", StorePostgres),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		GOPay:             make(map[string]string),
	}

	for option, env := range gopayEnv {
		if v, ok := os.LookupEnv(env); ok {
			cfg.GOPay[option] = v
		}
	}

	if cfg.OrderStore == StorePostgres && cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
