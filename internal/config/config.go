package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort      string
	WSPort        string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	JWTSecret     string
	InternalToken string
}

func Load() *Config {
	// Optional; real env vars win over .env.
	_ = godotenv.Load()

	return &Config{
		HTTPPort:      getEnv("PORT", "8080"),
		WSPort:        getEnv("WS_PORT", "8081"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "courier"),
		DBPassword:    getEnv("DB_PASSWORD", "courier_dev_password"),
		DBName:        getEnv("DB_NAME", "chatapp"),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-me"),
		InternalToken: getEnv("INTERNAL_TOKEN", "dev-internal-token"),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}
