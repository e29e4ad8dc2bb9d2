package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

var (
	PORT        string
	APP_ENV     string
	CORS_ORIGIN string
	DB_URL      string

	STRIPE_SECRET_KEY     string
	STRIPE_WEBHOOK_SECRET string

	SHOPIFY_STORE_DOMAIN     string
	SHOPIFY_STOREFRONT_TOKEN string

	JWT_SECRET          string
	ADMIN_EMAIL         string
	ADMIN_PASSWORD_HASH string
)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	PORT = getEnv("PORT", "8080")
	APP_ENV = getEnv("APP_ENV", "development")
	CORS_ORIGIN = getEnv("CORS_ORIGIN", "http://localhost:3000")
	DB_URL = mustEnv("DB_URL")

	STRIPE_SECRET_KEY = mustEnv("STRIPE_SECRET_KEY")
	STRIPE_WEBHOOK_SECRET = mustEnv("STRIPE_WEBHOOK_SECRET")

	SHOPIFY_STORE_DOMAIN = getEnv("SHOPIFY_STORE_DOMAIN", "")
	SHOPIFY_STOREFRONT_TOKEN = getEnv("SHOPIFY_STOREFRONT_TOKEN", "")

	JWT_SECRET = mustEnv("JWT_SECRET")
	ADMIN_EMAIL = mustEnv("ADMIN_EMAIL")
	ADMIN_PASSWORD_HASH = mustEnv("ADMIN_PASSWORD_HASH")
}

func mustEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("Missing required environment variable: %s", key)
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
