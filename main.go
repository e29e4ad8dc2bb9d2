package main

import (
	"os"
	"time"

	"ringside-app/config"
	"ringside-app/database"
	checkoutapi "ringside-app/internal/api/checkout"
	eventsapi "ringside-app/internal/api/events"
	shopapi "ringside-app/internal/api/shop"
	stripewebhooks "ringside-app/internal/api/stripewebhook"
	routes "ringside-app/internal/app/http"
	"ringside-app/internal/checkout"
	"ringside-app/internal/infra/shopify"
	"ringside-app/internal/infra/stripegw"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	config.LoadEnv()
	if config.APP_ENV == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	database.InitDB()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	sessions := checkout.NewSessionStore()
	defer sessions.Close()

	gateway := stripegw.New(config.STRIPE_SECRET_KEY)
	manager := checkout.NewManager(gateway, sessions, logger.With().Str("component", "checkout").Logger())

	handlers := routes.Handlers{
		Checkout: checkoutapi.NewHandler(database.DB, manager, logger.With().Str("component", "api").Logger()),
		Events:   eventsapi.NewHandler(database.DB),
		Shop:     shopapi.NewHandler(shopify.NewClient(config.SHOPIFY_STORE_DOMAIN, config.SHOPIFY_STOREFRONT_TOKEN), logger.With().Str("component", "shop").Logger()),
		Webhook:  stripewebhooks.NewHandler(database.DB, manager, logger.With().Str("component", "webhook").Logger()),
	}

	r := gin.Default()

	// ✅ Add CORS middleware BEFORE registering routes
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{config.CORS_ORIGIN},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, handlers)

	r.Run(":" + config.PORT)
}
