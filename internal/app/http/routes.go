package routes

import (
	adminapi "ringside-app/internal/api/admin"
	authapi "ringside-app/internal/api/auth"
	checkoutapi "ringside-app/internal/api/checkout"
	eventsapi "ringside-app/internal/api/events"
	shopapi "ringside-app/internal/api/shop"
	stripewebhooks "ringside-app/internal/api/stripewebhook"
	"ringside-app/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the stateful handlers wired up in main.
type Handlers struct {
	Checkout *checkoutapi.Handler
	Events   *eventsapi.Handler
	Shop     *shopapi.Handler
	Webhook  *stripewebhooks.Handler
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	// Webhook body must reach the signature check unmodified, so it stays
	// outside the sanitizer group.
	r.POST("/webhook", h.Webhook.StripeWebhook)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/events", h.Events.ListEvents)
	r.GET("/events/:eventId", h.Events.GetEvent)

	r.GET("/shop/collections", h.Shop.ListCollections)
	r.GET("/shop/collections/:handle/products", h.Shop.GetCollectionProducts)
	r.GET("/shop/products/:handle", h.Shop.GetProductByHandle)

	// ✅ Apply input sanitization to public checkout routes only
	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())

	public.POST("/login", authapi.Login)
	public.POST("/validate-discount", h.Checkout.ValidateDiscount)
	public.POST("/events/:eventId/create-payment-intent", h.Checkout.CreatePaymentIntent)
	public.POST("/events/:eventId/stripe-payment-success", h.Checkout.StripePaymentSuccess)
	public.POST("/events/:eventId/cancel-payment-intent", h.Checkout.CancelPaymentIntent)

	// Admin routes
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.RequireRole("admin"))
	admin.GET("/registrations", adminapi.ListRegistrations)
	admin.GET("/payments", adminapi.ListPayments)
}
