package shop

import (
	"net/http"

	"ringside-app/internal/infra/shopify"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler proxies read-only catalog lookups to the Shopify Storefront API.
type Handler struct {
	Client *shopify.Client
	Log    zerolog.Logger
}

func NewHandler(client *shopify.Client, log zerolog.Logger) *Handler {
	return &Handler{Client: client, Log: log}
}

func (h *Handler) ListCollections(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	collections, err := h.Client.ListCollections(c.Request.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("shopify: list collections failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load collections"})
		return
	}
	c.JSON(http.StatusOK, collections)
}

func (h *Handler) GetProductByHandle(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	product, err := h.Client.GetProductByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.Log.Error().Err(err).Str("handle", c.Param("handle")).Msg("shopify: get product failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load product"})
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) GetCollectionProducts(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	products, err := h.Client.GetCollectionProducts(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.Log.Error().Err(err).Str("handle", c.Param("handle")).Msg("shopify: collection products failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load collection"})
		return
	}
	if products == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Collection not found"})
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) ready(c *gin.Context) bool {
	if h.Client == nil || !h.Client.Configured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Shop is not configured"})
		return false
	}
	return true
}
