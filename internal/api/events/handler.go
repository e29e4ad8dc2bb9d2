package events

import (
	"errors"
	"net/http"
	"strconv"

	"ringside-app/internal/domain/events"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	DB *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{DB: db}
}

// ListEvents returns active events, soonest first, with their option prices
// so the frontend can render the registration form.
func (h *Handler) ListEvents(c *gin.Context) {
	var evs []events.Event
	if err := h.DB.Where("active = ?", true).Order("starts_at ASC").Find(&evs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}
	c.JSON(http.StatusOK, evs)
}

// GetEvent returns a single event by numeric id or slug.
func (h *Handler) GetEvent(c *gin.Context) {
	param := c.Param("eventId")

	var ev events.Event
	var err error
	if id, parseErr := strconv.ParseUint(param, 10, 64); parseErr == nil {
		err = h.DB.Where("id = ? AND active = ?", uint(id), true).First(&ev).Error
	} else {
		err = h.DB.Where("slug = ? AND active = ?", param, true).First(&ev).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load event"})
		return
	}
	c.JSON(http.StatusOK, ev)
}
