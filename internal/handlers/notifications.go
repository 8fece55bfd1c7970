package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/notifications"
	"github.com/oremus-labs/ol-advisor-relay/internal/validator"
)

// CreateNotification stores a notification and pushes it to the recipient.
func (h *Handler) CreateNotification(c *gin.Context) {
	if h.notifications == nil {
		unavailable(c, "notifications")
		return
	}
	body, ok := h.readValidated(c, validator.KindNotification)
	if !ok {
		return
	}
	var req notifications.CreateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.notifications.Create(c.Request.Context(), req)
	if err != nil {
		writeNotificationError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// ListNotifications returns a recipient's notifications, newest first.
func (h *Handler) ListNotifications(c *gin.Context) {
	if h.notifications == nil {
		unavailable(c, "notifications")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	list, err := h.notifications.List(c.Request.Context(), c.Query("recipient"), limit)
	if err != nil {
		writeNotificationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// NotificationStream streams new notifications for a recipient.
func (h *Handler) NotificationStream(c *gin.Context) {
	recipient := c.Query("recipient")
	if recipient == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient required"})
		return
	}
	h.serveFeed(c, feedStream{
		name:  "notifications",
		topic: feed.NotificationTopic(recipient),
	})
}

func writeNotificationError(c *gin.Context, err error) {
	if errors.Is(err, notifications.ErrInvalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Printf("Notification request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "notification request failed"})
}
