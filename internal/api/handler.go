package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-emergency-alerts/internal/alerting"
	"github.com/mr1hm/go-emergency-alerts/internal/models"
	"github.com/mr1hm/go-emergency-alerts/internal/repository"
)

const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 500
)

// Engine is the part of alerting.Engine the API drives.
type Engine interface {
	ProcessEvent(ctx context.Context, event *models.EmergencyEvent) (alerting.Result, error)
	DryRun(ctx context.Context, ruleID string, event *models.EmergencyEvent) (alerting.Decision, error)
}

type Handler struct {
	engine     Engine
	deliveries repository.DeliveryReader
	stream     http.Handler
}

// NewHandler wires the routes. stream may be nil to disable the websocket feed.
func NewHandler(engine Engine, deliveries repository.DeliveryReader, stream http.Handler) *Handler {
	return &Handler{
		engine:     engine,
		deliveries: deliveries,
		stream:     stream,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/events", h.processEvent)
	api.POST("/rules/:id/test", h.testRule)
	api.GET("/rules/:id/deliveries", h.listDeliveries)
	if h.stream != nil {
		api.GET("/deliveries/stream", gin.WrapH(h.stream))
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindEvent(c *gin.Context) (*models.EmergencyEvent, bool) {
	var event models.EmergencyEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event body: " + err.Error()})
		return nil, false
	}
	if event.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event type is required"})
		return nil, false
	}
	if event.ID == "" {
		event.ID = "api_" + uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return &event, true
}

func (h *Handler) processEvent(c *gin.Context) {
	event, ok := bindEvent(c)
	if !ok {
		return
	}

	// Delivery outlives the request: pending rows are already reserved, so a
	// client hanging up must not fail them.
	res, err := h.engine.ProcessEvent(context.WithoutCancel(c.Request.Context()), event)
	if errors.Is(err, alerting.ErrInvalidEvent) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"eventId": event.ID,
		"result":  res,
	})
}

func (h *Handler) testRule(c *gin.Context) {
	event, ok := bindEvent(c)
	if !ok {
		return
	}

	ruleID := c.Param("id")
	d, err := h.engine.DryRun(c.Request.Context(), ruleID, event)
	switch {
	case errors.Is(err, alerting.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to evaluate rule"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ruleId":   ruleID,
		"eventId":  event.ID,
		"admitted": d.Admitted,
		"reason":   d.Reason,
	})
}

func (h *Handler) listDeliveries(c *gin.Context) {
	filter := repository.DeliveryFilter{
		RuleID: c.Param("id"),
		Limit:  defaultDeliveryLimit,
	}

	if s := c.Query("status"); s != "" {
		status := models.DeliveryStatus(s)
		if status != models.DeliveryPending && !status.Terminal() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending, sent or failed"})
			return
		}
		filter.Status = &status
	}
	if s := c.Query("since"); s != "" {
		t, err := parseSince(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339 or YYYY-MM-DD"})
			return
		}
		filter.Since = &t
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= maxDeliveryLimit {
			filter.Limit = lim
		}
	}
	if o := c.Query("offset"); o != "" {
		if off, err := strconv.Atoi(o); err == nil && off >= 0 {
			filter.Offset = off
		}
	}

	deliveries, err := h.deliveries.ListDeliveries(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch deliveries"})
		return
	}

	if c.Query("format") == "geojson" {
		c.Header("Content-Type", "application/geo+json")
		c.JSON(http.StatusOK, toGeoJSON(deliveries))
		return
	}

	if deliveries == nil {
		deliveries = []models.AlertDelivery{}
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries, "count": len(deliveries)})
}

func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
