// Package api exposes an operational HTTP surface for the bot: health,
// statistics, model selection, and history administration.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tgchatbot/internal/service/ai"
	"tgchatbot/internal/service/history"
)

// Handler wires HTTP routes to the conversation core.
type Handler struct {
	history    *history.Service
	registry   *ai.Registry
	adminToken string
}

// NewHandler constructs a Handler instance. adminToken guards every route
// under /api; when empty those routes reject all requests.
func NewHandler(historySvc *history.Service, registry *ai.Registry, adminToken string) *Handler {
	return &Handler{
		history:    historySvc,
		registry:   registry,
		adminToken: adminToken,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)

	api := router.Group("/api", h.requireAdminToken())
	api.GET("/stats", h.stats)
	api.GET("/model", h.getModel)
	api.PUT("/model", h.setModel)
	api.GET("/broadcast/targets", h.broadcastTargets)
	api.DELETE("/users/:id/history", h.resetHistory)
}

func (h *Handler) requireAdminToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if h.adminToken == "" || token == header || token != h.adminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		c.Next()
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) stats(c *gin.Context) {
	users, messages, err := h.history.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":    users,
		"messages": messages,
		"model":    h.registry.Get(),
	})
}

func (h *Handler) getModel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"model":  h.registry.Get(),
		"models": h.registry.Models(),
	})
}

type setModelRequest struct {
	Model string `json:"model"`
}

func (h *Handler) setModel(c *gin.Context) {
	var req setModelRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "model is required"})
		return
	}
	if !h.registry.Set(req.Model) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "model not in allow-list",
			"models": h.registry.Models(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": h.registry.Get()})
}

func (h *Handler) broadcastTargets(c *gin.Context) {
	ids, err := h.history.BroadcastTargets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "targets unavailable"})
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"targets": ids})
}

func (h *Handler) resetHistory(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || ownerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if err := h.history.Reset(c.Request.Context(), ownerID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
