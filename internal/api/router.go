// Package api exposes the scheduling core over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/drillcore/internal/apperr"
	"github.com/example/drillcore/internal/core"
	"github.com/example/drillcore/internal/logger"
	"github.com/example/drillcore/pkg/models"
)

// Handler serves the drill API.
type Handler struct {
	svc *core.Service
	log *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *core.Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log.With("component", "api")}
}

// NewRouter builds the gin engine with all routes attached.
func NewRouter(h *Handler, env string) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/users/:userId/batch", h.getNextBatch)
		v1.POST("/users/:userId/grades", h.submitGrade)
		v1.GET("/users/:userId/inventory", h.getInventoryStats)
		v1.POST("/users/:userId/records/reset", h.resetProgress)
		v1.POST("/users/:userId/records/mastered", h.finalizeMastery)
		v1.GET("/queue/status", h.getQueueStatus)
	}
	return r
}

func (h *Handler) getNextBatch(c *gin.Context) {
	userID := c.Param("userId")
	mode := models.Mode(c.Query("mode"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	var exclude []int64
	if raw := c.Query("exclude"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "malformed exclude list"})
				return
			}
			exclude = append(exclude, id)
		}
	}

	batch, err := h.svc.GetNextBatch(c.Request.Context(), userID, mode, limit, exclude)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

type gradeRequest struct {
	Mode       models.Mode         `json:"mode" binding:"required"`
	VocabID    int64               `json:"vocab_id" binding:"required"`
	Grade      models.ReducedGrade `json:"grade" binding:"required"`
	DurationMs int64               `json:"duration_ms"`
	IsRetry    bool                `json:"is_retry"`
}

func (h *Handler) submitGrade(c *gin.Context) {
	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.SubmitGrade(c.Request.Context(), c.Param("userId"),
		req.Mode, req.VocabID, req.Grade, req.DurationMs, req.IsRetry)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (h *Handler) getInventoryStats(c *gin.Context) {
	stats, err := h.svc.GetInventoryStats(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

type recordRequest struct {
	VocabID int64        `json:"vocab_id" binding:"required"`
	Track   models.Track `json:"track" binding:"required"`
}

func (h *Handler) resetProgress(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.ResetProgress(c.Request.Context(), c.Param("userId"), req.VocabID, req.Track); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (h *Handler) finalizeMastery(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.FinalizeMastery(c.Request.Context(), c.Param("userId"), req.VocabID, req.Track); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "mastered"})
}

func (h *Handler) getQueueStatus(c *gin.Context) {
	status, err := h.svc.GetQueueStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// fail maps domain errors to HTTP status codes.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrTransientStore):
		h.log.Warn("request hit a transient store failure", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable"})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
