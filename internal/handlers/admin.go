package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apperrors "xui-sync/internal/errors"
	"xui-sync/internal/services"
)

// Handler exposes the sync engine to the billing/admin domain over HTTP
type Handler struct {
	sync      *services.SyncService
	provision *services.ProvisionService
	logs      services.SyncLogStore
	qr        *services.QRService
	logger    *logrus.Logger
}

// NewHandler creates the HTTP handler set
func NewHandler(sync *services.SyncService, provision *services.ProvisionService, logs services.SyncLogStore, qr *services.QRService, logger *logrus.Logger) *Handler {
	return &Handler{
		sync:      sync,
		provision: provision,
		logs:      logs,
		qr:        qr,
		logger:    logger,
	}
}

// Register mounts all routes on the engine
func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/servers/:id/sync", h.syncServer)
		api.GET("/servers/:id/synclogs/latest", h.latestSyncLog)

		api.POST("/subscriptions/:id/client", h.createClient)
		api.DELETE("/subscriptions/:id/client", h.deleteClient)
		api.PUT("/subscriptions/:id/traffic", h.updateTraffic)
		api.PUT("/subscriptions/:id/expiry", h.updateExpiry)
		api.POST("/subscriptions/:id/reset", h.resetTraffic)
		api.GET("/subscriptions/:id/config", h.getConfig)
		api.GET("/subscriptions/:id/config/qr", h.getConfigQR)
	}
}

func (h *Handler) syncServer(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	entry, err := h.sync.SyncServer(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) latestSyncLog(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	entry, err := h.logs.Latest(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) createClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.provision.CreateClient(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteClient(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.provision.DeleteClient(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateTraffic(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		LimitGB float64 `json:"limit_gb" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provision.UpdateClientTraffic(c.Request.Context(), id, body.LimitGB); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) updateExpiry(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body struct {
		Until time.Time `json:"until" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provision.UpdateClientExpiry(c.Request.Context(), id, body.Until); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) resetTraffic(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.provision.ResetClientTraffic(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getConfig(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	config, err := h.provision.GetConnectionConfig(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, config)
}

func (h *Handler) getConfigQR(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	config, err := h.provision.GetConnectionConfig(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	png, err := h.qr.GenerateQR(config.SubURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// fail maps the engine's error taxonomy onto HTTP statuses
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.IsRemoteRejected(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperrors.IsAuthentication(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Errorf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
