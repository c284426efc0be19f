package handlers

import (
	"net/http"

	"face-attendance-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// GetStatus reports store reachability, roster counts, gallery size,
// component readiness and process statistics. It answers 503 when the store
// is unreachable.
func (h *APIHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	resp := gin.H{"status": "ok"}

	if err := h.repo.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		resp["status"] = "degraded"
		resp["database"] = gin.H{"ok": false, "error": err.Error()}
	} else if stats, err := h.repo.GetStatistics(ctx); err != nil {
		resp["database"] = gin.H{"ok": true, "error": err.Error()}
	} else {
		resp["database"] = gin.H{"ok": true}
		resp["statistics"] = stats
	}

	if h.gallery != nil {
		persons, samples := h.gallery.Counts()
		resp["gallery"] = gin.H{"persons": persons, "samples": samples}
	}

	components := gin.H{}
	for name, ready := range h.checks {
		components[name] = ready()
	}
	resp["components"] = components

	var pool utils.PoolStats
	if h.pool != nil {
		pool = h.pool
	}
	resp["system"] = utils.GetSystemStats(pool)

	c.JSON(status, resp)
}
