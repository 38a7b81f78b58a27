package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/middleware"
	"github.com/chenguojun06-star/fz66666-sub008/models"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
)

type StatsHandler struct {
	stats repos.StatsRepo
	log   *logger.Logger
}

func NewStatsHandler(stats repos.StatsRepo, baseLog *logger.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, log: baseLog.With("handler", "StatsHandler")}
}

// GetStats lists the caller's stage snapshot, optionally narrowed by stageName and
// scanType.
func (h *StatsHandler) GetStats(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	stageName := c.Query("stageName")
	scanType := c.Query("scanType")
	if scanType != "" && !models.ValidScanType(scanType) {
		abortJSON(c, http.StatusBadRequest, codeValidation, "unknown scanType")
		return
	}

	rows, err := h.stats.ListByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.log.Error("list stage stats failed", "tenant_id", tenantID, "error", err)
		abortJSON(c, http.StatusInternalServerError, codeInternal, "database query failed")
		return
	}

	data := make([]models.StageStatistic, 0, len(rows))
	for _, row := range rows {
		if stageName != "" && row.StageName != stageName {
			continue
		}
		if scanType != "" && row.ScanType != scanType {
			continue
		}
		data = append(data, row)
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}
