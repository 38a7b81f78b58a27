package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/middleware"
	"github.com/chenguojun06-star/fz66666-sub008/repos"
)

// PredictionHandler pages through a tenant's prediction log.
type PredictionHandler struct {
	predictions repos.PredictionRepo
	log         *logger.Logger
}

func NewPredictionHandler(predictions repos.PredictionRepo, baseLog *logger.Logger) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, log: baseLog.With("handler", "PredictionHandler")}
}

func (h *PredictionHandler) GetPredictions(c *gin.Context) {
	p, err := ParsePagination(c)
	if err != nil {
		abortJSON(c, http.StatusBadRequest, codeValidation, "invalid before cursor, must be RFC3339")
		return
	}
	pendingOnly, _ := strconv.ParseBool(c.DefaultQuery("pendingFeedback", "false"))

	rows, err := h.predictions.List(c.Request.Context(), repos.PredictionFilter{
		TenantID:    middleware.TenantID(c),
		Before:      p.Before,
		PendingOnly: pendingOnly,
		Limit:       p.Limit + 1,
	})
	if err != nil {
		h.log.Error("list predictions failed", "tenant_id", middleware.TenantID(c), "error", err)
		abortJSON(c, http.StatusInternalServerError, codeInternal, "database query failed")
		return
	}

	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}

	var nextCursor string
	if hasMore && len(rows) > 0 {
		nextCursor = rows[len(rows)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	c.JSON(http.StatusOK, CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore})
}
