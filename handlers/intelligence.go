package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/middleware"
	"github.com/chenguojun06-star/fz66666-sub008/services"
)

// IntelligenceHandler serves the four production-floor endpoints. The tenant always
// comes from the token.
type IntelligenceHandler struct {
	predictions *services.PredictionService
	feedback    *services.FeedbackService
	log         *logger.Logger
}

func NewIntelligenceHandler(predictions *services.PredictionService, feedback *services.FeedbackService, baseLog *logger.Logger) *IntelligenceHandler {
	return &IntelligenceHandler{
		predictions: predictions,
		feedback:    feedback,
		log:         baseLog.With("handler", "IntelligenceHandler"),
	}
}

type PrecheckScanRequest struct {
	OrderID        string   `json:"orderId"`
	StageName      string   `json:"stageName" binding:"required"`
	ScanType       string   `json:"scanType"`
	Quantity       int      `json:"quantity"`
	ElapsedMinutes *float64 `json:"elapsedMinutes" binding:"required"`
}

func (h *IntelligenceHandler) PrecheckScan(c *gin.Context) {
	var req PrecheckScanRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.predictions.PrecheckScan(c.Request.Context(), services.PrecheckRequest{
		TenantID:       middleware.TenantID(c),
		OrderID:        req.OrderID,
		StageName:      req.StageName,
		ScanType:       req.ScanType,
		Quantity:       req.Quantity,
		ElapsedMinutes: *req.ElapsedMinutes,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type PredictFinishTimeRequest struct {
	OrderID         string `json:"orderId" binding:"required"`
	OrderNo         string `json:"orderNo"`
	StageName       string `json:"stageName" binding:"required"`
	ProcessName     string `json:"processName"`
	ScanType        string `json:"scanType"`
	CurrentProgress *int   `json:"currentProgress" binding:"required"`
}

func (h *IntelligenceHandler) PredictFinishTime(c *gin.Context) {
	var req PredictFinishTimeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.predictions.PredictFinishTime(c.Request.Context(), services.PredictRequest{
		TenantID:        middleware.TenantID(c),
		OrderID:         req.OrderID,
		OrderNo:         req.OrderNo,
		StageName:       req.StageName,
		ProcessName:     req.ProcessName,
		ScanType:        req.ScanType,
		CurrentProgress: *req.CurrentProgress,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type RecommendInOutRequest struct {
	OrderID         string  `json:"orderId"`
	StageName       string  `json:"stageName" binding:"required"`
	ScanType        string  `json:"scanType"`
	CurrentProgress *int    `json:"currentProgress" binding:"required"`
	ElapsedMinutes  float64 `json:"elapsedMinutes"`
}

func (h *IntelligenceHandler) RecommendInOut(c *gin.Context) {
	var req RecommendInOutRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.predictions.RecommendInOut(c.Request.Context(), services.RecommendRequest{
		TenantID:        middleware.TenantID(c),
		OrderID:         req.OrderID,
		StageName:       req.StageName,
		ScanType:        req.ScanType,
		CurrentProgress: *req.CurrentProgress,
		ElapsedMinutes:  req.ElapsedMinutes,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type FeedbackRequest struct {
	PredictionID     string     `json:"predictionId" binding:"required"`
	ActualFinishTime *time.Time `json:"actualFinishTime"`
	Accepted         *bool      `json:"accepted"`
}

type FeedbackResponse struct {
	PredictionID     string    `json:"predictionId"`
	DeviationMinutes int       `json:"deviationMinutes"`
	FeedbackTime     time.Time `json:"feedbackTime"`
}

func (h *IntelligenceHandler) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := h.feedback.AcceptFeedback(c.Request.Context(), services.FeedbackRequest{
		TenantID:         middleware.TenantID(c),
		PredictionID:     req.PredictionID,
		ActualFinishTime: req.ActualFinishTime,
		Accepted:         req.Accepted,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, FeedbackResponse{
		PredictionID:     rec.PredictionID,
		DeviationMinutes: *rec.DeviationMinutes,
		FeedbackTime:     *rec.FeedbackTime,
	})
}
