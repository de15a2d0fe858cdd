package handlers

import (
	"errors"
	"net/http"

	"engagement-service/internal/services"
	"engagement-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reports *services.ReportService
}

func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// ReportResponse carries the location of an exported report.
type ReportResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Export godoc
// @Summary Export a session report to object storage
// @Description Writes session, users, history and alerts as one JSON object.
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 201 {object} ReportResponse
// @Failure 502 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse "Object storage not configured"
// @Router /sessions/{id}/report [post]
func (h *ReportHandler) Export(c *gin.Context) {
	sessionID := c.Param("id")
	url, err := h.reports.Export(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, services.ErrReportsDisabled) {
			respondError(c, http.StatusServiceUnavailable, response.ErrCodeReportsDisabled, "")
			return
		}
		_ = c.Error(err)
		respondError(c, http.StatusBadGateway, response.ErrCodeReportExportFail, err.Error())
		return
	}
	c.JSON(http.StatusCreated, ReportResponse{SessionID: sessionID, URL: url})
}
