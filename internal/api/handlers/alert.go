package handlers

import (
	"net/http"

	"engagement-service/internal/repositories"

	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	store repositories.AlertStore
}

func NewAlertHandler(store repositories.AlertStore) *AlertHandler {
	return &AlertHandler{store: store}
}

// Resolve godoc
// @Summary Mark an alert resolved
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Alert ID"
// @Success 200 {object} models.Alert
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /alerts/{id}/resolve [post]
func (h *AlertHandler) Resolve(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	alert, err := h.store.ResolveAlert(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}
