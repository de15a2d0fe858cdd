package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
	"engagement-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
)

func respondError(c *gin.Context, status, code int, details string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Code:    code,
		Message: response.Message(code),
		Details: details,
	})
}

// respondStoreError maps a store failure onto 404, 503 or 500.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		respondError(c, http.StatusNotFound, response.ErrCodeNotFound, err.Error())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		respondError(c, http.StatusServiceUnavailable, response.ErrCodeStoreFailure, err.Error())
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, response.ErrCodeStoreFailure, "")
	}
}

// uintParam parses a numeric path parameter, answering 400 when it is not one.
func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, response.ErrCodeParamInvalid, name+" must be a positive integer")
		return 0, false
	}
	return uint(id), true
}
