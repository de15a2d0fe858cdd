package handlers

import (
	"net/http"
	"strconv"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
	"engagement-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// MemberSource lists the live members of a session.
type MemberSource interface {
	MembersOf(sessionID string) []string
}

// HistorySource yields the recorded overall scores of a session.
type HistorySource interface {
	HistoryOf(sessionID string) []int
}

type SessionHandler struct {
	store   repositories.Store
	members MemberSource
	history HistorySource
}

func NewSessionHandler(store repositories.Store, members MemberSource, history HistorySource) *SessionHandler {
	return &SessionHandler{store: store, members: members, history: history}
}

// MembersResponse lists the user ids currently registered to a session.
type MembersResponse struct {
	SessionID string   `json:"sessionId"`
	Members   []string `json:"members"`
}

// ListActive godoc
// @Summary List active sessions
// @Tags sessions
// @Produce json
// @Success 200 {array} models.Session
// @Failure 500 {object} models.ErrorResponse
// @Router /sessions [get]
func (h *SessionHandler) ListActive(c *gin.Context) {
	sessions, err := h.store.ActiveSessions(c.Request.Context())
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// Get godoc
// @Summary Get a session
// @Tags sessions
// @Produce json
// @Param id path int true "Session ID"
// @Success 200 {object} models.Session
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	session, err := h.store.GetSession(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Create godoc
// @Summary Create a session
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.NewSession true "Session data"
// @Success 201 {object} models.Session
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req models.NewSession
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, response.ErrCodeParamInvalid, err.Error())
		return
	}
	session, err := h.store.CreateSession(c.Request.Context(), req)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// End godoc
// @Summary End a session
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param id path int true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} models.ErrorResponse
// @Router /sessions/{id}/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	session, err := h.store.EndSession(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Users godoc
// @Summary List the user records of a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} models.User
// @Router /sessions/{id}/users [get]
func (h *SessionHandler) Users(c *gin.Context) {
	users, err := h.store.GetUsersBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, users)
}

// Alerts godoc
// @Summary List alerts of a session, newest first
// @Tags alerts
// @Produce json
// @Param id path string true "Session ID"
// @Param limit query int false "Maximum number of alerts"
// @Success 200 {array} models.Alert
// @Failure 400 {object} models.ErrorResponse
// @Router /sessions/{id}/alerts [get]
func (h *SessionHandler) Alerts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, response.ErrCodeParamInvalid, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	alerts, err := h.store.AlertsBySession(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

// Engagement godoc
// @Summary Recorded overall attention scores of a session
// @Description Oldest first; an empty array when nothing was recorded.
// @Tags engagement
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} int
// @Router /sessions/{id}/engagement [get]
func (h *SessionHandler) Engagement(c *gin.Context) {
	c.JSON(http.StatusOK, h.history.HistoryOf(c.Param("id")))
}

// Members godoc
// @Summary Live members of a session
// @Tags engagement
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} MembersResponse
// @Router /sessions/{id}/members [get]
func (h *SessionHandler) Members(c *gin.Context) {
	sessionID := c.Param("id")
	c.JSON(http.StatusOK, MembersResponse{
		SessionID: sessionID,
		Members:   h.members.MembersOf(sessionID),
	})
}
