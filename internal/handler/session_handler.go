package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/seat-enrollment-api/internal/dto"
	"github.com/noah-isme/seat-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/seat-enrollment-api/pkg/errors"
	"github.com/noah-isme/seat-enrollment-api/pkg/response"
)

type sessionService interface {
	Create(ctx context.Context, req dto.CreateSessionRequest) (*models.SessionDetail, error)
	List(ctx context.Context, query dto.SessionQuery) ([]models.Session, *models.Pagination, error)
	Get(ctx context.Context, ref string) (*models.SessionDetail, error)
	Start(ctx context.Context, ref string) (*models.Session, error)
	Stop(ctx context.Context, ref string) (*models.Session, error)
}

// SessionHandler exposes session management endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler builds a new handler.
func NewSessionHandler(service sessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Create godoc
// @Summary Create an enrollment session
// @Description Creates an upcoming session with its courses, roster and eligibility rules. The default rule table applies when rules are omitted.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	detail, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// List godoc
// @Summary List sessions, newest first
// @Tags Sessions
// @Produce json
// @Param status query string false "upcoming, open or closed"
// @Param type query string false "open or professional"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	var query dto.SessionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	sessions, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get a session with its courses
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID or name"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Start godoc
// @Summary Open a session for enrollment
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID or name"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	session, err := h.service.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Stop godoc
// @Summary Close a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID or name"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/stop [post]
func (h *SessionHandler) Stop(c *gin.Context) {
	session, err := h.service.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}
