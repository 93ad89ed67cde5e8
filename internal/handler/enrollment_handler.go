package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hoasen-edu/preschool-api/internal/models"
	"github.com/hoasen-edu/preschool-api/internal/service"
	appErrors "github.com/hoasen-edu/preschool-api/pkg/errors"
	"github.com/hoasen-edu/preschool-api/pkg/response"
)

// EnrollmentHandler exposes the enrollment pipeline endpoints.
type EnrollmentHandler struct {
	intake       *service.IntakeService
	confirmation *service.ConfirmationService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(intake *service.IntakeService, confirmation *service.ConfirmationService) *EnrollmentHandler {
	return &EnrollmentHandler{intake: intake, confirmation: confirmation}
}

// Submit accepts a new enrollment application.
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	var req service.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	application, err := h.intake.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, application)
}

// List returns applications with optional state filter and pagination.
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.ApplicationFilter
	filter.State = models.ApplicationState(strings.TrimSpace(c.Query("state")))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	applications, pagination, err := h.intake.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applications, pagination)
}

// Get returns one application by enroll code.
func (h *EnrollmentHandler) Get(c *gin.Context) {
	application, err := h.intake.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, application, nil)
}

// Scan triggers a mailbox scan. The response carries the applications that
// were eligible at trigger time; the scan itself runs in the background.
func (h *EnrollmentHandler) Scan(c *gin.Context) {
	eligible, err := h.confirmation.Trigger(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"scanning":     true,
		"applications": eligible,
	}, nil)
}
