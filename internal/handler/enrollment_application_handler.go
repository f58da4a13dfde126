package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/middleware"
	"github.com/noah-isme/registrar-api/internal/models"
	"github.com/noah-isme/registrar-api/pkg/response"
)

type enrollmentApplicationService interface {
	Submit(ctx context.Context, actor *models.Actor, req dto.SubmitApplicationRequest) (*models.EnrollmentApplication, error)
	List(ctx context.Context, actor models.Actor, query dto.ApplicationQuery) ([]models.EnrollmentApplicationDetail, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.EnrollmentApplicationDetail, error)
	ApprovePayment(ctx context.Context, actor models.Actor, id string, req dto.ApprovePaymentRequest) (*models.EnrollmentApplicationDetail, error)
	ReviewByRegistrar(ctx context.Context, actor models.Actor, id string, req dto.ReviewApplicationRequest) (*models.EnrollmentApplicationDetail, error)
	DashboardStats(ctx context.Context, actor models.Actor) (*models.ApplicationStats, bool, error)
	Export(ctx context.Context, actor models.Actor, query dto.ApplicationQuery, format string) (*dto.ApplicationExport, error)
	Certificate(ctx context.Context, actor models.Actor, id string) (*dto.ApplicationExport, error)
}

// EnrollmentApplicationHandler exposes the application pipeline.
type EnrollmentApplicationHandler struct {
	service enrollmentApplicationService
}

// NewEnrollmentApplicationHandler constructs the handler.
func NewEnrollmentApplicationHandler(service enrollmentApplicationService) *EnrollmentApplicationHandler {
	return &EnrollmentApplicationHandler{service: service}
}

// Submit godoc
// @Summary Submit an enrollment application
// @Description Anonymous applicants and logged-in students submit here; missing fields are defaulted.
// @Tags Enrollment Applications
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApplicationRequest true "Application"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enrollment-applications [post]
func (h *EnrollmentApplicationHandler) Submit(c *gin.Context) {
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid application payload"))
		return
	}
	var actor *models.Actor
	if claims := claimsFromContext(c); claims != nil {
		a := claims.Actor()
		actor = &a
	}
	app, err := h.service.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List enrollment applications
// @Description Without a status filter accounting sees the payment queue and admin the registrar queue.
// @Tags Enrollment Applications
// @Produce json
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollment-applications [get]
func (h *EnrollmentApplicationHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), actor, applicationQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get an enrollment application
// @Tags Enrollment Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollment-applications/{id} [get]
func (h *EnrollmentApplicationHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	app, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// ApprovePayment godoc
// @Summary Approve payment
// @Tags Enrollment Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ApprovePaymentRequest false "Notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollment-applications/{id}/approve-payment [put]
func (h *EnrollmentApplicationHandler) ApprovePayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ApprovePaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid payload"))
			return
		}
	}
	app, err := h.service.ApprovePayment(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Review godoc
// @Summary Registrar review
// @Description action is approve or reject; reject requires rejectionReason.
// @Tags Enrollment Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ReviewApplicationRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollment-applications/{id}/review [put]
func (h *EnrollmentApplicationHandler) Review(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.ReviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid review payload"))
		return
	}
	app, err := h.service.ReviewByRegistrar(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Stats godoc
// @Summary Application counts for the caller's queue
// @Tags Enrollment Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollment-applications/stats [get]
func (h *EnrollmentApplicationHandler) Stats(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	stats, hit, err := h.service.DashboardStats(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Export applications
// @Tags Enrollment Applications
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Success 200 {file} file
// @Router /enrollment-applications/export [get]
func (h *EnrollmentApplicationHandler) Export(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	out, err := h.service.Export(c.Request.Context(), actor, applicationQuery(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Content)
}

// Certificate godoc
// @Summary Certificate of Registration
// @Tags Enrollment Applications
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} file
// @Failure 409 {object} response.Envelope
// @Router /enrollment-applications/{id}/certificate [get]
func (h *EnrollmentApplicationHandler) Certificate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	out, err := h.service.Certificate(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Content)
}

func applicationQuery(c *gin.Context) dto.ApplicationQuery {
	query := dto.ApplicationQuery{Page: queryInt(c, "page", 1), PageSize: queryInt(c, "pageSize", 20)}
	for _, s := range queryList(c, "status") {
		query.Status = append(query.Status, models.ApplicationStatus(strings.ToLower(s)))
	}
	return query
}
