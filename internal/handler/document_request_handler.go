package handler

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
	"github.com/noah-isme/registrar-api/pkg/response"
)

const uploadField = "files"

type documentRequestService interface {
	Create(ctx context.Context, actor models.Actor, req dto.CreateDocumentRequest, files []dto.UploadedFile) (*models.DocumentRequest, error)
	ListMine(ctx context.Context, actor models.Actor) ([]models.DocumentRequest, error)
	ListAll(ctx context.Context, actor models.Actor) ([]models.DocumentRequestDetail, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.DocumentRequestDetail, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateRequestStatusRequest) (*models.DocumentRequestDetail, error)
	FetchDocument(ctx context.Context, actor models.Actor, id string, index int) (*models.StoredDocument, error)
	DocumentLink(ctx context.Context, actor models.Actor, id string, index int) (*dto.DocumentLinkResponse, error)
	DownloadSigned(ctx context.Context, id string, index int, token string) (*models.StoredDocument, error)
	Open(doc *models.StoredDocument) (*os.File, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
}

// DocumentRequestHandler exposes document requests and their attachments.
type DocumentRequestHandler struct {
	service  documentRequestService
	maxFiles int
}

// NewDocumentRequestHandler constructs the handler.
func NewDocumentRequestHandler(service documentRequestService, maxFiles int) *DocumentRequestHandler {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &DocumentRequestHandler{service: service, maxFiles: maxFiles}
}

// Create godoc
// @Summary File a document request
// @Tags Requests
// @Accept multipart/form-data
// @Produce json
// @Param documentType formData string true "Document type"
// @Param purpose formData string true "Purpose"
// @Param files formData file false "Attachments (up to 5)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /requests [post]
func (h *DocumentRequestHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.CreateDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, bindError(err, "documentType and purpose are required"))
		return
	}

	var headers []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		headers = form.File[uploadField]
	}
	if len(headers) > h.maxFiles {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d files may be attached", h.maxFiles)))
		return
	}

	files := make([]dto.UploadedFile, 0, len(headers))
	defer func() {
		for _, f := range files {
			if closer, ok := f.Reader.(multipart.File); ok {
				_ = closer.Close()
			}
		}
	}()
	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			response.Error(c, bindError(err, "unreadable upload "+fh.Filename))
			return
		}
		files = append(files, dto.UploadedFile{Name: fh.Filename, Size: fh.Size, Reader: file})
	}

	created, err := h.service.Create(c.Request.Context(), actor, req, files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// ListMine godoc
// @Summary List the caller's requests
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/mine [get]
func (h *DocumentRequestHandler) ListMine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, err := h.service.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []models.DocumentRequest{}
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListAll godoc
// @Summary List every request
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *DocumentRequestHandler) ListAll(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	items, err := h.service.ListAll(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if items == nil {
		items = []models.DocumentRequestDetail{}
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *DocumentRequestHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UpdateStatus godoc
// @Summary Update request status
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.UpdateRequestStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/status [put]
func (h *DocumentRequestHandler) UpdateStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dto.UpdateRequestStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid status payload"))
		return
	}
	item, err := h.service.UpdateStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Document godoc
// @Summary Stream an attachment
// @Tags Requests
// @Produce octet-stream
// @Param id path string true "Request ID"
// @Param index path int true "Attachment index"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/documents/{index} [get]
func (h *DocumentRequestHandler) Document(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	index, ok := documentIndex(c)
	if !ok {
		return
	}
	doc, err := h.service.FetchDocument(c.Request.Context(), actor, c.Param("id"), index)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.stream(c, doc)
}

// Link godoc
// @Summary Signed download link for an attachment
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Param index path int true "Attachment index"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/documents/{index}/link [get]
func (h *DocumentRequestHandler) Link(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	index, ok := documentIndex(c)
	if !ok {
		return
	}
	link, err := h.service.DocumentLink(c.Request.Context(), actor, c.Param("id"), index)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download an attachment with a signed token
// @Tags Requests
// @Produce octet-stream
// @Param id path string true "Request ID"
// @Param index path int true "Attachment index"
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /requests/{id}/documents/{index}/download [get]
func (h *DocumentRequestHandler) Download(c *gin.Context) {
	index, ok := documentIndex(c)
	if !ok {
		return
	}
	doc, err := h.service.DownloadSigned(c.Request.Context(), c.Param("id"), index, c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.stream(c, doc)
}

// Delete godoc
// @Summary Delete a request
// @Tags Requests
// @Param id path string true "Request ID"
// @Success 204
// @Router /requests/{id} [delete]
func (h *DocumentRequestHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *DocumentRequestHandler) stream(c *gin.Context, doc *models.StoredDocument) {
	file, err := h.service.Open(doc)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read document"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), doc.ContentType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", doc.Name),
	})
}

func documentIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidInput, "document index must be a number"))
		return 0, false
	}
	return index, true
}
