package dto

import (
	"io"
	"time"

	"github.com/noah-isme/registrar-api/internal/models"
)

// CreateDocumentRequest is the form part of a document request submission.
type CreateDocumentRequest struct {
	DocumentType string `form:"documentType" json:"documentType" validate:"required,max=120"`
	Purpose      string `form:"purpose" json:"purpose" validate:"required,max=500"`
}

// UploadedFile is a single attachment streamed from the multipart body.
type UploadedFile struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// UpdateRequestStatusRequest changes the status of a document request.
type UpdateRequestStatusRequest struct {
	Status models.RequestStatus `json:"status" validate:"required"`
	Notes  *string              `json:"notes"`
}

// DocumentLinkResponse is a time-limited download link for one attachment.
type DocumentLinkResponse struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
