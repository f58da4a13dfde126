package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

type fakeDocumentSrv struct {
	created   dto.CreateDocumentRequest
	contents  []string
	lastIndex int
	lastToken string
	docPath   string
	err       error
}

func (f *fakeDocumentSrv) Create(ctx context.Context, actor models.Actor, req dto.CreateDocumentRequest, files []dto.UploadedFile) (*models.DocumentRequest, error) {
	f.created = req
	for _, file := range files {
		body, _ := io.ReadAll(file.Reader)
		f.contents = append(f.contents, file.Name+"="+string(body))
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.DocumentRequest{ID: "req-1", Status: models.RequestStatusPending}, nil
}

func (f *fakeDocumentSrv) ListMine(ctx context.Context, actor models.Actor) ([]models.DocumentRequest, error) {
	return nil, f.err
}

func (f *fakeDocumentSrv) ListAll(ctx context.Context, actor models.Actor) ([]models.DocumentRequestDetail, error) {
	return []models.DocumentRequestDetail{{StudentNumber: "2026-0007"}}, f.err
}

func (f *fakeDocumentSrv) Get(ctx context.Context, actor models.Actor, id string) (*models.DocumentRequestDetail, error) {
	return &models.DocumentRequestDetail{}, f.err
}

func (f *fakeDocumentSrv) UpdateStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateRequestStatusRequest) (*models.DocumentRequestDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.DocumentRequestDetail{DocumentRequest: models.DocumentRequest{ID: id, Status: req.Status}}, nil
}

func (f *fakeDocumentSrv) FetchDocument(ctx context.Context, actor models.Actor, id string, index int) (*models.StoredDocument, error) {
	f.lastIndex = index
	if f.err != nil {
		return nil, f.err
	}
	return &models.StoredDocument{Name: "grades.pdf", ContentType: "application/pdf", Path: f.docPath}, nil
}

func (f *fakeDocumentSrv) DocumentLink(ctx context.Context, actor models.Actor, id string, index int) (*dto.DocumentLinkResponse, error) {
	return &dto.DocumentLinkResponse{URL: "/download?token=t", Token: "t"}, f.err
}

func (f *fakeDocumentSrv) DownloadSigned(ctx context.Context, id string, index int, token string) (*models.StoredDocument, error) {
	f.lastToken = token
	return f.FetchDocument(ctx, models.Actor{}, id, index)
}

func (f *fakeDocumentSrv) Open(doc *models.StoredDocument) (*os.File, error) {
	return os.Open(doc.Path)
}

func (f *fakeDocumentSrv) Delete(ctx context.Context, actor models.Actor, id string) error {
	return f.err
}

func multipartBody(t *testing.T, fields map[string]string, files int) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	for i := 0; i < files; i++ {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("scan-%d.png", i))
		require.NoError(t, err)
		_, err = part.Write([]byte(fmt.Sprintf("img%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestDocumentHandlerCreateMultipart(t *testing.T) {
	srv := &fakeDocumentSrv{}
	h := NewDocumentRequestHandler(srv, 5)
	body, contentType := multipartBody(t, map[string]string{"documentType": "Transcript", "purpose": "Transfer"}, 2)
	c, rec := newContext(http.MethodPost, "/requests", body, studentClaims)
	c.Request.Header.Set("Content-Type", contentType)

	h.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Transcript", srv.created.DocumentType)
	assert.Equal(t, []string{"scan-0.png=img0", "scan-1.png=img1"}, srv.contents)
}

func TestDocumentHandlerCreateTooManyFiles(t *testing.T) {
	srv := &fakeDocumentSrv{}
	h := NewDocumentRequestHandler(srv, 5)
	body, contentType := multipartBody(t, map[string]string{"documentType": "Transcript", "purpose": "Transfer"}, 6)
	c, rec := newContext(http.MethodPost, "/requests", body, studentClaims)
	c.Request.Header.Set("Content-Type", contentType)

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, srv.contents)
}

func TestDocumentHandlerStreamsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o600))
	srv := &fakeDocumentSrv{docPath: path}
	h := NewDocumentRequestHandler(srv, 5)
	c, rec := newContext(http.MethodGet, "/requests/req-1/documents/0", nil, adminClaims)
	withParams(c, "id", "req-1", "index", "0")

	h.Document(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "grades.pdf")
	assert.Equal(t, "%PDF-1.4 body", rec.Body.String())
}

func TestDocumentHandlerDocumentErrors(t *testing.T) {
	h := NewDocumentRequestHandler(&fakeDocumentSrv{err: appErrors.Clone(appErrors.ErrNotFound, "document index out of range")}, 5)
	c, rec := newContext(http.MethodGet, "/requests/req-1/documents/3", nil, adminClaims)
	withParams(c, "id", "req-1", "index", "3")
	h.Document(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = newContext(http.MethodGet, "/requests/req-1/documents/x", nil, adminClaims)
	withParams(c, "id", "req-1", "index", "x")
	h.Document(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentHandlerSignedDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))
	srv := &fakeDocumentSrv{docPath: path}
	h := NewDocumentRequestHandler(srv, 5)
	c, rec := newContext(http.MethodGet, "/requests/req-1/documents/1/download?token=abc", nil, nil)
	withParams(c, "id", "req-1", "index", "1")

	h.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", srv.lastToken)
	assert.Equal(t, 1, srv.lastIndex)
}

func TestDocumentHandlerListMineEmptyArray(t *testing.T) {
	h := NewDocumentRequestHandler(&fakeDocumentSrv{}, 5)
	c, rec := newContext(http.MethodGet, "/requests/mine", nil, studentClaims)

	h.ListMine(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", string(decode(rec).Data))
}

func TestDocumentHandlerUpdateStatus(t *testing.T) {
	h := NewDocumentRequestHandler(&fakeDocumentSrv{}, 5)
	c, rec := jsonContext(http.MethodPut, "/requests/req-1/status", map[string]string{"status": "ready for pick-up"}, accountingClaims)
	withParams(c, "id", "req-1")

	h.UpdateStatus(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(rec).Data), "ready for pick-up")
}
