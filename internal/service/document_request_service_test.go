package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registrar-api/internal/dto"
	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
	"github.com/noah-isme/registrar-api/pkg/jobs"
	"github.com/noah-isme/registrar-api/pkg/storage"
)

type documentRepoStub struct {
	requests      map[string]*models.DocumentRequestDetail
	notifications []*models.Notification
	createErr     error
	seq           int
}

func newDocumentRepoStub() *documentRepoStub {
	return &documentRepoStub{requests: map[string]*models.DocumentRequestDetail{}}
}

func (r *documentRepoStub) Create(ctx context.Context, req *models.DocumentRequest, n *models.Notification) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	req.ID = fmt.Sprintf("req-%d", r.seq)
	n.RequestID = &req.ID
	r.notifications = append(r.notifications, n)
	r.requests[req.ID] = &models.DocumentRequestDetail{DocumentRequest: *req, StudentUserID: n.UserID}
	return nil
}

func (r *documentRepoStub) FindByID(ctx context.Context, id string) (*models.DocumentRequestDetail, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *req
	return &copy, nil
}

func (r *documentRepoStub) ListByStudent(ctx context.Context, studentID string) ([]models.DocumentRequest, error) {
	var out []models.DocumentRequest
	for _, req := range r.requests {
		if req.StudentID == studentID {
			out = append(out, req.DocumentRequest)
		}
	}
	return out, nil
}

func (r *documentRepoStub) ListAll(ctx context.Context) ([]models.DocumentRequestDetail, error) {
	var out []models.DocumentRequestDetail
	for _, req := range r.requests {
		out = append(out, *req)
	}
	return out, nil
}

func (r *documentRepoStub) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, notes *string, n *models.Notification) error {
	req, ok := r.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	req.Status = status
	if notes != nil {
		req.Notes = notes
	}
	n.RequestID = &req.ID
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *documentRepoStub) Delete(ctx context.Context, id string) ([]string, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	delete(r.requests, id)
	return req.FilePath, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type documentFixture struct {
	svc   *DocumentRequestService
	repo  *documentRepoStub
	store *storage.LocalStorage
	queue *queueStub
}

var (
	requester      = models.Actor{UserID: "user-7", Role: models.RoleStudent}
	otherRequester = models.Actor{UserID: "user-8", Role: models.RoleStudent}
)

func newDocumentFixture(t *testing.T) documentFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := newDocumentRepoStub()
	students := newStudentLookupStub(
		&models.Student{ID: "7", UserID: "user-7"},
		&models.Student{ID: "8", UserID: "user-8"},
	)
	queue := &queueStub{}
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := NewDocumentRequestService(repo, students, store, signer, queue, nil, nil, DocumentRequestConfig{MaxFiles: 5, MaxSize: 1024, APIPrefix: "/api/v1"}, nil)
	return documentFixture{svc: svc, repo: repo, store: store, queue: queue}
}

func upload(name, body string) dto.UploadedFile {
	return dto.UploadedFile{Name: name, Size: int64(len(body)), Reader: strings.NewReader(body)}
}

func TestDocumentRequestLifecycle(t *testing.T) {
	fx := newDocumentFixture(t)
	ctx := context.Background()

	created, err := fx.svc.Create(ctx, requester, dto.CreateDocumentRequest{DocumentType: "Transcript of Records", Purpose: "Scholarship"}, []dto.UploadedFile{upload("id.PDF", "%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, created.Status)
	require.Len(t, created.FilePath, 1)
	assert.True(t, strings.HasPrefix(created.FilePath[0], "requests/"))
	assert.True(t, strings.HasSuffix(created.FilePath[0], ".pdf"))
	require.Len(t, fx.repo.notifications, 1)
	assert.Equal(t, "You have submitted your request for Transcript of Records.", fx.repo.notifications[0].Message)

	updated, err := fx.svc.UpdateStatus(ctx, accountingActor, created.ID, dto.UpdateRequestStatusRequest{Status: models.RequestStatusReadyForPickup})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusReadyForPickup, updated.Status)
	require.Len(t, fx.repo.notifications, 2)
	assert.Equal(t, "user-7", fx.repo.notifications[1].UserID)
	assert.Contains(t, fx.repo.notifications[1].Message, "ready for pick up")

	doc, err := fx.svc.FetchDocument(ctx, adminActor, created.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	file, err := fx.svc.Open(doc)
	require.NoError(t, err)
	body, err := io.ReadAll(file)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))

	_, err = fx.svc.FetchDocument(ctx, adminActor, created.ID, 1)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = fx.svc.FetchDocument(ctx, requester, created.ID, 0)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestDocumentRequestCreateValidation(t *testing.T) {
	fx := newDocumentFixture(t)
	ctx := context.Background()
	valid := dto.CreateDocumentRequest{DocumentType: "Diploma", Purpose: "Employment"}

	_, err := fx.svc.Create(ctx, requester, dto.CreateDocumentRequest{DocumentType: "  ", Purpose: "x"}, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	files := make([]dto.UploadedFile, 6)
	for i := range files {
		files[i] = upload(fmt.Sprintf("f%d.png", i), "x")
	}
	_, err = fx.svc.Create(ctx, requester, valid, files)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = fx.svc.Create(ctx, requester, valid, []dto.UploadedFile{upload("big.pdf", strings.Repeat("x", 2048))})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = fx.svc.Create(ctx, adminActor, valid, nil)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = fx.svc.Create(ctx, models.Actor{UserID: "ghost", Role: models.RoleStudent}, valid, nil)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	created, err := fx.svc.Create(ctx, requester, valid, nil)
	require.NoError(t, err)
	assert.Empty(t, created.FilePath)
}

func TestDocumentRequestCreateDiscardsFilesOnFailure(t *testing.T) {
	fx := newDocumentFixture(t)
	fx.repo.createErr = fmt.Errorf("db down")

	_, err := fx.svc.Create(context.Background(), requester, dto.CreateDocumentRequest{DocumentType: "Diploma", Purpose: "Employment"}, []dto.UploadedFile{upload("a.jpg", "img")})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Empty(t, fx.repo.requests)
}

func TestDocumentRequestOwnership(t *testing.T) {
	fx := newDocumentFixture(t)
	ctx := context.Background()
	created, err := fx.svc.Create(ctx, requester, dto.CreateDocumentRequest{DocumentType: "Diploma", Purpose: "Employment"}, nil)
	require.NoError(t, err)

	_, err = fx.svc.Get(ctx, requester, created.ID)
	require.NoError(t, err)
	_, err = fx.svc.Get(ctx, otherRequester, created.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	mine, err := fx.svc.ListMine(ctx, otherRequester)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = fx.svc.ListAll(ctx, requester)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	all, err := fx.svc.ListAll(ctx, accountingActor)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = fx.svc.UpdateStatus(ctx, requester, created.ID, dto.UpdateRequestStatusRequest{Status: models.RequestStatusApproved})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = fx.svc.UpdateStatus(ctx, adminActor, created.ID, dto.UpdateRequestStatusRequest{Status: "lost"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)
	_, err = fx.svc.UpdateStatus(ctx, adminActor, "missing", dto.UpdateRequestStatusRequest{Status: models.RequestStatusApproved})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDocumentRequestMissingBackingFile(t *testing.T) {
	fx := newDocumentFixture(t)
	ctx := context.Background()
	created, err := fx.svc.Create(ctx, requester, dto.CreateDocumentRequest{DocumentType: "Diploma", Purpose: "Employment"}, []dto.UploadedFile{upload("scan.png", "png")})
	require.NoError(t, err)
	require.NoError(t, fx.store.Delete(created.FilePath[0]))

	_, err = fx.svc.FetchDocument(ctx, adminActor, created.ID, 0)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDocumentRequestSignedDownload(t *testing.T) {
	fx := newDocumentFixture(t)
	ctx := context.Background()
	files := []dto.UploadedFile{upload("a.pdf", "first"), upload("b.jpg", "second")}
	created, err := fx.svc.Create(ctx, requester, dto.CreateDocumentRequest{DocumentType: "Diploma", Purpose: "Employment"}, files)
	require.NoError(t, err)

	link, err := fx.svc.DocumentLink(ctx, adminActor, created.ID, 1)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "/api/v1/requests/"+created.ID+"/documents/1/download?token="))

	doc, err := fx.svc.DownloadSigned(ctx, created.ID, 1, link.Token)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", doc.ContentType)

	_, err = fx.svc.DownloadSigned(ctx, created.ID, 0, link.Token)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = fx.svc.DownloadSigned(ctx, created.ID, 1, link.Token+"x")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestDocumentRequestDeleteSchedulesCleanup(t *testing.T) {
	fx := newDocumentFixture(t)
	ctx := context.Background()
	created, err := fx.svc.Create(ctx, requester, dto.CreateDocumentRequest{DocumentType: "Diploma", Purpose: "Employment"}, []dto.UploadedFile{upload("a.pdf", "x"), upload("b.pdf", "y")})
	require.NoError(t, err)

	assert.ErrorIs(t, fx.svc.Delete(ctx, accountingActor, created.ID), appErrors.ErrForbidden)
	require.NoError(t, fx.svc.Delete(ctx, adminActor, created.ID))
	require.Len(t, fx.queue.jobs, 2)
	assert.Equal(t, "delete_request_file", fx.queue.jobs[0].Type)
	assert.Len(t, fx.repo.notifications, 1)

	for _, job := range fx.queue.jobs {
		require.NoError(t, fx.svc.HandleCleanup(ctx, job))
		exists, err := fx.store.Exists(job.Payload.(string))
		require.NoError(t, err)
		assert.False(t, exists)
	}
	assert.ErrorIs(t, fx.svc.Delete(ctx, adminActor, created.ID), appErrors.ErrNotFound)
}

func TestDocumentRequestDeleteFallsBackInline(t *testing.T) {
	fx := newDocumentFixture(t)
	fx.queue.err = fmt.Errorf("queue stopped")
	ctx := context.Background()
	created, err := fx.svc.Create(ctx, requester, dto.CreateDocumentRequest{DocumentType: "Diploma", Purpose: "Employment"}, []dto.UploadedFile{upload("a.pdf", "x")})
	require.NoError(t, err)
	name := created.FilePath[0]

	require.NoError(t, fx.svc.Delete(ctx, adminActor, created.ID))
	exists, err := fx.store.Exists(name)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", contentTypeFor("requests/a.PDF"))
	assert.Equal(t, "image/jpeg", contentTypeFor("requests/a.jpg"))
	assert.Equal(t, "image/png", contentTypeFor("requests/a.png"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("requests/a.docx"))
}
