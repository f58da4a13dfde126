package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/registrar-api/internal/models"
	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

type notificationRepoStub struct {
	items     []models.Notification
	unread    int
	lastLimit int
	err       error
}

func (r *notificationRepoStub) ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	r.lastLimit = limit
	return r.items, r.err
}

func (r *notificationRepoStub) CountUnread(ctx context.Context, userID string) (int, error) {
	return r.unread, r.err
}

func (r *notificationRepoStub) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	changed := int64(r.unread)
	r.unread = 0
	return changed, nil
}

func TestNotificationFeed(t *testing.T) {
	repo := &notificationRepoStub{items: []models.Notification{{ID: "n1", UserID: "user-7", Message: "hi"}}, unread: 1}
	svc := NewNotificationService(repo, 0, nil)
	ctx := context.Background()

	feed, err := svc.List(ctx, requester)
	require.NoError(t, err)
	assert.Len(t, feed.Items, 1)
	assert.Equal(t, 1, feed.Unread)
	assert.Equal(t, 20, repo.lastLimit)

	changed, err := svc.MarkAllRead(ctx, requester)
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	feed, err = svc.List(ctx, requester)
	require.NoError(t, err)
	assert.Equal(t, 0, feed.Unread)
}

func TestNotificationFeedEmptyAndFailure(t *testing.T) {
	repo := &notificationRepoStub{}
	svc := NewNotificationService(repo, 5, nil)

	feed, err := svc.List(context.Background(), requester)
	require.NoError(t, err)
	assert.NotNil(t, feed.Items)
	assert.Equal(t, 5, repo.lastLimit)

	repo.err = errors.New("boom")
	_, err = svc.List(context.Background(), requester)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	_, err = svc.MarkAllRead(context.Background(), requester)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
