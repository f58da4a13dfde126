package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/registrar-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "registrar")
	ctx := context.Background()

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(ctx, "stats:admin", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "stats:admin", map[string]int{"approved": 1}, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "stats:admin"))
	assert.NoError(t, repo.Ping(ctx))
	assert.NoError(t, repo.Close())
	assert.Equal(t, "registrar:stats:admin", repo.key("stats:admin"))
}
