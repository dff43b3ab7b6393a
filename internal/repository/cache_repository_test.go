package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/vzs-club-api/internal/models"
	appErrors "github.com/noah-isme/vzs-club-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "vzs")
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "ledger:1", models.LedgerSummary{PersonID: 1}, time.Minute))

	var summary models.LedgerSummary
	assert.ErrorIs(t, repo.Get(ctx, "ledger:1", &summary), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Delete(ctx, "ledger:1"))
	assert.NoError(t, repo.DeleteByPattern(ctx, "ledger:*"))
}

func TestCacheRepositoryKeyPrefix(t *testing.T) {
	assert.Equal(t, "vzs:ledger:1", NewCacheRepository(nil, "vzs").key("ledger:1"))
	assert.Equal(t, "ledger:1", NewCacheRepository(nil, "").key("ledger:1"))
}
