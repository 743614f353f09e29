package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

type cacheRepoStub struct {
	values  map[string]string
	getErr  error
	deleted []string
}

func (s *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*(dest.(*string)) = value
	return nil
}

func (s *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.values[key] = value.(string)
	return nil
}

func (s *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.deleted = append(s.deleted, pattern)
	return nil
}

func TestCacheService(t *testing.T) {
	repo := &cacheRepoStub{values: map[string]string{}}
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var got string
	hit, err := svc.Get(ctx, "results:k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, "results:k", "cached", 0))
	hit, err = svc.Get(ctx, "results:k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cached", got)

	require.NoError(t, svc.Invalidate(ctx, "results:*"))
	assert.Equal(t, []string{"results:*"}, repo.deleted)

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)

	repo.getErr = errors.New("redis down")
	hit, err = svc.Get(ctx, "results:k", &got)
	assert.False(t, hit)
	assert.Error(t, err)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := &cacheRepoStub{values: map[string]string{"k": "v"}}
	svc := NewCacheService(repo, nil, 0, nil, false)

	var got string
	hit, err := svc.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, svc.Set(context.Background(), "k", "other", 0))
	assert.Equal(t, "v", repo.values["k"])
}
