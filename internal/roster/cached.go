package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smart-student/grading-service/internal/cache"
	"github.com/smart-student/grading-service/internal/models"
	"github.com/smart-student/grading-service/internal/utils"
)

// rosterTTL bounds how stale a cached roster may get. Rosters change on
// enrollment events, not mid-lesson.
const rosterTTL = 10 * time.Minute

// CachedProvider wraps a Provider with a redis snapshot so a batch run of
// thirty sheets fetches the roster once
type CachedProvider struct {
	inner  Provider
	cache  cache.CacheService
	logger utils.Logger
}

func NewCachedProvider(inner Provider, cacheService cache.CacheService, logger utils.Logger) *CachedProvider {
	return &CachedProvider{
		inner:  inner,
		cache:  cacheService,
		logger: logger,
	}
}

func (p *CachedProvider) Students(ctx context.Context, sectionID string) ([]models.StudentRecord, error) {
	key := fmt.Sprintf("roster:section:%s", sectionID)

	var cached []models.StudentRecord
	err := p.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		p.logger.Warn("roster cache read failed", "key", key, "error", err)
	}

	students, err := p.inner.Students(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, key, students, rosterTTL); err != nil {
		p.logger.Warn("roster cache write failed", "key", key, "error", err)
	}
	return students, nil
}

// Invalidate drops the cached roster for a section
func (p *CachedProvider) Invalidate(ctx context.Context, sectionID string) error {
	return p.cache.Delete(ctx, fmt.Sprintf("roster:section:%s", sectionID))
}
