package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

// CategoryFunc adapts a function to interfaces.CategoryResolver.
type CategoryFunc func(ctx context.Context, studentID string) (models.StudentCategory, error)

func (f CategoryFunc) Category(ctx context.Context, studentID string) (models.StudentCategory, error) {
	return f(ctx, studentID)
}

// CachedResolver fronts a CategoryResolver with a TTL cache. Categories
// change rarely (committee rosters are fixed per forum day), so a short TTL
// keeps the user system off the join hot path.
type CachedResolver struct {
	inner interfaces.CategoryResolver
	cache *gocache.Cache
}

// NewCachedResolver wraps inner with a TTL cache.
func NewCachedResolver(inner interfaces.CategoryResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (r *CachedResolver) Category(ctx context.Context, studentID string) (models.StudentCategory, error) {
	if v, ok := r.cache.Get(studentID); ok {
		return v.(models.StudentCategory), nil
	}

	category, err := r.inner.Category(ctx, studentID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve category for %s: %w", studentID, err)
	}
	r.cache.SetDefault(studentID, category)
	return category, nil
}

// Compile-time checks
var (
	_ interfaces.CategoryResolver = (CategoryFunc)(nil)
	_ interfaces.CategoryResolver = (*CachedResolver)(nil)
)
