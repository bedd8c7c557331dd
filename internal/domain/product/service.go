package product

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Niphilbert/e-Commerce-Backend/internal/apperr"
)

const (
	listCacheTag = "products:list"
	listCacheTTL = 30 * time.Second
)

// Service implements catalog CRUD with an optional read-through cache for
// listings.
type Service struct {
	repo  Repository
	cache Cache
}

// NewService creates a catalog Service. cache may be nil, in which case
// listings always hit the repository.
func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Create stores a new product and drops cached listings.
func (s *Service) Create(ctx context.Context, d Draft) (*Product, error) {
	p := &Product{
		ID:          uuid.New().String(),
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price.Round(2),
		Stock:       d.Stock,
		Category:    d.Category,
	}
	if d.CreatorID != "" {
		creator := d.CreatorID
		p.CreatorID = &creator
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	s.InvalidateListings(ctx)
	return p, nil
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Product")
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Product")
		}
		return nil, errors.Wrap(err, "get product")
	}
	return p, nil
}

// Update applies a partial update and drops cached listings.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	if patch.Empty() {
		return nil, apperr.Validation("Validation error", "At least one field is required")
	}
	if !validID(id) {
		return nil, apperr.NotFound("Product")
	}
	if patch.Price != nil {
		rounded := patch.Price.Round(2)
		patch.Price = &rounded
	}
	p, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("Product")
		}
		return nil, errors.Wrap(err, "update product")
	}
	s.InvalidateListings(ctx)
	return p, nil
}

// Delete removes a product and drops cached listings. Orders keep their own
// snapshot of the product so they are unaffected.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.NotFound("Product")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("Product")
		}
		return errors.Wrap(err, "delete product")
	}
	s.InvalidateListings(ctx)
	return nil
}

// List returns one page of products, newest first, with the total number of
// matches. The page and the count are queried concurrently.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	key := listCacheKey(f)
	if page, ok := s.cachedPage(ctx, key); ok {
		return page, nil
	}

	var (
		page Page
		g    errgroup.Group
	)
	g.Go(func() error {
		items, err := s.repo.List(ctx, f)
		if err != nil {
			return errors.Wrap(err, "list products")
		}
		page.Items = items
		return nil
	})
	g.Go(func() error {
		total, err := s.repo.Count(ctx, f.Search)
		if err != nil {
			return errors.Wrap(err, "count products")
		}
		page.Total = total
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []Product{}
	}

	s.storePage(ctx, key, &page)
	return &page, nil
}

func (s *Service) cachedPage(ctx context.Context, key string) (*Page, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		zctx.From(ctx).Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, false
	}
	return &page, true
}

func (s *Service) storePage(ctx context.Context, key string, page *Page) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := s.cache.SetTagged(ctx, listCacheTag, key, data, listCacheTTL); err != nil {
		zctx.From(ctx).Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateListings drops every cached listing. A failure leaves stale
// entries to expire by TTL instead of failing the write.
func (s *Service) InvalidateListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTag(ctx, listCacheTag); err != nil {
		zctx.From(ctx).Warn("Catalog cache invalidation failed", zap.Error(err))
	}
}

func listCacheKey(f Filter) string {
	return fmt.Sprintf("%s:%s:%d:%d", listCacheTag, url.QueryEscape(f.Search), f.Offset, f.Limit)
}

func validID(id string) bool {
	return uuid.Validate(id) == nil
}
