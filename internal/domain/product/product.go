package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	CreatorID   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Draft holds the fields of a product being created.
type Draft struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	CreatorID   string
}

// Patch holds a partial product update. Nil fields are left unchanged.
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Stock       *int
	Category    *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Stock == nil && p.Category == nil
}

// Filter selects a page of the catalog. Search matches product names
// case-insensitively as a substring.
type Filter struct {
	Search string
	Offset int
	Limit  int
}

// Page is one page of catalog results together with the total match count.
type Page struct {
	Items []Product
	Total int
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	Update(ctx context.Context, id string, patch Patch) (*Product, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Product, error)
	Count(ctx context.Context, search string) (int, error)
}

// Cache stores serialized catalog pages. Entries are grouped under a tag so
// that every entry of a group can be dropped at once.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetTagged(ctx context.Context, tag, key string, value []byte, ttl time.Duration) error
	InvalidateTag(ctx context.Context, tag string) error
}
