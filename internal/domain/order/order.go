package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
)

// Status is the lifecycle state of an order.
type Status string

// StatusPending is the state of every freshly placed order.
const StatusPending Status = "pending"

// ErrStockDepleted is returned by Tx.DecrementStock when the product no longer
// has enough stock for the requested quantity.
var ErrStockDepleted = errors.New("stock depleted")

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Order represents a placed customer order with its line items.
type Order struct {
	ID          string
	UserID      string
	Description *string
	TotalPrice  decimal.Decimal
	Status      Status
	Items       []Item
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Item is a single order line. UnitPrice is the product price captured when
// the order was placed.
type Item struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Line is one requested (product, quantity) pair.
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Tx is the set of store operations available inside the unit of work that
// places an order.
type Tx interface {
	// FindProductsByIDs returns the products that exist among ids. Missing
	// ids are absent from the result.
	FindProductsByIDs(ctx context.Context, ids []string) ([]product.Product, error)
	// DecrementStock lowers the stock of a product by qty, returning
	// ErrStockDepleted if the stock would go negative.
	DecrementStock(ctx context.Context, productID string, qty int) error
	CreateOrder(ctx context.Context, o *Order) error
	CreateOrderItem(ctx context.Context, item *Item) error
	FindOrderWithItems(ctx context.Context, orderID string) (*Order, error)
}

// Store provides order persistence.
type Store interface {
	// InTx runs fn in one atomic unit of work. Every write made through tx is
	// committed if fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// ListByUser returns the orders of a user with their items, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// Publisher announces placed orders to other systems.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// CreatedEvent is published after an order has been committed.
type CreatedEvent struct {
	OrderID    string          `json:"orderId"`
	UserID     string          `json:"userId"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Items      []Line          `json:"items"`
	Timestamp  time.Time       `json:"timestamp"`
}
