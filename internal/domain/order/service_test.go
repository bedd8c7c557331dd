package order

import (
	"context"
	"maps"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Niphilbert/e-Commerce-Backend/internal/apperr"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
)

// --- Mock implementations ---

// memState is the full content of the in-memory store.
type memState struct {
	products map[string]product.Product
	orders   map[string]Order
	items    []Item
}

func (s memState) clone() memState {
	return memState{
		products: maps.Clone(s.products),
		orders:   maps.Clone(s.orders),
		items:    append([]Item(nil), s.items...),
	}
}

// memStore is a transactional in-memory Store: InTx works on a copy of the
// state and swaps it in only when fn succeeds.
type memStore struct {
	state  memState
	clock  time.Time
	failOn string
}

func newMemStore(products ...product.Product) *memStore {
	s := &memStore{
		state: memState{
			products: make(map[string]product.Product),
			orders:   make(map[string]Order),
		},
		clock: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, p := range products {
		s.state.products[p.ID] = p
	}
	return s
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	work := s.state.clone()
	if err := fn(ctx, &memTx{store: s, state: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range s.state.orders {
		if o.UserID == userID {
			out = append(out, withItems(o, s.state.items))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type memTx struct {
	store *memStore
	state *memState
}

func (t *memTx) fail(op string) error {
	if t.store.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (t *memTx) FindProductsByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if err := t.fail("find"); err != nil {
		return nil, err
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := t.state.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int) error {
	if err := t.fail("decrement"); err != nil {
		return err
	}
	p := t.state.products[productID]
	if p.Stock < qty {
		return ErrStockDepleted
	}
	p.Stock -= qty
	t.state.products[productID] = p
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, o *Order) error {
	if err := t.fail("create_order"); err != nil {
		return err
	}
	t.store.clock = t.store.clock.Add(time.Minute)
	o.CreatedAt = t.store.clock
	o.UpdatedAt = t.store.clock
	t.state.orders[o.ID] = *o
	return nil
}

func (t *memTx) CreateOrderItem(_ context.Context, item *Item) error {
	if err := t.fail("create_item"); err != nil {
		return err
	}
	t.state.items = append(t.state.items, *item)
	return nil
}

func (t *memTx) FindOrderWithItems(_ context.Context, orderID string) (*Order, error) {
	o, ok := t.state.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	full := withItems(o, t.state.items)
	return &full, nil
}

func withItems(o Order, items []Item) Order {
	o.Items = []Item{}
	for _, it := range items {
		if it.OrderID == o.ID {
			o.Items = append(o.Items, it)
		}
	}
	return o
}

type mockPublisher struct {
	events []any
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, _ string, event any) error {
	m.events = append(m.events, event)
	return m.err
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateListings(context.Context) { c.calls++ }

// --- Helpers ---

const (
	laptopID = "11111111-1111-1111-1111-111111111111"
	mouseID  = "22222222-2222-2222-2222-222222222222"
	cableID  = "33333333-3333-3333-3333-333333333333"
)

func newTestProduct(id, name, price string, stock int) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: "test",
	}
}

func stockOf(s *memStore, id string) int {
	return s.state.products[id].Stock
}

// --- Tests ---

func TestPlaceOrder_HappyPath(t *testing.T) {
	store := newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 5))
	svc := NewService(store)

	o, err := svc.PlaceOrder(context.Background(), "user-1", []Line{{ProductID: laptopID, Quantity: 2}})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("399.98").Equal(o.TotalPrice), "total %s", o.TotalPrice)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "user-1", o.UserID)
	assert.Nil(t, o.Description)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, o.ID, o.Items[0].OrderID)
	assert.True(t, decimal.RequireFromString("199.99").Equal(o.Items[0].UnitPrice))
	assert.Equal(t, 3, stockOf(store, laptopID))
}

func TestPlaceOrder_StockConservationAcrossLines(t *testing.T) {
	store := newMemStore(
		newTestProduct(laptopID, "Laptop", "0.10", 10),
		newTestProduct(mouseID, "Mouse", "0.20", 10),
	)
	svc := NewService(store)

	o, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: laptopID, Quantity: 3},
		{ProductID: mouseID, Quantity: 1},
	})
	require.NoError(t, err)

	// 0.10*3 + 0.20 is exactly 0.50; binary floats would drift.
	assert.Equal(t, "0.5", o.TotalPrice.String())
	assert.Equal(t, 7, stockOf(store, laptopID))
	assert.Equal(t, 9, stockOf(store, mouseID))
	require.Len(t, o.Items, 2)
	assert.Equal(t, laptopID, o.Items[0].ProductID)
	assert.Equal(t, mouseID, o.Items[1].ProductID)
}

func TestPlaceOrder_MissingProducts(t *testing.T) {
	store := newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 5))
	svc := NewService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: cableID, Quantity: 1},
		{ProductID: laptopID, Quantity: 1},
		{ProductID: mouseID, Quantity: 1},
	})

	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, []string{cableID, mouseID}, nf.IDs)
	assert.Equal(t, "Product(s) not found: "+cableID+", "+mouseID, nf.Error())

	assert.Empty(t, store.state.orders)
	assert.Empty(t, store.state.items)
	assert.Equal(t, 5, stockOf(store, laptopID))
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	store := newMemStore(
		newTestProduct(laptopID, "Laptop", "199.99", 1),
		newTestProduct(mouseID, "Mouse", "10.00", 50),
	)
	svc := NewService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: mouseID, Quantity: 1},
		{ProductID: laptopID, Quantity: 2},
	})

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Insufficient stock for Laptop", conflict.Reason)
	assert.Empty(t, store.state.orders)
	assert.Equal(t, 1, stockOf(store, laptopID))
	assert.Equal(t, 50, stockOf(store, mouseID))
}

func TestPlaceOrder_FirstInsufficientLineIsReported(t *testing.T) {
	store := newMemStore(
		newTestProduct(laptopID, "Laptop", "199.99", 0),
		newTestProduct(mouseID, "Mouse", "10.00", 0),
	)
	svc := NewService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: mouseID, Quantity: 1},
		{ProductID: laptopID, Quantity: 1},
	})

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Insufficient stock for Mouse", conflict.Reason)
}

func TestPlaceOrder_DuplicateLinesCountTowardsStock(t *testing.T) {
	store := newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 3))
	svc := NewService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: laptopID, Quantity: 2},
		{ProductID: laptopID, Quantity: 2},
	})

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, stockOf(store, laptopID))

	o, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: laptopID, Quantity: 1},
		{ProductID: laptopID, Quantity: 2},
	})
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, 0, stockOf(store, laptopID))
}

func TestPlaceOrder_HugeDuplicateQuantityIsInsufficientStock(t *testing.T) {
	store := newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 5))
	svc := NewService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: laptopID, Quantity: 1},
		{ProductID: laptopID, Quantity: math.MaxInt},
	})

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Insufficient stock for Laptop", conflict.Reason)
	assert.Empty(t, store.state.orders)
	assert.Equal(t, 5, stockOf(store, laptopID))
}

func TestCheckStock_NoOverflow(t *testing.T) {
	byID := map[string]product.Product{
		laptopID: newTestProduct(laptopID, "Laptop", "1.00", math.MaxInt),
	}

	require.NoError(t, checkStock([]Line{{ProductID: laptopID, Quantity: math.MaxInt}}, byID))
	require.Error(t, checkStock([]Line{
		{ProductID: laptopID, Quantity: math.MaxInt},
		{ProductID: laptopID, Quantity: 1},
	}, byID))
}

func TestPlaceOrder_TotalAboveColumnLimit(t *testing.T) {
	store := newMemStore(newTestProduct(laptopID, "Laptop", "9999999999.99", math.MaxInt32))
	svc := NewService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: laptopID, Quantity: 1_000_000_000},
	})

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Order total exceeds the maximum of 9999999999999999.99", conflict.Reason)
	assert.Empty(t, store.state.orders)
	assert.Equal(t, math.MaxInt32, stockOf(store, laptopID))

	o, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
		{ProductID: laptopID, Quantity: 1_000_000},
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("9999999999990000.00").Equal(o.TotalPrice))
}

func TestPlaceOrder_InvalidatesListings(t *testing.T) {
	inv := &countingInvalidator{}
	svc := NewService(newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 1)), WithListingInvalidator(inv))

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{{ProductID: laptopID, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, inv.calls)

	_, err = svc.PlaceOrder(context.Background(), "user-1", []Line{{ProductID: laptopID, Quantity: 1}})
	require.Error(t, err)
	assert.Equal(t, 1, inv.calls, "failed orders leave listings untouched")
}

func TestPlaceOrder_InvalidInput(t *testing.T) {
	svc := NewService(newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 5)))

	tests := []struct {
		name  string
		lines []Line
	}{
		{name: "no lines", lines: nil},
		{name: "zero quantity", lines: []Line{{ProductID: laptopID, Quantity: 0}}},
		{name: "negative quantity", lines: []Line{{ProductID: laptopID, Quantity: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), "user-1", tt.lines)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}

func TestPlaceOrder_StoreFailureRollsBack(t *testing.T) {
	for _, step := range []string{"find", "create_order", "create_item", "decrement"} {
		t.Run(step, func(t *testing.T) {
			store := newMemStore(
				newTestProduct(laptopID, "Laptop", "199.99", 5),
				newTestProduct(mouseID, "Mouse", "10.00", 5),
			)
			store.failOn = step
			svc := NewService(store)

			_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{
				{ProductID: laptopID, Quantity: 1},
				{ProductID: mouseID, Quantity: 1},
			})
			require.Error(t, err)

			var (
				nf       *apperr.NotFoundError
				conflict *apperr.ConflictError
			)
			assert.False(t, errors.As(err, &nf))
			assert.False(t, errors.As(err, &conflict))
			assert.Empty(t, store.state.orders)
			assert.Empty(t, store.state.items)
			assert.Equal(t, 5, stockOf(store, laptopID))
			assert.Equal(t, 5, stockOf(store, mouseID))
		})
	}
}

// stealingStore simulates a concurrent placement that empties the stock
// between the read and the decrement.
type stealingStore struct {
	*memStore
}

func (s *stealingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.memStore.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, &stealingTx{memTx: tx.(*memTx)})
	})
}

type stealingTx struct {
	*memTx
}

func (t *stealingTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	p := t.state.products[productID]
	p.Stock = 0
	t.state.products[productID] = p
	return t.memTx.DecrementStock(ctx, productID, qty)
}

func TestPlaceOrder_ConcurrentDepletionIsInsufficientStock(t *testing.T) {
	store := &stealingStore{memStore: newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 5))}
	svc := NewService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{{ProductID: laptopID, Quantity: 1}})

	var conflict *apperr.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Insufficient stock for Laptop", conflict.Reason)
	assert.Empty(t, store.state.orders)
	assert.Equal(t, 5, stockOf(store.memStore, laptopID))
}

func TestPlaceOrder_PublishesCreatedEvent(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewService(newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 5)), WithPublisher(pub))

	o, err := svc.PlaceOrder(context.Background(), "user-1", []Line{{ProductID: laptopID, Quantity: 1}})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	ev, ok := pub.events[0].(CreatedEvent)
	require.True(t, ok, "unexpected event type %T", pub.events[0])
	assert.Equal(t, o.ID, ev.OrderID)
	assert.Equal(t, []Line{{ProductID: laptopID, Quantity: 1}}, ev.Items)
}

func TestPlaceOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	store := newMemStore(newTestProduct(laptopID, "Laptop", "199.99", 5))
	svc := NewService(store, WithPublisher(pub))

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{{ProductID: laptopID, Quantity: 1}})
	require.NoError(t, err)
	assert.Len(t, store.state.orders, 1)
}

func TestPlaceOrder_NoEventOnFailure(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewService(newMemStore(), WithPublisher(pub))

	_, err := svc.PlaceOrder(context.Background(), "user-1", []Line{{ProductID: laptopID, Quantity: 1}})
	require.Error(t, err)
	assert.Empty(t, pub.events)
}

func TestListForUser_NewestFirstAndIdempotent(t *testing.T) {
	store := newMemStore(newTestProduct(laptopID, "Laptop", "10.00", 10))
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.PlaceOrder(ctx, "user-1", []Line{{ProductID: laptopID, Quantity: 1}})
	require.NoError(t, err)
	second, err := svc.PlaceOrder(ctx, "user-1", []Line{{ProductID: laptopID, Quantity: 2}})
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, "user-2", []Line{{ProductID: laptopID, Quantity: 1}})
	require.NoError(t, err)

	orders, err := svc.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
	require.Len(t, orders[0].Items, 1)

	again, err := svc.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, orders, again)
}

func TestListForUser_Empty(t *testing.T) {
	svc := NewService(newMemStore())

	orders, err := svc.ListForUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}
