package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Niphilbert/e-Commerce-Backend/internal/apperr"
)

const instrumentationName = "github.com/Niphilbert/e-Commerce-Backend/internal/domain/order"

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the publisher notified after each committed order.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// ListingInvalidator drops cached catalog listings that show stock.
type ListingInvalidator interface {
	InvalidateListings(ctx context.Context)
}

// WithListingInvalidator sets the invalidator called after each committed
// order.
func WithListingInvalidator(li ListingInvalidator) Option {
	return func(s *Service) { s.listings = li }
}

// WithTracerProvider sets the tracer provider used for order spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// Service encapsulates order placement and order queries.
type Service struct {
	store     Store
	publisher Publisher
	listings  ListingInvalidator
	tracer    trace.Tracer
	meter     metric.Meter

	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service on top of store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.placed, err = s.meter.Int64Counter("shop.orders.placed",
		metric.WithDescription("Orders committed"),
	); err != nil {
		s.placed = metricnoop.Int64Counter{}
	}
	if s.failed, err = s.meter.Int64Counter("shop.orders.rejected",
		metric.WithDescription("Order placements aborted, by reason"),
	); err != nil {
		s.failed = metricnoop.Int64Counter{}
	}
	return s
}

// PlaceOrder places an order for userID in a single unit of work: it fetches
// the referenced products, verifies they exist and have enough stock, prices
// the lines, writes the order and its items, decrements stock and returns the
// stored order. Nothing is written when any step fails.
func (s *Service) PlaceOrder(ctx context.Context, userID string, lines []Line) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.Int("order.lines", len(lines))),
	)
	defer span.End()

	if err := validateLines(lines); err != nil {
		return nil, s.reject(ctx, span, err)
	}

	var placed *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ids := distinctProductIDs(lines)
		fetched, err := tx.FindProductsByIDs(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "find products")
		}

		byID := indexProducts(fetched)
		if err := checkExistence(ids, byID); err != nil {
			return err
		}
		if err := checkStock(lines, byID); err != nil {
			return err
		}

		total, items := priceLines(lines, byID)
		if err := checkTotal(total); err != nil {
			return err
		}
		o := &Order{
			ID:         uuid.New().String(),
			UserID:     userID,
			TotalPrice: total,
			Status:     StatusPending,
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		for i := range items {
			items[i].ID = uuid.New().String()
			items[i].OrderID = o.ID
			if err := tx.CreateOrderItem(ctx, &items[i]); err != nil {
				return errors.Wrap(err, "create order item")
			}
			if err := tx.DecrementStock(ctx, items[i].ProductID, items[i].Quantity); err != nil {
				if errors.Is(err, ErrStockDepleted) {
					return insufficientStock(byID[items[i].ProductID])
				}
				return errors.Wrap(err, "decrement stock")
			}
		}

		placed, err = tx.FindOrderWithItems(ctx, o.ID)
		if err != nil {
			return errors.Wrap(err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, span, err)
	}

	span.SetAttributes(attribute.String("order.id", placed.ID))
	s.placed.Add(ctx, 1)
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", placed.ID),
		zap.String("user_id", userID),
		zap.Stringer("total", placed.TotalPrice),
	)
	if s.listings != nil {
		s.listings.InvalidateListings(ctx)
	}
	s.publishCreated(ctx, placed)

	return placed, nil
}

// ListForUser returns the orders of userID with their items, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

func (s *Service) reject(ctx context.Context, span trace.Span, err error) error {
	reason := "internal"
	var (
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
		conflict   *apperr.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		reason = "validation"
	case errors.As(err, &notFound):
		reason = "not_found"
	case errors.As(err, &conflict):
		reason = "conflict"
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	return err
}

func (s *Service) publishCreated(ctx context.Context, o *Order) {
	if s.publisher == nil {
		return
	}
	lines := make([]Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	event := CreatedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		TotalPrice: o.TotalPrice,
		Items:      lines,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, o.ID, event); err != nil {
		zctx.From(ctx).Error("Publish order created event", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return apperr.Validation("Validation error", "items: at least one item is required")
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return apperr.Validation("Validation error", "quantity: must be a positive integer for product "+l.ProductID)
		}
	}
	return nil
}
