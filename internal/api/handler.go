// Package api serves the shop REST endpoints on net/http.
package api

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Niphilbert/e-Commerce-Backend/internal/apperr"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/order"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/user"
	"github.com/Niphilbert/e-Commerce-Backend/pkg/httpmiddleware"
)

// Catalog is the product service used by the handlers.
type Catalog interface {
	Create(ctx context.Context, d product.Draft) (*product.Product, error)
	Get(ctx context.Context, id string) (*product.Product, error)
	Update(ctx context.Context, id string, patch product.Patch) (*product.Product, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f product.Filter) (*product.Page, error)
}

// Orders is the order service used by the handlers.
type Orders interface {
	PlaceOrder(ctx context.Context, userID string, lines []order.Line) (*order.Order, error)
	ListForUser(ctx context.Context, userID string) ([]order.Order, error)
}

// Accounts is the registration and login service used by the handlers.
type Accounts interface {
	Register(ctx context.Context, username, email, password string) (*user.User, error)
	Login(ctx context.Context, email, password string) (*user.Session, error)
}

// TokenVerifier turns a bearer token into the caller identity.
type TokenVerifier interface {
	VerifyToken(raw string) (user.Identity, error)
}

var (
	_ Catalog  = (*product.Service)(nil)
	_ Orders   = (*order.Service)(nil)
	_ Accounts = (*user.Service)(nil)
)

// Handler holds the dependencies of every endpoint.
type Handler struct {
	catalog  Catalog
	orders   Orders
	accounts Accounts
	tokens   TokenVerifier
	validate *Validator
}

// NewHandler constructs a Handler.
func NewHandler(catalog Catalog, orders Orders, accounts Accounts, tokens TokenVerifier) *Handler {
	return &Handler{
		catalog:  catalog,
		orders:   orders,
		accounts: accounts,
		tokens:   tokens,
		validate: NewValidator(),
	}
}

// Register mounts the API routes on mux under /api. authLimit guards the
// register and login endpoints and may be nil.
func (h *Handler) Register(mux *http.ServeMux, authLimit httpmiddleware.Middleware) {
	limited := func(fn http.HandlerFunc) http.Handler {
		if authLimit == nil {
			return fn
		}
		return authLimit(fn)
	}

	mux.Handle("POST /api/auth/register", limited(h.register))
	mux.Handle("POST /api/auth/login", limited(h.login))

	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("POST /api/products", h.requireAdmin(h.createProduct))
	mux.HandleFunc("PUT /api/products/{id}", h.requireAdmin(h.updateProduct))
	mux.HandleFunc("DELETE /api/products/{id}", h.requireAdmin(h.deleteProduct))

	mux.HandleFunc("POST /api/orders", h.requireAuth(h.placeOrder))
	mux.HandleFunc("GET /api/orders", h.requireAuth(h.listOrders))
}

// writeError renders err through the closed taxonomy. Anything outside it is
// logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *apperr.ValidationError
		unauthorized *apperr.UnauthorizedError
		forbidden    *apperr.ForbiddenError
		notFound     *apperr.NotFoundError
		conflict     *apperr.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		writeFail(w, http.StatusBadRequest, validation.Message, validation.Fields)
	case errors.As(err, &unauthorized):
		writeFail(w, http.StatusUnauthorized, unauthorized.Reason, nil)
	case errors.As(err, &forbidden):
		writeFail(w, http.StatusForbidden, forbidden.Reason, nil)
	case errors.As(err, &notFound):
		writeFail(w, http.StatusNotFound, notFound.Error(), nil)
	case errors.As(err, &conflict):
		writeFail(w, http.StatusBadRequest, conflict.Reason, nil)
	case errors.Is(err, errInvalidBody):
		writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeFail(w, http.StatusInternalServerError, "Internal Server Error", nil)
	}
}

// validationFailed builds the error for a body that decoded but did not
// validate.
func validationFailed(fields []string) error {
	return apperr.Validation("Validation error", fields...)
}
