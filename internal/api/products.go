package api

import (
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Niphilbert/e-Commerce-Backend/internal/apperr"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/user"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100

	// maxPage keeps the row offset within a 32-bit integer.
	maxPage = math.MaxInt32 / maxPageSize
)

// parsePagination reads page and limit (or pageSize). Missing, non-numeric or
// non-positive values fall back to the defaults, as does a page past maxPage.
// The size is capped.
func parsePagination(q url.Values) (page, size int) {
	page = positiveOr(q.Get("page"), defaultPage)
	if page > maxPage {
		page = defaultPage
	}
	raw := q.Get("limit")
	if raw == "" {
		raw = q.Get("pageSize")
	}
	size = min(positiveOr(raw, defaultPageSize), maxPageSize)
	return page, size
}

func positiveOr(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size := parsePagination(q)

	result, err := h.catalog.List(r.Context(), product.Filter{
		Search: q.Get("search"),
		Offset: (page - 1) * size,
		Limit:  size,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, "Products fetched", encodeProducts(result.Items), pagination{
		PageNumber: page,
		PageSize:   size,
		TotalSize:  result.Total,
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Product fetched", encodeProduct(p))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request, id user.Identity) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, typeErrs, err := decodeProductFields(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := createProductRequest(f)
	if fields := append(typeErrs, h.validate.Check(req, "", typeErrs)...); len(fields) > 0 {
		writeError(w, r, validationFailed(fields))
		return
	}

	p, err := h.catalog.Create(r.Context(), product.Draft{
		Name:        *req.Name,
		Description: *req.Description,
		Price:       *req.Price,
		Stock:       *req.Stock,
		Category:    *req.Category,
		CreatorID:   id.UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Product created", encodeProduct(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request, _ user.Identity) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, typeErrs, err := decodeProductFields(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := updateProductRequest(f)
	if fields := append(typeErrs, h.validate.Check(req, "", typeErrs)...); len(fields) > 0 {
		writeError(w, r, validationFailed(fields))
		return
	}

	patch := product.Patch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
	}
	if patch.Empty() {
		writeError(w, r, apperr.Validation("Validation error", "At least one field is required"))
		return
	}

	p, err := h.catalog.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Product updated", encodeProduct(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request, _ user.Identity) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Product deleted successfully", nil)
}
