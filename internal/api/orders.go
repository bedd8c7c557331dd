package api

import (
	"net/http"
	"strconv"

	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/order"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/user"
)

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, id user.Identity) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	reqLines, typeErrs, err := decodeOrderLines(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	fields := []string(typeErrs)
	if len(reqLines) == 0 {
		fields = append(fields, "Array must contain at least 1 element(s)")
	}
	for i, l := range reqLines {
		if l.malformed {
			continue
		}
		fields = append(fields, h.validate.Check(l, strconv.Itoa(i), typeErrs)...)
	}
	if len(fields) > 0 {
		writeError(w, r, validationFailed(fields))
		return
	}

	lines := make([]order.Line, len(reqLines))
	for i, l := range reqLines {
		lines[i] = order.Line{ProductID: *l.ProductID, Quantity: *l.Quantity}
	}

	placed, err := h.orders.PlaceOrder(r.Context(), id.UserID, lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Order placed", encodeOrder(placed))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, id user.Identity) {
	orders, err := h.orders.ListForUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Orders fetched", encodeOrders(orders))
}
