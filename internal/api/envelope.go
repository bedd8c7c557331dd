package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/order"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/product"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/user"
)

// pagination is appended to list envelopes.
type pagination struct {
	PageNumber int
	PageSize   int
	TotalSize  int
}

// writeOK writes a success envelope. A nil object is encoded as null.
func writeOK(w http.ResponseWriter, status int, message string, object func(e *jx.Encoder)) {
	writeEnvelope(w, status, true, message, object, nil, nil)
}

// writePage writes a success envelope with pagination fields.
func writePage(w http.ResponseWriter, message string, object func(e *jx.Encoder), p pagination) {
	writeEnvelope(w, http.StatusOK, true, message, object, nil, &p)
}

// writeFail writes a failure envelope. A nil errs slice is encoded as null.
func writeFail(w http.ResponseWriter, status int, message string, errs []string) {
	writeEnvelope(w, status, false, message, nil, errs, nil)
}

func writeEnvelope(
	w http.ResponseWriter,
	status int,
	success bool,
	message string,
	object func(e *jx.Encoder),
	errs []string,
	page *pagination,
) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(success) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		e.Field("object", func(e *jx.Encoder) {
			if object == nil {
				e.Null()
				return
			}
			object(e)
		})
		if page != nil {
			e.Field("pageNumber", func(e *jx.Encoder) { e.Int(page.PageNumber) })
			e.Field("pageSize", func(e *jx.Encoder) { e.Int(page.PageSize) })
			e.Field("totalSize", func(e *jx.Encoder) { e.Int(page.TotalSize) })
		}
		e.Field("errors", func(e *jx.Encoder) {
			if errs == nil {
				e.Null()
				return
			}
			e.Arr(func(e *jx.Encoder) {
				for _, msg := range errs {
					e.Str(msg)
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeOptString(e *jx.Encoder, s *string) {
	if s == nil {
		e.Null()
		return
	}
	e.Str(*s)
}

func encodeUser(u *user.User) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(u.ID) })
			e.Field("username", func(e *jx.Encoder) { e.Str(u.Username) })
			e.Field("email", func(e *jx.Encoder) { e.Str(u.Email) })
			e.Field("role", func(e *jx.Encoder) { e.Str(string(u.Role)) })
		})
	}
}

func encodeSession(s *user.Session) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("token", func(e *jx.Encoder) { e.Str(s.Token) })
			e.Field("user", encodeUser(s.User))
		})
	}
}

func encodeProductFields(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("stock", func(e *jx.Encoder) { e.Int(p.Stock) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("creatorId", func(e *jx.Encoder) { encodeOptString(e, p.CreatorID) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, p.UpdatedAt) })
	})
}

func encodeProduct(p *product.Product) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { encodeProductFields(e, p) }
}

func encodeProducts(items []product.Product) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range items {
				encodeProductFields(e, &items[i])
			}
		})
	}
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("description", func(e *jx.Encoder) { encodeOptString(e, o.Description) })
		e.Field("totalPrice", func(e *jx.Encoder) { encodeMoney(e, o.TotalPrice) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
						e.Field("orderId", func(e *jx.Encoder) { e.Str(it.OrderID) })
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
					})
				}
			})
		})
	})
}

func encodeOrder(o *order.Order) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { encodeOrderFields(e, o) }
}

func encodeOrders(orders []order.Order) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrderFields(e, &orders[i])
			}
		})
	}
}
