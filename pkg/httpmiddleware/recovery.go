package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery turns handler panics into a 500 envelope. http.ErrAbortHandler
// is passed through.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer recoverRequest(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

func recoverRequest(w http.ResponseWriter, r *http.Request) {
	v := recover()
	switch v {
	case nil:
		return
	case http.ErrAbortHandler:
		panic(v)
	}
	zctx.From(r.Context()).Error("Handler panic",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Any("panic", v),
		zap.Stack("stack"),
	)
	w.Header().Set("Connection", "close")
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}
