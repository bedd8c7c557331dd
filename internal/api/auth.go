package api

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/Niphilbert/e-Commerce-Backend/internal/apperr"
	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/user"
)

// authedHandler is an endpoint that runs for an authenticated caller.
type authedHandler func(w http.ResponseWriter, r *http.Request, id user.Identity)

// requireAuth resolves the bearer token. Missing headers are reported as
// "Unauthorized", bad tokens as "Invalid token".
func (h *Handler) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, r, apperr.Unauthorized("Unauthorized"))
			return
		}
		id, err := h.tokens.VerifyToken(raw)
		if err != nil {
			writeError(w, r, apperr.Unauthorized("Invalid token"))
			return
		}

		ctx := zctx.With(r.Context(), zap.String("user_id", id.UserID))
		next(w, r.WithContext(ctx), id)
	}
}

// requireAdmin is requireAuth plus the ADMIN role check.
func (h *Handler) requireAdmin(next authedHandler) http.HandlerFunc {
	return h.requireAuth(func(w http.ResponseWriter, r *http.Request, id user.Identity) {
		if !id.IsAdmin() {
			writeError(w, r, apperr.Forbidden("Forbidden"))
			return
		}
		next(w, r, id)
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, typeErrs, err := decodeRegister(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if fields := append(typeErrs, h.validate.Check(req, "", typeErrs)...); len(fields) > 0 {
		writeError(w, r, validationFailed(fields))
		return
	}

	u, err := h.accounts.Register(r.Context(), *req.Username, *req.Email, *req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "User registered successfully", encodeUser(u))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, typeErrs, err := decodeLogin(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if fields := append(typeErrs, h.validate.Check(req, "", typeErrs)...); len(fields) > 0 {
		writeError(w, r, validationFailed(fields))
		return
	}

	session, err := h.accounts.Login(r.Context(), *req.Email, *req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Login successful", encodeSession(session))
}
