// Package handlers serves the cart over JSON/HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/norun9/gomarketplace-cart/cartstore"
)

const maxBodyBytes = 64 << 10

// statusClientClosedRequest is the non-standard code for a request the
// client gave up on.
const statusClientClosedRequest = 499

// Handler is the HTTP layer. It reads the cart from the request context, so
// its routes must be mounted behind ProvideCart.
type Handler struct {
	log logrus.FieldLogger
}

// NewHandler returns a Handler instance
func NewHandler(log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{log: log}
}

// ProvideCart makes c available to every handler below it.
func ProvideCart(c cartstore.Cart) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(cartstore.NewContext(r.Context(), c)))
		})
	}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	r.HandleFunc("/cart/add", h.AddToCart).Methods(http.MethodPost)
	r.HandleFunc("/cart/{id}/increment", h.Increment).Methods(http.MethodPost)
	r.HandleFunc("/cart/{id}/decrement", h.Decrement).Methods(http.MethodPost)
}

type cartView struct {
	Products []cartstore.Product `json:"products"`
	cartstore.Summary
	// PersistError is set when the change was applied but its write failed.
	PersistError string `json:"persist_error,omitempty"`
}

func newCartView(products []cartstore.Product) cartView {
	return cartView{Products: products, Summary: cartstore.Summarize(products)}
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeMutation answers a mutation with the cart. A write failure does not
// undo the change, so it is still a 200 carrying persist_error.
func (h *Handler) writeMutation(w http.ResponseWriter, c cartstore.Cart, op string, err error) {
	if err != nil && !errors.Is(err, cartstore.ErrPersist) {
		h.writeMutationErr(w, op, err)
		return
	}
	view := newCartView(c.Products())
	if err != nil {
		h.log.WithError(err).Warnf("%s applied but not persisted", op)
		view.PersistError = err.Error()
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeMutationErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, cartstore.ErrInvalidProduct):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cartstore.ErrClosed):
		h.log.WithError(err).Errorf("%s failed", op)
		writeErr(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.log.WithError(err).Infof("%s timed out", op)
		writeErr(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		h.log.WithError(err).Infof("%s cancelled", op)
		writeErr(w, statusClientClosedRequest, err.Error())
	default:
		h.log.WithError(err).Errorf("%s failed", op)
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

// GetCart handles GET /cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c := cartstore.FromContext(r.Context())
	writeJSON(w, http.StatusOK, newCartView(c.Products()))
}

// AddToCart handles POST /cart/add
// body: {"id": "...", "title": "...", "image_url": "...", "price": 10}
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	c := cartstore.FromContext(r.Context())

	var p cartstore.Product
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.writeMutation(w, c, "AddToCart", c.AddToCart(r.Context(), p))
}

// Increment handles POST /cart/{id}/increment
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	c := cartstore.FromContext(r.Context())

	h.writeMutation(w, c, "Increment", c.Increment(r.Context(), mux.Vars(r)["id"]))
}

// Decrement handles POST /cart/{id}/decrement
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	c := cartstore.FromContext(r.Context())

	h.writeMutation(w, c, "Decrement", c.Decrement(r.Context(), mux.Vars(r)["id"]))
}
