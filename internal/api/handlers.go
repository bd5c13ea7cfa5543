package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/dealshop/internal/analytics"
	"github.com/example/dealshop/internal/domain/account"
	"github.com/example/dealshop/internal/domain/cart"
	"github.com/example/dealshop/internal/domain/order"
	"github.com/example/dealshop/internal/domain/payment"
	"github.com/example/dealshop/internal/domain/product"
	"github.com/example/dealshop/internal/identity"
)

type Handlers struct {
	carts     *cart.Service
	orders    *order.Service
	products  *product.Service
	payments  *payment.Service
	accounts  *account.Service
	analytics analytics.Sink
}

func NewHandlers(carts *cart.Service, orders *order.Service, products *product.Service, payments *payment.Service, accounts *account.Service, sink analytics.Sink) *Handlers {
	return &Handlers{
		carts:     carts,
		orders:    orders,
		products:  products,
		payments:  payments,
		accounts:  accounts,
		analytics: sink,
	}
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.Load(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// GetCartCount serves the badge in the page header.
func (h *Handlers) GetCartCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.carts.TotalItemCount(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Price       float64 `json:"price"`
		Image       string  `json:"image"`
		Description string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	items, err := h.carts.AddItem(r.Context(), req.Name, req.Price, req.Image, req.Description)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": cart.CountItems(items),
	})
}

// Order Handlers

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TotalAmount float64 `json:"total_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	orderID, err := h.orders.Create(r.Context(), req.TotalAmount)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) PayOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/pay")
	if err := h.orders.Pay(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Order paid"})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/cancel")
	if err := h.orders.Cancel(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Order cancelled"})
}

// Product Handlers

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in product.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.products.Create(r.Context(), in)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// GetProducts lists the catalog. ?category= and ?q= narrow the result.
func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	var (
		products any
		err      error
	)
	switch {
	case r.URL.Query().Get("q") != "":
		products, err = h.products.Search(r.Context(), r.URL.Query().Get("q"))
	case r.URL.Query().Get("category") != "":
		products, err = h.products.ListByCategory(r.Context(), r.URL.Query().Get("category"))
	default:
		products, err = h.products.ListAll(r.Context())
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetFeaturedProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListFeatured(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.products.Update(r.Context(), id, fields); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product updated"})
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	if err := h.products.Delete(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

func (h *Handlers) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/products/"), "/stock")

	var req struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.products.AdjustStock(r.Context(), id, req.Delta); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Stock updated"})
}

// Payment Method Handlers

func (h *Handlers) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var in payment.AddInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	m, err := h.payments.Add(r.Context(), in)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (h *Handlers) GetPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.payments.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, methods)
}

func (h *Handlers) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/payment-methods/")
	if err := h.payments.Remove(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Payment method deleted"})
}

func (h *Handlers) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/payment-methods/"), "/default")
	if err := h.payments.SetDefault(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Default payment method updated"})
}

// Subscription Handler

func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.accounts.Subscribe(r.Context(), req.Email); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"message": "Subscribed"})
}

// TrackPageView records a page_view analytics event from the front-end.
func (h *Handlers) TrackPageView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PageTitle    string `json:"page_title"`
		PageLocation string `json:"page_location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.analytics.LogEvent(r.Context(), "page_view", map[string]any{
		"page_title":    req.PageTitle,
		"page_location": req.PageLocation,
	})
	w.WriteHeader(http.StatusAccepted)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// respondDomainError maps domain errors onto HTTP statuses. Store
// failures get a neutral message; internals never reach the client.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		respondJSONError(w, "Please sign in", http.StatusUnauthorized)
	case errors.Is(err, order.ErrNotOrderOwner),
		errors.Is(err, payment.ErrNotMethodOwner):
		respondJSONError(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, payment.ErrMethodNotFound),
		errors.Is(err, account.ErrUserNotFound):
		respondJSONError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, cart.ErrEmptyName),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrTotalMismatch),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrOrderShipped),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, product.ErrNameRequired),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, payment.ErrCardNumberShort),
		errors.Is(err, payment.ErrCardholderNeeded),
		errors.Is(err, account.ErrInvalidEmail):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		respondJSONError(w, "Something went wrong. Please try again.", http.StatusBadGateway)
	}
}
