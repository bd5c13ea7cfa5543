package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/example/dealshop/internal/api/middleware"
	"github.com/example/dealshop/internal/auth"
)

// RouterConfig carries everything the router needs to assemble routes.
type RouterConfig struct {
	Handlers     *Handlers
	AuthHandlers *AuthHandlers
	JWTService   *auth.JWTService
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	h := cfg.Handlers
	requireAuth := middleware.AuthMiddleware(cfg.JWTService)
	requireAdmin := middleware.RequireRole("admin")

	// Auth
	mux.HandleFunc("/auth/register", methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: cfg.AuthHandlers.Register,
	}))
	mux.HandleFunc("/auth/login", methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: cfg.AuthHandlers.Login,
	}))
	mux.HandleFunc("/auth/logout", methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: cfg.AuthHandlers.Logout,
	}))
	mux.HandleFunc("/auth/refresh", methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: cfg.AuthHandlers.Refresh,
	}))
	mux.HandleFunc("/auth/password-reset", methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: cfg.AuthHandlers.RequestPasswordReset,
	}))
	mux.HandleFunc("/auth/password-reset/confirm", methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: cfg.AuthHandlers.ResetPassword,
	}))

	// Cart (authenticated)
	mux.Handle("/cart", requireAuth(methodHandler(map[string]http.HandlerFunc{
		http.MethodGet: h.GetCart,
	})))
	mux.Handle("/cart/count", requireAuth(methodHandler(map[string]http.HandlerFunc{
		http.MethodGet: h.GetCartCount,
	})))
	mux.Handle("/cart/items", requireAuth(methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: h.AddToCart,
	})))

	// Orders (authenticated)
	mux.Handle("/orders", requireAuth(methodHandler(map[string]http.HandlerFunc{
		http.MethodGet:  h.GetOrders,
		http.MethodPost: h.CreateOrder,
	})))
	mux.Handle("/orders/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/pay") && r.Method == http.MethodPost:
			h.PayOrder(w, r)
		case strings.HasSuffix(path, "/cancel") && r.Method == http.MethodPost:
			h.CancelOrder(w, r)
		case r.Method == http.MethodGet:
			h.GetOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Products (reads public, writes admin-only)
	mux.Handle("/products", adminForWrites(cfg.JWTService, requireAdmin, methodHandler(map[string]http.HandlerFunc{
		http.MethodGet:  h.GetProducts,
		http.MethodPost: h.CreateProduct,
	})))
	mux.HandleFunc("/products/featured", methodHandler(map[string]http.HandlerFunc{
		http.MethodGet: h.GetFeaturedProducts,
	}))
	mux.Handle("/products/", adminForWrites(cfg.JWTService, requireAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/stock") && r.Method == http.MethodPost:
			h.AdjustStock(w, r)
		case r.Method == http.MethodGet:
			h.GetProduct(w, r)
		case r.Method == http.MethodPut:
			h.UpdateProduct(w, r)
		case r.Method == http.MethodDelete:
			h.DeleteProduct(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Payment methods (authenticated)
	mux.Handle("/payment-methods", requireAuth(methodHandler(map[string]http.HandlerFunc{
		http.MethodGet:  h.GetPaymentMethods,
		http.MethodPost: h.AddPaymentMethod,
	})))
	mux.Handle("/payment-methods/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/default") && r.Method == http.MethodPost:
			h.SetDefaultPaymentMethod(w, r)
		case r.Method == http.MethodDelete:
			h.DeletePaymentMethod(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Newsletter and analytics (public)
	mux.HandleFunc("/subscriptions", methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: h.Subscribe,
	}))
	mux.HandleFunc("/events/page-view", methodHandler(map[string]http.HandlerFunc{
		http.MethodPost: h.TrackPageView,
	}))

	return withLogging(mux)
}

func methodHandler(routes map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := routes[r.Method]; ok {
			handler(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// adminForWrites lets GETs straight through and gates every other
// method behind authentication plus the admin role.
func adminForWrites(jwtService *auth.JWTService, requireAdmin func(http.Handler) http.Handler, next http.Handler) http.Handler {
	gated := middleware.AuthMiddleware(jwtService)(requireAdmin(next))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		gated.ServeHTTP(w, r)
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
