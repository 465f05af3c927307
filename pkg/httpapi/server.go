// Package httpapi exposes the storefront over a JSON API. Each response
// carries the visitor's fresh snapshot and pending toasts so the page can
// re-render in one step.
package httpapi

import (
	"net/http"

	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/catalog"
	"github.com/GoogleCloudPlatform/microservices-demo/src/storefront/pkg/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type Options struct {
	Registry *store.Registry
	Catalog  *catalog.Catalog
	Log      *logrus.Logger
	// SessionSecret signs the session cookie. When empty a random secret is
	// used and sessions do not survive a restart.
	SessionSecret string
	// Limiter is optional.
	Limiter *Limiter
}

type Server struct {
	registry *store.Registry
	catalog  *catalog.Catalog
	log      *logrus.Logger
	cookie   sessionCookie
	limiter  *Limiter
	requests metric.Int64Counter
}

func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	secret := opts.SessionSecret
	if secret == "" {
		opts.Log.Warn("SESSION_SECRET not set, using a random secret")
		secret = uuid.NewString()
	}
	s := &Server{
		registry: opts.Registry,
		catalog:  opts.Catalog,
		log:      opts.Log,
		cookie:   sessionCookie{secret: []byte(secret)},
		limiter:  opts.Limiter,
	}
	counter, err := otel.GetMeterProvider().Meter("storefront.httpapi").Int64Counter(
		"http_requests_total",
		metric.WithUnit("{requests}"),
		metric.WithDescription("handled HTTP requests by method and status"),
	)
	if err != nil {
		s.log.Warnf("failed to register http metrics: %v", err)
	}
	s.requests = counter
	return s
}

// Handler returns the routed API wrapped in its middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/products", s.productsHandler).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/cart", s.viewCartHandler).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/cart/items", s.addToCartHandler).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}", s.setQuantityHandler).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{id}", s.removeFromCartHandler).Methods(http.MethodDelete)
	api.HandleFunc("/checkout", s.checkoutHandler).Methods(http.MethodPost)
	api.HandleFunc("/login", s.loginHandler).Methods(http.MethodPost)
	api.HandleFunc("/register", s.registerHandler).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.logoutHandler).Methods(http.MethodPost)
	api.HandleFunc("/session", s.sessionHandler).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/notifications", s.notificationsHandler).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthzHandler)

	var handler http.Handler = r
	handler = &logHandler{log: s.log, next: handler, requests: s.requests}
	handler = s.cookie.ensureSessionID(handler)
	if s.limiter != nil {
		handler = s.limiter.GlobalAndIPLimiter(handler)
	}
	return handler
}
