package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/studyhub/marketplace-api/internal/api/httpx/middlewares"
	"github.com/studyhub/marketplace-api/internal/pkg/metrics"
)

// NewRouter assembles the REST surface. Everything under /orders requires a
// valid bearer token; health and metrics stay open.
func NewRouter(handler *Handler, jwtSecret []byte, users middlewares.UserLoader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/orders", func(r chi.Router) {
		r.Use(middlewares.Authenticate(jwtSecret, users))

		r.Post("/", handler.CreateOrder)
		r.Put("/{id}/confirm", handler.ConfirmOrder)
		r.Put("/{id}/shipping-fee", handler.UpdateShippingFee)
		r.Put("/{id}/ship", handler.MarkAsShipping)
		r.Put("/{id}/deliver", handler.MarkAsDelivered)
		r.Put("/{id}/complete", handler.CompleteOrder)
		r.Put("/{id}/cancel", handler.CancelOrder)

		r.Get("/bought", handler.ListBought)
		r.Get("/bought/count", handler.CountBought)
		r.Get("/sold", handler.ListSold)
		r.Get("/sold/count", handler.CountSold)
	})

	return r
}
