package router

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "mlaku/docs" // swagger definitions
	"mlaku/internal/handlers/auth"
	"mlaku/internal/handlers/booking"
	"mlaku/internal/handlers/trip"
	"mlaku/internal/handlers/user"
	"mlaku/transport/http/middleware"
)

type DomainHandlers struct {
	Auth    auth.Handler
	User    user.Handler
	Trip    trip.Handler
	Booking booking.Handler
}

type Router struct {
	DomainHandlers DomainHandlers
	App            middleware.AppMiddleware
	AuthRole       middleware.AuthRole
}

// SetupRoutes mounts the middleware chain and every versioned route on router.
// Authentication runs after routing so permissions are matched against route patterns.
func (r *Router) SetupRoutes(router chi.Router) {
	router.Use(chiMiddleware.Recoverer)
	router.Use(r.App.Tracing)
	router.Use(r.App.CORS())
	router.Use(r.App.RateLimit)
	router.Use(r.AuthRole.APIKey)
	router.Use(r.AuthRole.Auth)
	router.Use(r.AuthRole.RBAC)

	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	router.Route("/v1", func(routerGroup chi.Router) {
		r.DomainHandlers.Auth.Router(routerGroup)
		r.DomainHandlers.User.Router(routerGroup)
		r.DomainHandlers.Trip.Router(routerGroup)
		r.DomainHandlers.Booking.Router(routerGroup)
	})
}

func New(domainHandlers DomainHandlers, app middleware.AppMiddleware, authRole middleware.AuthRole) Router {
	return Router{
		DomainHandlers: domainHandlers,
		App:            app,
		AuthRole:       authRole,
	}
}
