//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"mlaku/config"
	"mlaku/infras/jwt"
	"mlaku/infras/kafka"
	"mlaku/infras/mailer"
	"mlaku/infras/otel"
	"mlaku/infras/postgres"
	"mlaku/infras/redis"
	"mlaku/infras/s3"
	"mlaku/infras/whatsapp"
	"mlaku/permissions"
	"mlaku/shared/background"
	"mlaku/shared/cache"
	"mlaku/shared/limiter"
	"mlaku/shared/notifier"
	"mlaku/transport/http"
	"mlaku/transport/http/middleware"
	"mlaku/transport/http/router"

	authService "mlaku/internal/domains/auth/service"
	bookingRepository "mlaku/internal/domains/booking/repository"
	bookingService "mlaku/internal/domains/booking/service"
	tripRepository "mlaku/internal/domains/trip/repository"
	tripService "mlaku/internal/domains/trip/service"
	userRepository "mlaku/internal/domains/user/repository"
	userService "mlaku/internal/domains/user/service"

	authHandler "mlaku/internal/handlers/auth"
	bookingHandler "mlaku/internal/handlers/booking"
	tripHandler "mlaku/internal/handlers/trip"
	userHandler "mlaku/internal/handlers/user"
)

var configurations = wire.NewSet(
	config.Get,
	permissions.Get,
)

var infrastructures = wire.NewSet(
	postgres.New,
	otel.New,
	redis.New,
	jwt.New,
	s3.New,
	kafka.New,
	mailer.New,
	whatsapp.New,
)

var middlewares = wire.NewSet(
	middleware.NewAppMiddleware,
	middleware.NewAuthRoleMiddleware,
)

var sharedHelpers = wire.NewSet(
	cache.NewRedisCache,
	limiter.New,
	background.New,
	notifier.New,
	wire.Bind(new(notifier.EmailSender), new(*mailer.Mailer)),
	wire.Bind(new(notifier.WhatsAppSender), new(*whatsapp.Client)),
)

var repositories = wire.NewSet(
	userRepository.New,
	tripRepository.New,
	bookingRepository.New,
)

var domains = wire.NewSet(
	authService.New,
	userService.New,
	tripService.New,
	bookingService.New,
)

var routing = wire.NewSet(
	wire.Struct(new(router.DomainHandlers), "*"),
	authHandler.New,
	userHandler.New,
	tripHandler.New,
	bookingHandler.New,
	router.New,
)

func InitializeService() *http.HTTP {
	wire.Build(
		configurations,
		infrastructures,
		middlewares,
		sharedHelpers,
		repositories,
		domains,
		routing,
		http.New,
	)

	return &http.HTTP{}
}
