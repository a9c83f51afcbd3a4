package main

import (
	"mlaku/config"
	"mlaku/di"
	"mlaku/helper"
	"mlaku/shared/logger"
)

// @title Mlaku API
// @version 1.0
// @description Travel booking service for trip owners, staff and tourists.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	logger.InitLogger()

	cfg := config.Get()

	logger.Configure(cfg)

	helper.AutoMigrate(cfg)

	http := di.InitializeService()
	http.Serve()
}
