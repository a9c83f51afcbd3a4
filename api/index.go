package handler

import (
	"net/http"
	"sync"

	"mlaku/config"
	"mlaku/di"
	"mlaku/shared/logger"
	transport "mlaku/transport/http"
)

var (
	server *transport.HTTP
	once   sync.Once
)

// Handler is the serverless entrypoint. The service graph is built on the
// first request and reused by warm invocations.
func Handler(w http.ResponseWriter, r *http.Request) {
	r.RequestURI = r.URL.String()

	once.Do(func() {
		logger.InitLogger()
		logger.Configure(config.Get())

		server = di.InitializeService()
	})

	server.ServeHTTP(w, r)
}
