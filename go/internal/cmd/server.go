package main

import (
	"net/http"
	"time"

	"connectrpc.com/grpcreflect"
	"github.com/mcdev12/colorclash/go/internal/config"
	"github.com/mcdev12/colorclash/go/internal/gamerpc"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register the RPC service
	mux.Handle(gamerpc.NewGameServiceHandler(services.GameRPC))

	// Setup reflection for grpcui/grpcurl
	setupReflection(mux)

	// JSON routes, health check and WebSocket
	mux.Handle("/", services.Gateway.Routes())

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func setupReflection(mux *http.ServeMux) {
	reflector := grpcreflect.NewStaticReflector(gamerpc.GameServiceName)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
}
