package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/plugwise2mqtt/internal/config"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

// DiscoverFunc browses the local network for gateways.
type DiscoverFunc func(ctx context.Context, timeout time.Duration) ([]plugwise.DiscoveredGateway, error)

type Server struct {
	port             uint
	httpLog          bool
	rootContext      *actor.RootContext
	masterActor      *actor.PID
	metrics          http.Handler
	discover         DiscoverFunc
	discoveryTimeout time.Duration
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, metrics http.Handler) *http.Server {
	NewServer := newServer(cfg, rootContext, masterActor, metrics, plugwise.Discover)

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, metrics http.Handler, discover DiscoverFunc) *Server {
	return &Server{
		port:             cfg.Port,
		rootContext:      rootContext,
		masterActor:      masterActor,
		httpLog:          cfg.HttpLog,
		metrics:          metrics,
		discover:         discover,
		discoveryTimeout: cfg.Discovery.Timeout(),
	}
}
