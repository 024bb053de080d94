package server

import (
	"net/http"
	"time"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/util/actorutil"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/coordinators", s.CoordinatorsHandler)
	e.GET("/api/discovery", s.DiscoveryHandler)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := actorutil.Ask[domain.ActorHealthResponse](s.rootContext, s.masterActor, domain.ActorHealthRequest{}, 10*time.Second)
	if err != nil || !res.Healthy {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	return c.String(http.StatusOK, "health_check: OK")
}

func (s *Server) CoordinatorsHandler(c echo.Context) error {
	res, err := actorutil.Ask[domain.ListCoordinatorsResponse](s.rootContext, s.masterActor, domain.ListCoordinatorsRequest{}, 5*time.Second)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, res.Coordinators)
}

func (s *Server) DiscoveryHandler(c echo.Context) error {
	gateways, err := s.discover(c.Request().Context(), s.discoveryTimeout)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, gateways)
}
