package server

import (
	"net/http"

	"github.com/berfenger/bmsgateway/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type versionResponse struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
	Dirty    bool   `json:"dirty"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/health/units", s.UnitHealthHandler)
	e.GET("/api/storage", s.StorageHandler)
	e.GET("/api/version", s.VersionHandler)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) UnitHealthHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetUnitHealthRequest{}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetUnitHealthResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	status := http.StatusOK
	for _, u := range response.Units {
		if !u.Healthy {
			status = http.StatusServiceUnavailable
		}
	}
	return c.JSON(status, response.Units)
}

func (s *Server) StorageHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetStorageSnapshotRequest{}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetStorageSnapshotResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		return echo.NewHTTPError(http.StatusInternalServerError, response.ResponseError.Error())
	}
	return c.JSON(http.StatusOK, response.Snapshot)
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, versionResponse{
		Version:  versioninfo.Version,
		Revision: versioninfo.Revision,
		Dirty:    versioninfo.DirtyBuild,
	})
}
