package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lemur/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"
)

// HealthHandler reports the health of the backing services. The server
// stays up with a degraded status when the cache or a provider is down;
// only a fully unavailable gateway turns the overall status unhealthy.
func HealthHandler(c echo.Context) error {
	type response struct {
		Status    string          `json:"status"`
		Providers []ai.HealthInfo `json:"providers"`
		Cache     string          `json:"cache"`
		Documents int             `json:"documents"`
		Chunks    int             `json:"chunks"`
	}

	cc := c.(*middleware.AppContext)
	ctx := c.Request().Context()

	providers := cc.App.Gateway.Health(ctx)
	anyAvailable := false
	for _, p := range providers {
		if p.Status == ai.StatusAvailable {
			anyAvailable = true
			break
		}
	}

	cacheStatus := "ok"
	if err := cc.App.Cache.Ping(ctx); err != nil {
		cacheStatus = "unavailable"
	}

	status := "ok"
	switch {
	case !anyAvailable:
		status = "unhealthy"
	case cacheStatus != "ok":
		status = "degraded"
	}

	docs, _, chunks := cc.App.Docs.Counts()

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, response{
		Status:    status,
		Providers: providers,
		Cache:     cacheStatus,
		Documents: docs,
		Chunks:    chunks,
	})
}
