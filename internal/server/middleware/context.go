package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/OFFIS-RIT/lemur/backend/pkg/ai"
	"github.com/OFFIS-RIT/lemur/backend/pkg/cache"
	"github.com/OFFIS-RIT/lemur/backend/pkg/graph"
	"github.com/OFFIS-RIT/lemur/backend/pkg/index"
	"github.com/OFFIS-RIT/lemur/backend/pkg/router"
)

type App struct {
	Queue   *amqp091.Channel
	Router  *router.Router
	Gateway *ai.Gateway
	Docs    *index.HierarchicalIndex
	Flat    *index.FlatIndex
	Graph   *graph.Store
	Cache   *cache.Store
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
