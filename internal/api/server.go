package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/mayanpathak/Code-Collab/internal/config"
	"github.com/mayanpathak/Code-Collab/internal/store"
	"github.com/mayanpathak/Code-Collab/internal/ws"
)

// New wires the fiber app: the websocket endpoint plus the REST message
// surface. authMW must authenticate the session and enforce project
// membership before any message route runs.
func New(cfg *config.Config, st store.Store, wsSrv *ws.Server, authMW fiber.Handler, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "codecollab-realtime",
		DisableStartupMessage: cfg.App.Env == "production",
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "success", "message": "Server is running"})
	})

	app.Get("/socket", wsSrv.Handshake(), wsSrv.Handler())

	h := &messageHandlers{store: st, pageSize: cfg.Store.PageSize, log: log}
	msgs := app.Group("/projects/:projectId/messages", authMW)
	msgs.Get("/", h.list)
	msgs.Post("/search", h.search)
	msgs.Delete("/", h.clear)
	msgs.Get("/count", h.count)

	return app
}
