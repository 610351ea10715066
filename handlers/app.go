package handlers

import (
	"log/slog"
	"path/filepath"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pages of the web client served by name.
var pages = map[string]string{
	"/login":            "login.html",
	"/signup":           "signup.html",
	"/farmer-dashboard": "farmer-dashboard.html",
	"/buyer-dashboard":  "buyer-dashboard.html",
}

// NewApp assembles the HTTP server: REST API, chat socket, metrics and the
// optional static frontend.
func NewApp(log *slog.Logger, api *API, chat *ChatHandler, m *metrics.Metrics, frontendDir string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "FarmConnect",
		ErrorHandler: ErrorHandler(log),
	})
	app.Use(recover.New())
	app.Use(logger.New()) // Basic request logging
	app.Use(cors.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	api.Register(app.Group("/api"))

	app.Use("/ws", chat.Upgrade)
	app.Get("/ws", websocket.New(chat.Serve))

	if frontendDir != "" {
		for route, file := range pages {
			app.Get(route, servePage(filepath.Join(frontendDir, file)))
		}
		app.Static("/", frontendDir)
	}
	return app
}

func servePage(path string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendFile(path)
	}
}
