package gateway

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"github.com/mulgadc/ec2-scheduler/scheduler/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayConfig exposes the instance action handler over HTTP.
type GatewayConfig struct {
	DisableLogging bool
	Handler        *handler.Handler
}

// SetupRoutes builds the fiber app:
//
//	POST /invoke   event JSON in, HTTP status = statusCode, HTTP body = body
//	GET  /health   liveness
//	GET  /metrics  Prometheus metrics
func (gw *GatewayConfig) SetupRoutes() *fiber.App {
	app := fiber.New(fiber.Config{
		// Disable the startup banner
		DisableStartupMessage: gw.DisableLogging,

		// Override default error handler
		ErrorHandler: func(ctx *fiber.Ctx, err error) error {
			return gw.ErrorHandler(ctx, err)
		},
	})

	if !gw.DisableLogging {
		app.Use(logger.New())
	}

	app.Post("/invoke", gw.Invoke)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}

// Invoke runs one invocation with the request body as the event payload.
func (gw *GatewayConfig) Invoke(ctx *fiber.Ctx) error {
	requestID := ctx.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	reqLogger := slog.Default().With("request_id", requestID)

	resp := gw.Handler.HandleEvent(handler.WithLogger(ctx.UserContext(), reqLogger), ctx.Body())

	ctx.Set("X-Request-Id", requestID)
	ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return ctx.Status(resp.StatusCode).SendString(resp.Body)
}

// ErrorHandler renders routing and framework errors in the same body shape
// the handler uses.
func (gw *GatewayConfig) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
	}

	slog.Debug("ErrorHandler", "path", ctx.Path(), "code", code, "error", err.Error())

	return ctx.Status(code).JSON(fiber.Map{"error": err.Error()})
}
