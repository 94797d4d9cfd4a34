package middleware

import (
	"strconv"
	"time"

	"habit-wars/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestLogger records every request in the metrics registry and the log.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		duration := time.Since(start).Seconds()

		utils.ReqCount.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		utils.ReqDuration.WithLabelValues(c.Method(), path).Observe(duration)

		utils.Logger.Info("http_request",
			zap.String("method", c.Method()),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Float64("duration", duration),
			zap.String("client_ip", c.IP()),
		)
		return err
	}
}
