package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler, assets *AssetHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/comet/status", health.Status)

	e.GET("/cep.js", assets.Bootstrap)
	e.GET("/sw.js", assets.ServiceWorker)
	e.GET("/comet-theme.css", assets.ThemeStylesheet)

	e.GET("/proxy/*", proxy.Handle)
	e.GET("/proxy", proxy.Handle)
}
