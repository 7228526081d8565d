package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Apex-dev01/Comet/internal/rewrite"
	"github.com/Apex-dev01/Comet/web"
)

// AssetHandler serves the embedded client runtime: the bootstrap script, the
// service worker and the theme stylesheet.
type AssetHandler struct{}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler() *AssetHandler {
	return &AssetHandler{}
}

// Bootstrap serves the page bootstrap script injected into rewritten documents.
func (h *AssetHandler) Bootstrap(c echo.Context) error {
	return h.serve(c, "cep.js", "text/javascript; charset=utf-8")
}

// ServiceWorker serves the service worker script. Service-Worker-Allowed
// widens the registration scope to the whole origin so the worker can
// intercept /proxy/ navigations.
func (h *AssetHandler) ServiceWorker(c echo.Context) error {
	c.Response().Header().Set("Service-Worker-Allowed", "/")
	return h.serve(c, "sw.js", "text/javascript; charset=utf-8")
}

// ThemeStylesheet serves the stylesheet injected when theme customization is on.
func (h *AssetHandler) ThemeStylesheet(c echo.Context) error {
	return h.serve(c, rewrite.ThemeStylesheetPath[1:], "text/css; charset=utf-8")
}

func (h *AssetHandler) serve(c echo.Context, name, contentType string) error {
	data, err := web.FS.ReadFile(name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return c.Blob(http.StatusOK, contentType, data)
}
