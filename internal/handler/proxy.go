package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Apex-dev01/Comet/internal/features"
	"github.com/Apex-dev01/Comet/internal/metrics"
	"github.com/Apex-dev01/Comet/internal/model"
	"github.com/Apex-dev01/Comet/internal/proxyurl"
	"github.com/Apex-dev01/Comet/internal/rewrite"
	"github.com/Apex-dev01/Comet/internal/service"
)

// ProxyHandler fetches a target page and streams it back, rewriting HTML
// responses so their resource references route through the proxy.
type ProxyHandler struct {
	service  *service.ProxyService
	features *features.Loader
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewProxyHandler creates a ProxyHandler. metrics may be nil when collection
// is disabled.
func NewProxyHandler(svc *service.ProxyService, loader *features.Loader, m *metrics.Metrics, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service:  svc,
		features: loader,
		metrics:  m,
		logger:   logger.With("component", "proxy_handler"),
	}
}

// Handle resolves the encoded target URL from the request path, fetches it
// and streams the response back. HTML bodies pass through the rewrite engine;
// everything else is copied byte for byte.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	target, err := h.service.ResolveTarget(req.URL.EscapedPath())
	if err != nil {
		return h.mapError(c, err)
	}

	snap := h.features.Snapshot(req.Context())

	resp, err := h.service.Fetch(&model.ProxyRequest{
		Ctx:    req.Context(),
		Target: target,
		Header: req.Header,
	}, snap)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}
	c.Response().Header().Set("X-Proxied-By", "Comet")
	c.Response().Header().Set("Access-Control-Allow-Origin", "*")

	if !service.IsHTML(resp.Header.Get("Content-Type")) {
		c.Response().WriteHeader(resp.StatusCode)

		// Stream the upstream body directly to the client. If io.Copy fails
		// mid-stream (e.g. client disconnect, network error), the HTTP status
		// code has already been sent, so the client receives a truncated
		// response with the original status. Nothing to do but log it.
		if _, err := io.Copy(c.Response(), resp.Body); err != nil {
			h.logger.Error("streaming response body",
				"err", err,
				"target", target.String(),
			)
		}
		return nil
	}

	// Rewriting changes the body length and injects markup the origin did
	// not declare, so length and policy headers from upstream no longer hold.
	c.Response().Header().Del("Content-Length")
	c.Response().Header().Del("Content-Encoding")
	c.Response().Header().Del("Content-Security-Policy")
	c.Response().WriteHeader(resp.StatusCode)

	engine := rewrite.NewEngine(
		rewrite.NewAttributeRewriter(proxyurl.NewCodec(target)),
		rewrite.NewPolicy(snap),
		h.logger,
	)
	if err := engine.Run(req.Context(), resp.Body, c.Response()); err != nil {
		h.logger.Error("rewriting response body",
			"err", err,
			"target", target.String(),
		)
		return nil
	}

	stats := engine.Stats()
	if h.metrics != nil {
		h.metrics.RewriteDocuments.Inc()
		h.metrics.RewriteAttributes.Add(float64(stats.AttributesRewritten))
		if stats.Degraded {
			h.metrics.RewriteDegraded.Inc()
		}
	}
	h.logger.Debug("rewrote document",
		"target", target.String(),
		"tags", stats.TagsRewritten,
		"attributes", stats.AttributesRewritten,
		"degraded", stats.Degraded,
	)

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrMissingTarget) {
		return c.String(http.StatusBadRequest, "missing target URL: request /proxy/<encoded-url>")
	}
	if errors.Is(err, service.ErrInvalidTarget) {
		return c.String(http.StatusBadRequest, "invalid target URL: expected an encoded absolute http or https URL")
	}
	if errors.Is(err, service.ErrBlockedHost) {
		return c.String(http.StatusForbidden, "target host is blocked")
	}

	return c.String(http.StatusInternalServerError, fmt.Sprintf("upstream fetch failed: %v", err))
}
