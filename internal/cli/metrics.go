package cli

import (
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// metricsHandler serves /metrics from reg and a plain /healthz.
func metricsHandler(reg *prometheus.Registry) fasthttp.RequestHandler {
	promHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/metrics":
			promHandler(ctx)
		case "/healthz":
			ctx.SetContentType("text/plain; charset=utf-8")
			ctx.SetBodyString("ok")
		default:
			ctx.Error("not found", fasthttp.StatusNotFound)
		}
	}
}

// serveMetrics binds addr and serves metrics in the background. Bind errors
// are returned right away.
func serveMetrics(addr string, reg *prometheus.Registry) (*fasthttp.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	srv := &fasthttp.Server{
		Name:    "sitesync",
		Handler: metricsHandler(reg),
	}
	go func() {
		if err := srv.Serve(ln); err != nil {
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return srv, nil
}
