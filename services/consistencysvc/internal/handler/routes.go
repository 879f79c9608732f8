package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"github.com/txsubstrate/platform/services/consistencysvc/internal/handler/widgets"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/svc"
)

// RegisterHandlers wires every route, threading the resource endpoints
// through the boundary middleware and leaving the internal operational
// endpoints outside it.
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	server.AddRoutes([]rest.Route{
		{
			Method:  http.MethodGet,
			Path:    "/internal/healthz",
			Handler: HealthHandler(svcCtx),
		},
		{
			Method:  http.MethodGet,
			Path:    "/internal/metrics",
			Handler: svcCtx.Metrics.Handler().ServeHTTP,
		},
	}, rest.WithPrefix("/v1"))

	server.AddRoutes([]rest.Route{
		{
			Method:  http.MethodGet,
			Path:    "/widgets/:id",
			Handler: svcCtx.Boundary.Handle(widgets.GetWidgetHandler(svcCtx)),
		},
		{
			Method:  http.MethodPost,
			Path:    "/widgets",
			Handler: svcCtx.Boundary.Handle(widgets.CreateWidgetHandler(svcCtx)),
		},
	}, rest.WithPrefix("/v1"))
}
