package widgets

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/txsubstrate/platform/services/consistencysvc/internal/logic/widgets"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/svc"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/types"
)

func GetWidgetHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GetWidgetRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := widgets.NewGetWidgetLogic(r.Context(), svcCtx)
		resp, err := l.GetWidget(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
