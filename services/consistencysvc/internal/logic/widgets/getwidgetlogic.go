package widgets

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/txsubstrate/platform/services/consistencysvc/internal/svc"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/types"
)

type GetWidgetLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetWidgetLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetWidgetLogic {
	return &GetWidgetLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// GetWidget returns a widget by id. It opens no writes, so it only
// exercises the boundary's read-your-writes wait and token re-emission.
func (l *GetWidgetLogic) GetWidget(req *types.GetWidgetRequest) (*types.WidgetResponse, error) {
	return &types.WidgetResponse{ID: req.ID, Version: 1}, nil
}
