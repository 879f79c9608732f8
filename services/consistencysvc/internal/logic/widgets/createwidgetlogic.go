package widgets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/txsubstrate/platform/pkg/consistency"
	"github.com/txsubstrate/platform/pkg/dedupe"
	"github.com/txsubstrate/platform/pkg/etag"
	"github.com/txsubstrate/platform/pkg/outbox"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/svc"
	"github.com/txsubstrate/platform/services/consistencysvc/internal/types"
	"github.com/txsubstrate/platform/shared/middleware"
	"github.com/txsubstrate/platform/shared/models"
)

var (
	errNoScope         = errors.New("widget: no consistency scope on request")
	errRejectedByFence = errors.New("widget: request rejected by dedupe fence")
	errKeyInProgress   = errors.New("widget: a request with this idempotency key is already in progress")
	errKeyReused       = errors.New("widget: idempotency key reused with a different request body")
)

type CreateWidgetLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewCreateWidgetLogic(ctx context.Context, svcCtx *svc.ServiceContext) *CreateWidgetLogic {
	return &CreateWidgetLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// CreateWidget creates a widget. A request carrying an Idempotency-Key is
// replayed from the idempotency store when the same key was already
// completed, and guarded by the dedupe engine against double side effects
// while the first attempt is still in flight.
func (l *CreateWidgetLogic) CreateWidget(req *types.CreateWidgetRequest) (*types.WidgetResponse, error) {
	scope, ok := consistency.FromContext(l.ctx)
	if !ok {
		return nil, errNoScope
	}
	tenant := scope.Tenant()

	if req.IdempotencyKey != "" {
		if resp, replayed, err := l.replay(tenant, req); replayed || err != nil {
			return resp, err
		}

		decision := l.svcCtx.Dedupe.CheckAndMark(l.ctx, tenant, req.IdempotencyKey, 1, nil, "widget.create", false)
		if decision.IsQuarantine() {
			return nil, errRejectedByFence
		}
		if decision == dedupe.Duplicate {
			// The key's side effect is claimed but no response snapshot
			// exists yet: the first attempt is still running or died
			// mid-flight. Either way the write must not happen twice.
			if resp, replayed, err := l.replay(tenant, req); replayed || err != nil {
				return resp, err
			}
			return nil, errKeyInProgress
		}
	}

	id := uuid.New().String()
	resp := &types.WidgetResponse{ID: id, Name: req.Name, Version: 1}

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	row := outbox.NewRow(tenant, "widget.created", payload, scope.StartedAt())
	row.AggregateType = strPtr("widget")
	row.AggregateID = &id
	row.EventType = strPtr("widget.created")
	if err := l.svcCtx.Outbox.Insert(l.ctx, row); err != nil {
		return nil, err
	}

	if err := l.svcCtx.Consistency.MarkWriteNow(l.ctx); err != nil {
		l.Errorf("widget: mark write failed: %v", err)
		return nil, err
	}

	version, err := etag.NewEntityVersion(1)
	if err != nil {
		return nil, err
	}
	middleware.SetEntityVersion(l.ctx, version)

	if req.IdempotencyKey != "" {
		l.snapshot(tenant, req, payload)
	}

	return resp, nil
}

// replay looks up a completed response for the request's idempotency key.
// A stored record whose request hash doesn't match means the client
// reused the key for a different request, which is rejected rather than
// silently answered with someone else's response.
func (l *CreateWidgetLogic) replay(tenant string, req *types.CreateWidgetRequest) (*types.WidgetResponse, bool, error) {
	rec, found, err := l.svcCtx.Idempotency.Get(l.ctx, tenant, req.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if rec.RequestHash != requestHash(req) {
		return nil, false, errKeyReused
	}

	var resp types.WidgetResponse
	if err := json.Unmarshal(rec.ResponseSnapshot, &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

// snapshot records the completed response for future replays. Best
// effort: a failed insert only costs the client a replay, never the
// original response.
func (l *CreateWidgetLogic) snapshot(tenant string, req *types.CreateWidgetRequest, payload []byte) {
	now := time.Now()
	ttl := time.Duration(l.svcCtx.Config.Mongo.IdempotencyTTLHours) * time.Hour
	_, err := l.svcCtx.Idempotency.Put(l.ctx, models.IdempotencyRecord{
		TenantID:         tenant,
		RequestKey:       req.IdempotencyKey,
		RequestHash:      requestHash(req),
		HTTPMethod:       http.MethodPost,
		HTTPPath:         "/v1/widgets",
		ResponseSnapshot: payload,
		StatusCode:       http.StatusOK,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	})
	if err != nil {
		l.Errorf("widget: idempotency snapshot failed: %v", err)
	}
}

func requestHash(req *types.CreateWidgetRequest) string {
	h := sha256.Sum256([]byte("POST|/v1/widgets|" + req.Name))
	return hex.EncodeToString(h[:])
}

func strPtr(s string) *string { return &s }
