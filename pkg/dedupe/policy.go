package dedupe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"
)

// StaticPolicyProvider resolves the same Policy for every tenant/family.
type StaticPolicyProvider struct {
	Default Policy
}

func (p StaticPolicyProvider) Resolve(context.Context, string, string) (Policy, error) {
	return p.Default, nil
}

// RedisPolicyProvider lets operators push per-(tenant, family) policy
// overrides without a redeploy, stored as a Redis hash. It falls back to
// a static default when no override is present, reusing the same Redis
// client already wired for the fast-path cache.
type RedisPolicyProvider struct {
	client  *redis.Client
	Default Policy
}

// NewRedisPolicyProvider builds a provider backed by client, falling back
// to def when no override hash exists for a given tenant/family.
func NewRedisPolicyProvider(client *redis.Client, def Policy) *RedisPolicyProvider {
	return &RedisPolicyProvider{client: client, Default: def}
}

func policyKey(tenant, family string) string {
	return fmt.Sprintf("dedupe:policy:{%s}:%s", tenant, family)
}

func (p *RedisPolicyProvider) Resolve(ctx context.Context, tenant, family string) (Policy, error) {
	fields, err := p.client.HGetAll(ctx, policyKey(tenant, family)).Result()
	if err != nil {
		logx.WithContext(ctx).Errorf("dedupe: policy override lookup failed, using default: %v", err)
		return p.Default, nil
	}
	if len(fields) == 0 {
		return p.Default, nil
	}

	policy := p.Default
	if v, ok := fields["min_accepted_version"]; ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			policy.MinAcceptedVersion = n
		}
	}
	if v, ok := fields["replay_window_seconds"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			policy.ReplayWindow = time.Duration(n) * time.Second
		}
	}
	if v, ok := fields["max_future_skew_seconds"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			policy.MaxFutureSkew = time.Duration(n) * time.Second
		}
	}
	return policy, nil
}
