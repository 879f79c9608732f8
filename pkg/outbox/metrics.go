package outbox

// Metrics observes drainer outcomes. The production implementation is
// backed by prometheus/client_golang; tests use a no-op.
type Metrics interface {
	Published(tenant, topic string)
	Retried(tenant, topic string)
	Quarantined(tenant, topic, reason string)
	ClaimBatchSize(n int)
}

type noopMetrics struct{}

func (noopMetrics) Published(string, string)           {}
func (noopMetrics) Retried(string, string)             {}
func (noopMetrics) Quarantined(string, string, string) {}
func (noopMetrics) ClaimBatchSize(int)                 {}
