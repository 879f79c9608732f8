package outbox

import "context"

// PublishResult carries the broker-assigned placement of a published
// record, recorded back onto the row for audit/debugging.
type PublishResult struct {
	Partition int32
	Offset    int64
}

// Publisher delivers a single outbox row to the downstream broker. The
// event key (when set) is used for partition affinity, so two events for
// the same aggregate land on the same partition and keep their relative
// order.
type Publisher interface {
	Publish(ctx context.Context, row Row) (PublishResult, error)
}
