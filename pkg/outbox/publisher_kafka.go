package outbox

import (
	"context"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher publishes outbox rows with github.com/twmb/franz-go.
// Partition affinity comes from setting the record key to the row's
// EventKey when present, falling back to AggregateID so all events for
// one aggregate serialize onto a single partition.
type KafkaPublisher struct {
	client *kgo.Client
}

func NewKafkaPublisher(client *kgo.Client) *KafkaPublisher {
	return &KafkaPublisher{client: client}
}

func (p *KafkaPublisher) Publish(ctx context.Context, row Row) (PublishResult, error) {
	record := &kgo.Record{
		Topic: row.Topic,
		Value: row.Payload,
	}

	switch {
	case row.EventKey != nil:
		record.Key = []byte(*row.EventKey)
	case row.AggregateID != nil:
		record.Key = []byte(*row.AggregateID)
	}

	headers, err := DecodeHeaders(row.Headers)
	if err != nil {
		return PublishResult{}, err
	}
	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	// Routing metadata headers are injected only when the row's own
	// headers didn't already set them.
	if _, ok := headers["x-tenant-id"]; !ok {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: "x-tenant-id", Value: []byte(row.TenantID)})
	}
	if _, ok := headers["x-entity-version"]; !ok && row.EntityVersion != nil {
		record.Headers = append(record.Headers, kgo.RecordHeader{
			Key:   "x-entity-version",
			Value: []byte(strconv.FormatInt(*row.EntityVersion, 10)),
		})
	}
	if _, ok := headers["x-event-id"]; !ok {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: "x-event-id", Value: []byte(row.ID.String())})
	}

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return PublishResult{}, err
	}

	produced, err := result.First()
	if err != nil {
		return PublishResult{}, err
	}
	return PublishResult{Partition: produced.Partition, Offset: produced.Offset}, nil
}
