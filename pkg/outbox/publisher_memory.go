package outbox

import (
	"context"
	"sync"
)

// MemoryPublisher is an in-process Publisher for tests and local
// development, tracking published rows and optionally failing on demand
// to exercise the drainer's retry/quarantine paths.
type MemoryPublisher struct {
	mu         sync.Mutex
	published  []Row
	nextOffset map[string]int64
	failFor    map[string]error
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		nextOffset: make(map[string]int64),
		failFor:    make(map[string]error),
	}
}

// FailNext arranges for the next Publish call carrying the given event ID
// to return err.
func (p *MemoryPublisher) FailNext(eventID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failFor[eventID] = err
}

func (p *MemoryPublisher) Publish(_ context.Context, row Row) (PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := row.ID.String()
	if err, ok := p.failFor[id]; ok {
		delete(p.failFor, id)
		return PublishResult{}, err
	}

	offset := p.nextOffset[row.Topic]
	p.nextOffset[row.Topic] = offset + 1
	p.published = append(p.published, row)
	return PublishResult{Partition: 0, Offset: offset}, nil
}

func (p *MemoryPublisher) Published() []Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Row, len(p.published))
	copy(out, p.published)
	return out
}
