package cost

import (
	"context"
	"sync"
	"time"
)

type UsageRecord struct {
	RequestID    string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	// CostUSD is nil when the model has no pricing.
	CostUSD   *float64
	Estimated bool
	Streamed  bool
	Status    string
	LatencyMs int64
	Timestamp time.Time
}

type Tracker interface {
	Record(ctx context.Context, record UsageRecord) error
	GetProviderUsage(ctx context.Context, provider string, since time.Time) ([]UsageRecord, error)
	GetProviderTotalCost(ctx context.Context, provider string, since time.Time) (float64, error)
}

type InMemoryTracker struct {
	mu      sync.RWMutex
	records []UsageRecord
}

func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{
		records: make([]UsageRecord, 0),
	}
}

func (t *InMemoryTracker) Record(ctx context.Context, record UsageRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, record)
	return nil
}

func (t *InMemoryTracker) GetProviderUsage(ctx context.Context, provider string, since time.Time) ([]UsageRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []UsageRecord
	for _, r := range t.records {
		if r.Provider == provider && r.Timestamp.After(since) {
			result = append(result, r)
		}
	}
	return result, nil
}

// GetProviderTotalCost sums priced records only.
func (t *InMemoryTracker) GetProviderTotalCost(ctx context.Context, provider string, since time.Time) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for _, r := range t.records {
		if r.Provider == provider && r.Timestamp.After(since) && r.CostUSD != nil {
			total += *r.CostUSD
		}
	}
	return total, nil
}

func (t *InMemoryTracker) GetAllRecords() []UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]UsageRecord, len(t.records))
	copy(result, t.records)
	return result
}
