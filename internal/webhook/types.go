package webhook

import (
	"time"

	"github.com/saturnino-fabrica-de-software/webhook-processor/internal/domain"
)

// EntryResult is the per-entry outcome reported by one runner invocation
type EntryResult struct {
	EventID    string             `json:"event_id"`
	Source     domain.Source      `json:"source,omitempty"`
	Status     domain.QueueStatus `json:"status"`
	RetryCount *int               `json:"retry_count,omitempty"`
	NextRetry  *time.Time         `json:"next_retry,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Summary aggregates the results of one invocation. Entries whose claim was lost
// to a concurrent runner are not part of it.
type Summary struct {
	Processed int           `json:"processed"`
	Results   []EntryResult `json:"results"`
}

// Counts tallies results per final status
func (s Summary) Counts() map[domain.QueueStatus]int {
	counts := make(map[domain.QueueStatus]int, 3)
	for _, r := range s.Results {
		counts[r.Status]++
	}
	return counts
}
