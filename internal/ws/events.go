package ws

import "time"

const (
	EventAlert        = "alert.triggered"
	EventRunCompleted = "run.completed"
	EventEntryResult  = "entry.processed"
	EventIngested     = "webhook.ingested"
	EventClaimsSwept  = "claims.reclaimed"
)

type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}
