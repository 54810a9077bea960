package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// EntryResult is the outcome of one queue entry in a processing run
type EntryResult struct {
	EventID    string `json:"event_id" example:"evt_1MqLzR2eZvKYlo2C"`
	Status     string `json:"status" example:"pending"`
	RetryCount int    `json:"retry_count,omitempty" example:"2"`
	NextRetry  string `json:"next_retry,omitempty" example:"2026-03-01T12:00:04Z"`
	Error      string `json:"error,omitempty" example:"finance.transactions.sync: POST https://finance.internal/sync: HTTP 503"`
}

// ProcessResponse is returned when at least one entry was processed
type ProcessResponse struct {
	Success   bool          `json:"success" example:"true"`
	Processed int           `json:"processed" example:"3"`
	Results   []EntryResult `json:"results"`
}

// IdleResponse is returned when nothing was due
type IdleResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"No pending webhooks to process"`
}

type SweepResponse struct {
	Success   bool  `json:"success" example:"true"`
	Reclaimed int64 `json:"reclaimed" example:"1"`
}

type StatsResponse struct {
	Pending    int64 `json:"pending" example:"4"`
	Processing int64 `json:"processing" example:"1"`
	Completed  int64 `json:"completed" example:"1520"`
	Failed     int64 `json:"failed" example:"2"`
	Total      int64 `json:"total" example:"1527"`
}

// WebhookEvent is the stored copy of a provider delivery
type WebhookEvent struct {
	EventID     string `json:"event_id" example:"evt_1MqLzR2eZvKYlo2C"`
	Source      string `json:"source" example:"stripe"`
	EventType   string `json:"event_type" example:"invoice.payment_failed"`
	RetryCount  int    `json:"retry_count" example:"0"`
	LastError   string `json:"last_error,omitempty" example:""`
	Processed   bool   `json:"processed" example:"true"`
	ProcessedAt string `json:"processed_at,omitempty" example:"2026-03-01T12:00:00Z"`
	ReceivedAt  string `json:"received_at" example:"2026-03-01T11:59:58Z"`
}

type QueueEntry struct {
	ID           string       `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventID      string       `json:"event_id" example:"evt_1MqLzR2eZvKYlo2C"`
	Status       string       `json:"status" example:"completed"`
	RetryCount   int          `json:"retry_count" example:"0"`
	NextRetryAt  string       `json:"next_retry_at" example:"2026-03-01T11:59:58Z"`
	ErrorMessage string       `json:"error_message,omitempty" example:""`
	Event        WebhookEvent `json:"event"`
}

type EventResponse struct {
	Entry        QueueEntry `json:"entry"`
	DispatchedAt string     `json:"dispatched_at,omitempty" example:"2026-03-01T12:00:00Z"`
}

type IngestResponse struct {
	Success   bool   `json:"success" example:"true"`
	EventID   string `json:"event_id" example:"evt_1MqLzR2eZvKYlo2C"`
	EventType string `json:"event_type" example:"invoice.payment_failed"`
	Duplicate bool   `json:"duplicate" example:"false"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"QUEUE_UNAVAILABLE"`
	Message string `json:"message" example:"Webhook queue is unavailable"`
}

var (
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing trigger token"}, "401", "Unauthorized")
	errQueue        = response.New(ErrorResponse{Code: "QUEUE_UNAVAILABLE", Message: "Webhook queue is unavailable"}, "500", "Internal Server Error")
	bearer          = []map[string][]string{{"BearerAuth": {}}}
)

func processEndpoint() *endpoint.EndPoint {
	return endpoint.New(
		endpoint.POST,
		"/webhooks/process",
		endpoint.WithTags("Processing"),
		endpoint.WithSummary("Run one processing pass"),
		endpoint.WithDescription("Claims up to BATCH_SIZE due queue entries, dispatches each to its provider handler and records completed, retry or failed. No request body. Also served on GET for schedulers that cannot POST."),
		endpoint.WithProduce([]mime.MIME{mime.JSON}),
		endpoint.WithSuccessfulReturns([]response.Response{
			response.New(ProcessResponse{}, "200", "Entries processed"),
			response.New(IdleResponse{}, "200", "Nothing due"),
		}),
		endpoint.WithErrors([]response.Response{errUnauthorized, errQueue}),
		endpoint.WithSecurity(bearer),
	)
}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Webhook Processor API",
		Version:     "v1.0.0",
		Description: "Ingests provider webhooks (Stripe, QuickBooks, Plaid, Zapier) into a durable queue and processes them with exponential backoff retries",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/webhooks/process
		processEndpoint(),

		// POST /v1/webhooks/sweep
		endpoint.New(
			endpoint.POST,
			"/webhooks/sweep",
			endpoint.WithTags("Processing"),
			endpoint.WithSummary("Reclaim stale claims"),
			endpoint.WithDescription("Returns entries stuck in processing for longer than CLAIM_TIMEOUT to pending. A no-op when CLAIM_TIMEOUT is 0."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SweepResponse{}, "200", "Sweep completed"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errQueue}),
			endpoint.WithSecurity(bearer),
		),

		// GET /v1/webhooks/queue/stats
		endpoint.New(
			endpoint.GET,
			"/webhooks/queue/stats",
			endpoint.WithTags("Queue"),
			endpoint.WithSummary("Queue counts per status"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(StatsResponse{}, "200", "Counts"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errQueue}),
			endpoint.WithSecurity(bearer),
		),

		// GET /v1/webhooks/events/{event_id}
		endpoint.New(
			endpoint.GET,
			"/webhooks/events/{event_id}",
			endpoint.WithTags("Queue"),
			endpoint.WithSummary("Look up an event"),
			endpoint.WithDescription("Returns the stored event, its queue state and when it was last dispatched successfully."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("event_id", parameter.Path, parameter.WithDescription("Provider event id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EventResponse{}, "200", "Event found"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "WEBHOOK_NOT_FOUND", Message: "Webhook event not found"}, "404", "Not Found"),
				errQueue,
			}),
			endpoint.WithSecurity(bearer),
		),

		// POST /v1/ingest/{source}
		endpoint.New(
			endpoint.POST,
			"/ingest/{source}",
			endpoint.WithTags("Ingestion"),
			endpoint.WithSummary("Receive a provider webhook"),
			endpoint.WithDescription("Verifies X-Webhook-Signature (sha256=<hex> HMAC of the raw body) when the source has a secret, resolves the event id and type, and enqueues the delivery. Redeliveries answer 200 with duplicate=true."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("source", parameter.Path, parameter.WithDescription("stripe, quickbooks, plaid or zapier")),
				parameter.StrParam("X-Webhook-Signature", parameter.Header, parameter.WithDescription("sha256=<hex> body signature")),
				parameter.StrParam("X-Webhook-Event-Id", parameter.Header, parameter.WithDescription("Overrides the event id found in the body")),
				parameter.StrParam("X-Webhook-Event-Type", parameter.Header, parameter.WithDescription("Overrides the event type found in the body")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(IngestResponse{}, "202", "Queued"),
				response.New(IngestResponse{Success: true, Duplicate: true}, "200", "Already received"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "INVALID_PAYLOAD", Message: "Webhook payload must be a JSON document"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "INVALID_SIGNATURE", Message: "Webhook signature verification failed"}, "401", "Unauthorized"),
				response.New(ErrorResponse{Code: "UNKNOWN_SOURCE", Message: "No ingestion endpoint for this webhook source"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "MISSING_EVENT_TYPE", Message: "Webhook event type could not be determined"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many webhook deliveries, retry later"}, "429", "Too Many Requests"),
				errQueue,
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
