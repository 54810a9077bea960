package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSwagger(t *testing.T) {
	doc := NewSwagger().MustToJson()

	var parsed struct {
		Paths map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(doc, &parsed))

	for _, path := range []string{
		"/webhooks/process",
		"/webhooks/sweep",
		"/webhooks/queue/stats",
		"/webhooks/events/{event_id}",
		"/ingest/{source}",
	} {
		assert.Contains(t, parsed.Paths, path)
	}
}
