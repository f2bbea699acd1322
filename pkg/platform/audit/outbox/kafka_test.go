package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRecord(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := toRecord("notary.audit", Entry{
		ID:            "0b8f7c0e-4c1e-4c55-9a43-8d6c1b7e2f10",
		AggregateType: "document",
		AggregateID:   "42",
		EventType:     "document_signed",
		Payload:       []byte(`{"action":"document_signed"}`),
		CreatedAt:     created,
	})

	assert.Equal(t, "notary.audit", rec.Topic)
	assert.Equal(t, []byte("42"), rec.Key)
	assert.Equal(t, []byte(`{"action":"document_signed"}`), rec.Value)
	assert.Equal(t, created, rec.Timestamp)

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "document_signed", headers["event_type"])
	assert.Equal(t, "document", headers["aggregate_type"])
	assert.Equal(t, "0b8f7c0e-4c1e-4c55-9a43-8d6c1b7e2f10", headers["event_id"])
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "notary.audit")
	require.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	require.Error(t, err)
}

func TestNewRelayValidation(t *testing.T) {
	_, err := NewRelay(nil, nil)
	require.Error(t, err)
}
