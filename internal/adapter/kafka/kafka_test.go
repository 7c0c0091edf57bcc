package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/road-event-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 10, 15, 9, 30, 0, 0, time.UTC)
	event := domain.RoadEvent{
		ID:        "SIT-42",
		Source:    "DIR Ouest / CEI de Rennes",
		Type:      "Accident",
		Road:      "N12",
		Severity:  "high",
		IsActive:  true,
		Status:    domain.StatusActive,
		Lat:       48.11,
		Lon:       -1.68,
		UpdatedAt: now,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("SIT-42"), msg.Key)
	assert.Contains(t, string(msg.Value), `"type":"Accident"`)
	assert.Contains(t, string(msg.Value), `"status":"en_cours"`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("Accident"), msg.Headers[0].Value)
	assert.Equal(t, "updated_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeToMessage_SubtypeCarried(t *testing.T) {
	event := domain.RoadEvent{
		ID:      "SIT-7",
		Type:    "EnvironmentalObstruction",
		Subtype: &domain.Subtype{Value: "flashFloods"},
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Contains(t, string(msg.Value), `"subtype":{"value":"flashFloods","inferred":false}`)
}
