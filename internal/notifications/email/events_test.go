package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEngagementEvents(t *testing.T) {
	body := []byte(`[
		{"event":"delivered","sg_message_id":"sg-1","timestamp":1773140400},
		{"event":"open","sg_message_id":"sg-2","timestamp":1773140460},
		{"event":"click","sg_message_id":"sg-3","timestamp":1773140520},
		{"event":"bounce","sg_message_id":"sg-4","timestamp":1773140580},
		{"event":"open","sg_message_id":"","timestamp":1773140640}
	]`)

	events, err := ParseEngagementEvents(body)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EngagementOpen, events[0].Type)
	assert.Equal(t, "sg-2", events[0].MessageID)
	assert.Equal(t, time.Unix(1773140460, 0).UTC(), events[0].At)

	assert.Equal(t, EngagementClick, events[1].Type)
	assert.Equal(t, "sg-3", events[1].MessageID)
}

func TestParseEngagementEventsEmptyBatch(t *testing.T) {
	events, err := ParseEngagementEvents([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseEngagementEventsRejectsGarbage(t *testing.T) {
	_, err := ParseEngagementEvents(nil)
	assert.Error(t, err)

	_, err = ParseEngagementEvents([]byte(`{"event":"open"}`))
	assert.Error(t, err)
}
