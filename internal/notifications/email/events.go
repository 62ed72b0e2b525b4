package email

import (
	"encoding/json"
	"fmt"
	"time"
)

// EngagementType classifies a provider engagement event.
type EngagementType string

const (
	EngagementOpen  EngagementType = "open"
	EngagementClick EngagementType = "click"
)

// EngagementEvent is one open or click reported by the email provider.
type EngagementEvent struct {
	Type      EngagementType
	MessageID string
	At        time.Time
}

// providerEvent is one entry of the provider's event webhook payload. The
// provider posts a JSON array of these; fields we do not use are ignored.
type providerEvent struct {
	Event     string `json:"event"`
	MessageID string `json:"sg_message_id"`
	Timestamp int64  `json:"timestamp"` // unix seconds
}

// ParseEngagementEvents parses a provider event webhook body into engagement
// events. Event types other than open and click (delivered, bounce, spam
// report) are skipped, as are events missing a message id. An empty result is
// normal, not an error.
func ParseEngagementEvents(body []byte) ([]EngagementEvent, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("engagement events: empty body")
	}

	var raw []providerEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("engagement events: parsing payload: %w", err)
	}

	var events []EngagementEvent
	for _, e := range raw {
		if e.MessageID == "" {
			continue
		}
		var kind EngagementType
		switch e.Event {
		case "open":
			kind = EngagementOpen
		case "click":
			kind = EngagementClick
		default:
			continue
		}
		events = append(events, EngagementEvent{
			Type:      kind,
			MessageID: e.MessageID,
			At:        time.Unix(e.Timestamp, 0).UTC(),
		})
	}
	return events, nil
}
