package vapi

import (
	"encoding/json"
	"time"
)

// Webhook event types. Anything else is acknowledged and ignored.
const (
	EventCallStarted = "call.started"
	EventCallEnded   = "call.ended"
	EventTranscript  = "transcript"
)

// WebhookEvent is the vendor's signed event envelope. The wire payload is
// kept generic because the vendor nests identifiers differently per event
// type; id extraction goes through ExtractCallID.
type WebhookEvent struct {
	Type string `json:"type"`

	// Payload is the full decoded body, retained for multi-shape id lookup.
	Payload map[string]any `json:"-"`
}

// ClientSaveRequest is the client-initiated "please fetch and save this
// call" form. Either CallID is known, or CallStartTimestamp is used for
// best-effort correlation against the vendor's recent calls.
type ClientSaveRequest struct {
	CallID             string     `json:"callId,omitempty"`
	CallStartTimestamp *time.Time `json:"callStartTimestamp,omitempty"`
	ProjectID          string     `json:"projectId"`
	UserID             string     `json:"userId"`
}

// ParseWebhookBody decodes a raw webhook body into either a vendor event
// (envelope has a type discriminator) or a client save request. isEvent
// reports which variant was found.
func ParseWebhookBody(raw []byte) (WebhookEvent, ClientSaveRequest, bool, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return WebhookEvent{}, ClientSaveRequest{}, false, err
	}

	if t, ok := generic["type"].(string); ok && t != "" {
		return WebhookEvent{Type: t, Payload: generic}, ClientSaveRequest{}, true, nil
	}

	var req ClientSaveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return WebhookEvent{}, ClientSaveRequest{}, false, err
	}
	return WebhookEvent{}, req, false, nil
}

// metadataString digs the vendor metadata object out of an event payload and
// returns the string value for key, looking at the same locations the call
// object can appear in.
func metadataString(payload map[string]any, key string) string {
	for _, path := range [][]string{
		{"call", "metadata", key},
		{"metadata", key},
		{"data", "call", "metadata", key},
	} {
		if v, ok := lookupString(payload, path); ok {
			return v
		}
	}
	return ""
}
