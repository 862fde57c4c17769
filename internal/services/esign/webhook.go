package esign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Webhook event types the offer state machine reacts to
const (
	EventSigned    = "signature_request_signed"
	EventAllSigned = "signature_request_all_signed"
	EventDeclined  = "signature_request_declined"
)

// Event is a webhook callback from the signing provider
type Event struct {
	EventType string `json:"event_type"`
	EventTime string `json:"event_time"` // unix seconds as string
	EventHash string `json:"event_hash"` // HMAC over time+type

	SignatureRequestID string `json:"signature_request_id"`
	SignerEmail        string `json:"signer_email,omitempty"`
	SignerRole         string `json:"signer_role,omitempty"` // buyer | seller
	DeclineReason      string `json:"decline_reason,omitempty"`
}

// ParseEvent decodes a webhook payload
func ParseEvent(payload []byte) (*Event, error) {
	var wrapper struct {
		Event Event `json:"event"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if wrapper.Event.EventType == "" {
		// some providers post the event flat
		var flat Event
		if err := json.Unmarshal(payload, &flat); err != nil || flat.EventType == "" {
			return nil, fmt.Errorf("webhook payload carries no event type")
		}
		return &flat, nil
	}
	return &wrapper.Event, nil
}

// ComputeEventHash derives the expected HMAC-SHA256 of timestamp+eventType
func ComputeEventHash(secret, eventTime, eventType string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(eventTime + eventType))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the event hash against the shared webhook secret. Must gate
// processing in production-equivalent environments.
func (e *Event) Verify(secret string) bool {
	if secret == "" || e.EventHash == "" {
		return false
	}
	expected := ComputeEventHash(secret, e.EventTime, e.EventType)
	return hmac.Equal([]byte(expected), []byte(e.EventHash))
}
