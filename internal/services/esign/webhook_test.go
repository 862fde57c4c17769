package esign

import (
	"testing"
)

func TestParseEventWrapped(t *testing.T) {
	payload := []byte(`{"event":{"event_type":"signature_request_all_signed","event_time":"1724900000","event_hash":"abc","signature_request_id":"req-1"}}`)

	evt, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if evt.EventType != EventAllSigned {
		t.Errorf("EventType = %q", evt.EventType)
	}
	if evt.SignatureRequestID != "req-1" {
		t.Errorf("SignatureRequestID = %q", evt.SignatureRequestID)
	}
}

func TestParseEventFlat(t *testing.T) {
	payload := []byte(`{"event_type":"signature_request_declined","event_time":"1724900000","signature_request_id":"req-2","decline_reason":"changed terms"}`)

	evt, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent failed: %v", err)
	}
	if evt.EventType != EventDeclined || evt.DeclineReason != "changed terms" {
		t.Errorf("Unexpected event: %+v", evt)
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"hello":"world"}`)); err == nil {
		t.Error("Payload without event type should be rejected")
	}
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("Non-JSON payload should be rejected")
	}
}

func TestEventVerify(t *testing.T) {
	secret := "webhook-secret"
	evt := &Event{
		EventType: EventSigned,
		EventTime: "1724900000",
	}
	evt.EventHash = ComputeEventHash(secret, evt.EventTime, evt.EventType)

	if !evt.Verify(secret) {
		t.Error("Correctly signed event should verify")
	}
	if evt.Verify("wrong-secret") {
		t.Error("Wrong secret must not verify")
	}

	tampered := *evt
	tampered.EventTime = "1724900001"
	if tampered.Verify(secret) {
		t.Error("Tampered timestamp must not verify")
	}
}

func TestEventVerifyRequiresSecretAndHash(t *testing.T) {
	evt := &Event{EventType: EventSigned, EventTime: "1724900000"}
	if evt.Verify("secret") {
		t.Error("Missing hash must not verify")
	}

	evt.EventHash = ComputeEventHash("secret", evt.EventTime, evt.EventType)
	if evt.Verify("") {
		t.Error("Empty secret must never verify")
	}
}
