package handlers

import (
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/casaflow-io/casaflowgo/internal/services/esign"
)

// esignWebhook receives callbacks from the signing provider. Events are
// HMAC-verified before any processing; the provider expects a plain
// "Hello API Event Received" acknowledgement body.
func (r *Router) esignWebhook(w http.ResponseWriter, req *http.Request) {
	var payload []byte
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read payload")
			return
		}
		payload = body
	} else {
		// the provider posts form-encoded with the event in a json field
		payload = []byte(req.FormValue("json"))
	}
	if len(payload) == 0 {
		respondError(w, http.StatusBadRequest, "Empty event payload")
		return
	}

	event, err := esign.ParseEvent(payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid event payload")
		return
	}

	if !event.Verify(r.cfg.ESign.WebhookSecret) {
		log.Printf("⚠️ Rejected signing event %s with bad HMAC", event.EventType)
		respondError(w, http.StatusUnauthorized, "Invalid event signature")
		return
	}

	// Once the signature checks out the event is acknowledged no matter
	// what: a non-200 makes the provider redeliver the same event forever.
	if err := r.offers.HandleSigningEvent(req.Context(), event); err != nil {
		log.Printf("❌ Failed to process signing event %s: %v", event.EventType, err)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Hello API Event Received"))
}
