package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/casaflow-io/casaflowgo/internal/models"
	"github.com/casaflow-io/casaflowgo/internal/offers"
)

// listOffers returns offers, optionally filtered by listing and status
func (r *Router) listOffers(w http.ResponseWriter, req *http.Request) {
	q := r.db.WithContext(req.Context()).Order("created_at DESC").Limit(100)
	if listing := req.URL.Query().Get("listingId"); listing != "" {
		q = q.Where("listing_id = ?", listing)
	}
	if status := req.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var results []models.Offer
	if err := q.Find(&results).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch offers")
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// getOffer returns one offer
func (r *Router) getOffer(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var offer models.Offer
	if err := r.db.First(&offer, "offer_id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Offer not found")
		return
	}
	respondJSON(w, http.StatusOK, offer)
}

// acceptOffer starts the signing flow on a reviewed offer
func (r *Router) acceptOffer(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	offer, err := r.offers.Accept(req.Context(), id)
	if err != nil {
		respondOfferError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, offer)
}

type declineRequest struct {
	Reason string `json:"reason"`
}

// declineOffer rejects an offer outright
func (r *Router) declineOffer(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var body declineRequest
	_ = json.NewDecoder(req.Body).Decode(&body)

	offer, err := r.offers.Decline(req.Context(), id, body.Reason)
	if err != nil {
		respondOfferError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, offer)
}

type counterRequest struct {
	Terms string `json:"terms"`
}

// counterOffer marks the offer countered
func (r *Router) counterOffer(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var body counterRequest
	_ = json.NewDecoder(req.Body).Decode(&body)

	offer, err := r.offers.Counter(req.Context(), id, body.Terms)
	if err != nil {
		respondOfferError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, offer)
}

// resetSigning recovers a stuck signing flow back to review
func (r *Router) resetSigning(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	offer, err := r.offers.ResetSigning(req.Context(), id)
	if err != nil {
		respondOfferError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, offer)
}

// getSignURL returns the embedded signing URL for the seller
func (r *Router) getSignURL(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var offer models.Offer
	if err := r.db.First(&offer, "offer_id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Offer not found")
		return
	}
	if offer.Status != models.OfferStatusAwaitingSignature || offer.SignatureID == "" {
		respondError(w, http.StatusConflict, "Offer is not awaiting signature")
		return
	}

	signURL, err := r.esign.GetEmbeddedSignURL(req.Context(), offer.SignatureID)
	if err != nil {
		log.Printf("❌ Failed to fetch sign URL for offer %s: %v", id, err)
		respondError(w, http.StatusBadGateway, "Signing provider error")
		return
	}
	respondJSON(w, http.StatusOK, signURL)
}

// respondOfferError maps state machine errors onto HTTP statuses
func respondOfferError(w http.ResponseWriter, offerID string, err error) {
	var transition *offers.InvalidTransitionError
	switch {
	case errors.Is(err, offers.ErrNotFound):
		respondError(w, http.StatusNotFound, "Offer not found")
	case errors.As(err, &transition):
		respondError(w, http.StatusConflict, transition.Error())
	default:
		log.Printf("❌ Offer %s operation failed: %v", offerID, err)
		respondError(w, http.StatusInternalServerError, "Offer operation failed")
	}
}
