package handlers

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/casaflow-io/casaflowgo/internal/models"
	"github.com/casaflow-io/casaflowgo/internal/offers"
	"github.com/casaflow-io/casaflowgo/internal/pipeline"
)

const maxUploadBytes = 32 << 20 // 32MB

// ingestDocument receives an inbound message attachment, runs it through
// the analysis pipeline and, when it turns out to be a recognized offer
// form, creates or updates the corresponding offer.
func (r *Router) ingestDocument(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "A file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	msg := offers.MessageInput{
		MessageID:      req.FormValue("messageId"),
		ThreadID:       req.FormValue("threadId"),
		ListingID:      req.FormValue("listingId"),
		BuyerID:        req.FormValue("buyerId"),
		BuyerName:      req.FormValue("buyerName"),
		BuyerEmail:     req.FormValue("buyerEmail"),
		Classification: models.MessageClassification(req.FormValue("classification")),
	}
	if msg.MessageID == "" {
		respondError(w, http.StatusBadRequest, "messageId is required")
		return
	}
	if msg.Classification == "" {
		msg.Classification = models.ClassificationNewOffer
	}

	result, err := r.analyzer.Analyze(req.Context(), pipeline.Input{
		Filename:     header.Filename,
		ContentType:  contentType,
		Data:         data,
		MessageID:    msg.MessageID,
		AttachmentID: req.FormValue("attachmentId"),
	})
	if err != nil {
		log.Printf("❌ Analysis failed for %s: %v", header.Filename, err)
		respondError(w, http.StatusUnprocessableEntity, "Document analysis failed")
		return
	}

	response := map[string]interface{}{
		"document": result.Document,
		"analysis": result.Analysis,
	}

	if result.Analysis.IsRecognizedForm && msg.ListingID != "" && msg.BuyerID != "" {
		offer, err := r.offers.CreateFromMessage(req.Context(), msg, result.Analysis, result.Extraction, result.Document.StorageKey)
		if err != nil {
			log.Printf("❌ Offer creation failed for message %s: %v", msg.MessageID, err)
			respondError(w, http.StatusUnprocessableEntity, "Offer creation failed")
			return
		}
		response["offer"] = offer
	}

	respondJSON(w, http.StatusCreated, response)
}

// getAnalysis returns the persisted analysis for a document
func (r *Router) getAnalysis(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var analysis models.DocumentAnalysis
	if err := r.db.Where("document_id = ?", id).First(&analysis).Error; err != nil {
		respondError(w, http.StatusNotFound, "Analysis not found")
		return
	}
	respondJSON(w, http.StatusOK, analysis)
}

// listAnalyses returns recent analyses, optionally filtered by form type
func (r *Router) listAnalyses(w http.ResponseWriter, req *http.Request) {
	query := r.db.WithContext(req.Context()).Order("created_at DESC").Limit(100)
	if formType := req.URL.Query().Get("formType"); formType != "" {
		query = query.Where("form_type = ?", formType)
	}
	if recognized := req.URL.Query().Get("recognized"); recognized == "true" {
		query = query.Where("is_recognized_form = ?", true)
	}

	var analyses []models.DocumentAnalysis
	if err := query.Find(&analyses).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list analyses")
		return
	}
	respondJSON(w, http.StatusOK, analyses)
}

// getDocumentURL returns a short-lived signed download URL
func (r *Router) getDocumentURL(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var doc models.Document
	if err := r.db.First(&doc, "document_id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Document not found")
		return
	}

	url, err := r.storage.GetSignedURL(req.Context(), doc.StorageKey, 15*time.Minute)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to sign URL")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}
