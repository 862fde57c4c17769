// Package standardizer is the alternate vision tier: a third-party
// document-extraction service that standardizes uploads against a named
// schema. Upload, poll to completion with capped backoff, fetch the result.
package standardizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/casaflow-io/casaflowgo/internal/extraction"
)

const (
	pollInitialDelay = 1 * time.Second
	pollMaxDelay     = 30 * time.Second
	pollBudget       = 60 * time.Second
)

// Client talks to the standardization service and acts as an extraction
// tier. The resolved schema id is cached for the process lifetime, keyed by
// schema name.
type Client struct {
	apiURL     string
	apiKey     string
	schemaName string
	httpClient *http.Client

	mu        sync.Mutex
	schemaIDs map[string]string
}

// NewClient creates the standardization service client
func NewClient(apiURL, apiKey, schemaName string) *Client {
	return &Client{
		apiURL:     apiURL,
		apiKey:     apiKey,
		schemaName: schemaName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		schemaIDs: make(map[string]string),
	}
}

// Name identifies the tier
func (c *Client) Name() string { return "standardizer" }

// Extract uploads the document, waits for the job, and maps the
// standardized result onto the canonical schema. Confidence is the schema
// fill rate, same formula as every other tier.
func (c *Client) Extract(ctx context.Context, doc []byte) (*extraction.ExtractionResult, error) {
	schemaID, err := c.resolveSchemaID(ctx, c.schemaName)
	if err != nil {
		return nil, &extraction.ExternalServiceError{Service: "standardizer", Err: err}
	}

	jobID, err := c.upload(ctx, doc, schemaID)
	if err != nil {
		return nil, &extraction.ExternalServiceError{Service: "standardizer", Err: err}
	}

	if err := c.waitForJob(ctx, jobID); err != nil {
		return nil, &extraction.ExternalServiceError{Service: "standardizer", Err: err}
	}

	raw, err := c.fetchResult(ctx, jobID, schemaID)
	if err != nil {
		return nil, &extraction.ExternalServiceError{Service: "standardizer", Err: err}
	}

	var result extraction.ExtractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &extraction.InvalidModelResponseError{Raw: string(raw), Err: err}
	}
	result.StrategyUsed = extraction.StrategyVision
	result.DocConfidence = result.Confidence()
	return &result, nil
}

// resolveSchemaID looks the schema up by id when cached, else by name.
func (c *Client) resolveSchemaID(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	if id, ok := c.schemaIDs[name]; ok {
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/schemas", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("schema lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("schema lookup returned %d", resp.StatusCode)
	}

	var schemas []struct {
		SchemaID string `json:"schemaId"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&schemas); err != nil {
		return "", fmt.Errorf("failed to parse schema list: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range schemas {
		c.schemaIDs[s.Name] = s.SchemaID
	}
	if id, ok := c.schemaIDs[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("schema %q not found", name)
}

func (c *Client) upload(ctx context.Context, doc []byte, schemaID string) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "document.pdf")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(doc); err != nil {
		return "", err
	}
	_ = w.WriteField("schemaId", schemaID)
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/documents", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload returned %d: %s", resp.StatusCode, data)
	}

	var parsed struct {
		DocumentID string `json:"documentId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if parsed.DocumentID == "" {
		return "", fmt.Errorf("upload returned no document id")
	}
	return parsed.DocumentID, nil
}

// waitForJob polls job status with capped exponential backoff: 1s, 2s, 4s,
// ..., capped at 30s, total budget 60s.
func (c *Client) waitForJob(ctx context.Context, jobID string) error {
	deadline := time.Now().Add(pollBudget)
	delay := pollInitialDelay

	for {
		status, err := c.jobStatus(ctx, jobID)
		if err != nil {
			return err
		}
		switch status {
		case "completed":
			return nil
		case "failed", "error":
			return fmt.Errorf("standardization job %s failed", jobID)
		}

		if time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("standardization job %s did not finish within %s", jobID, pollBudget)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > pollMaxDelay {
			delay = pollMaxDelay
		}
	}
}

func (c *Client) jobStatus(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/documents/"+jobID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("status poll failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status poll returned %d", resp.StatusCode)
	}

	var parsed struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse status response: %w", err)
	}
	return parsed.Status, nil
}

func (c *Client) fetchResult(ctx context.Context, jobID, schemaID string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/standardizations?documentId=%s&schemaId=%s", c.apiURL, jobID, schemaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("result fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("result fetch returned %d", resp.StatusCode)
	}

	var parsed struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("standardization %s returned no data", jobID)
	}
	return parsed.Data, nil
}
