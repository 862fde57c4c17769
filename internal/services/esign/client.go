// Package esign talks to the embedded e-signature provider. The webhook
// events it emits are the only asynchronous trigger into the offer state
// machine.
package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/casaflow-io/casaflowgo/internal/config"
)

// Signer is one party that must sign the envelope
type Signer struct {
	Name  string `json:"name"`
	Email string `json:"email_address"`
	Order int    `json:"order"`
}

// EnvelopeDocument is one file attached to a signature request
type EnvelopeDocument struct {
	Filename string
	Content  []byte
}

// SignatureRequest identifies a created envelope
type SignatureRequest struct {
	RequestID   string
	SignatureID string
}

// SignURL is an embedded signing URL with its expiry
type SignURL struct {
	URL       string
	ExpiresAt time.Time
}

// Client is the HTTP client for the signing provider
type Client struct {
	cfg        config.ESignConfig
	httpClient *http.Client
}

// NewClient creates the e-signature provider client
func NewClient(cfg config.ESignConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// CreateEmbeddedRequest uploads the documents and creates an embedded
// signature request for the given signers.
func (c *Client) CreateEmbeddedRequest(ctx context.Context, docs []EnvelopeDocument, signers []Signer, metadata map[string]string) (*SignatureRequest, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	_ = w.WriteField("client_id", c.cfg.ClientID)
	if c.cfg.TestMode {
		_ = w.WriteField("test_mode", "1")
	}
	for i, s := range signers {
		prefix := fmt.Sprintf("signers[%d]", i)
		_ = w.WriteField(prefix+"[name]", s.Name)
		_ = w.WriteField(prefix+"[email_address]", s.Email)
		_ = w.WriteField(prefix+"[order]", strconv.Itoa(s.Order))
	}
	for k, v := range metadata {
		_ = w.WriteField("metadata["+k+"]", v)
	}
	for i, d := range docs {
		part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), d.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to build upload: %w", err)
		}
		if _, err := part.Write(d.Content); err != nil {
			return nil, fmt.Errorf("failed to write upload: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.APIURL+"/signature_request/create_embedded", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.SetBasicAuth(c.cfg.APIKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signing provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("signing provider returned %d: %s", resp.StatusCode, data)
	}

	var parsed struct {
		SignatureRequest struct {
			SignatureRequestID string `json:"signature_request_id"`
			Signatures         []struct {
				SignatureID string `json:"signature_id"`
			} `json:"signatures"`
		} `json:"signature_request"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}

	out := &SignatureRequest{RequestID: parsed.SignatureRequest.SignatureRequestID}
	if len(parsed.SignatureRequest.Signatures) > 0 {
		out.SignatureID = parsed.SignatureRequest.Signatures[0].SignatureID
	}
	if out.RequestID == "" {
		return nil, fmt.Errorf("signing provider returned no request id")
	}
	return out, nil
}

// GetEmbeddedSignURL fetches the embedded signing URL for a signature
func (c *Client) GetEmbeddedSignURL(ctx context.Context, signatureID string) (*SignURL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.APIURL+"/embedded/sign_url/"+signatureID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signing provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("signing provider returned %d: %s", resp.StatusCode, data)
	}

	var parsed struct {
		Embedded struct {
			SignURL   string `json:"sign_url"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"embedded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse sign_url response: %w", err)
	}

	return &SignURL{
		URL:       parsed.Embedded.SignURL,
		ExpiresAt: time.Unix(parsed.Embedded.ExpiresAt, 0),
	}, nil
}

// DownloadSignedDocument fetches the fully signed artifact
func (c *Client) DownloadSignedDocument(ctx context.Context, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.APIURL+"/signature_request/files/"+requestID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signing provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("signed document download returned %d: %s", resp.StatusCode, data)
	}

	return io.ReadAll(resp.Body)
}

// CancelRequest cancels an outstanding signature request
func (c *Client) CancelRequest(ctx context.Context, requestID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.APIURL+"/signature_request/cancel/"+requestID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.APIKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signing provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusGone {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("cancel returned %d: %s", resp.StatusCode, data)
	}
	return nil
}
