package standardizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/casaflow-io/casaflowgo/internal/extraction"
)

// standardizerStub fakes the service: schema list, upload, a configurable
// number of "processing" polls, then result fetch.
type standardizerStub struct {
	pollsBeforeDone int32
	polls           int32
	schemaCalls     int32
	uploads         int32
	result          string
	jobStatus       string
}

func (s *standardizerStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/schemas", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.schemaCalls, 1)
		if r.Header.Get("X-API-Key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]map[string]string{
			{"schemaId": "schema-123", "name": "orea-form-100"},
			{"schemaId": "schema-456", "name": "other"},
		})
	})

	mux.HandleFunc("/documents", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.uploads, 1)
		json.NewEncoder(w).Encode(map[string]string{"documentId": "doc-1"})
	})

	mux.HandleFunc("/documents/doc-1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&s.polls, 1)
		status := s.jobStatus
		if status == "" {
			status = "completed"
		}
		if n <= s.pollsBeforeDone {
			status = "processing"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	mux.HandleFunc("/standardizations", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("documentId") != "doc-1" || r.URL.Query().Get("schemaId") != "schema-123" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"data":%s}`, s.result)
	})

	return mux
}

func TestExtractHappyPath(t *testing.T) {
	stub := &standardizerStub{result: `{"parties":{"buyer1":"Jane Roe"},"financial":{"purchasePrice":750000}}`}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := NewClient(server.URL, "test-key", "orea-form-100")
	result, err := client.Extract(context.Background(), []byte("pdf"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if result.Parties.Buyer1 != "Jane Roe" {
		t.Errorf("Buyer1 = %q", result.Parties.Buyer1)
	}
	if result.StrategyUsed != extraction.StrategyVision {
		t.Errorf("Strategy = %s", result.StrategyUsed)
	}
	want := 2.0 / float64(result.LeafCount())
	if result.DocConfidence != want {
		t.Errorf("Confidence = %f, want %f", result.DocConfidence, want)
	}
}

func TestExtractCachesSchemaID(t *testing.T) {
	stub := &standardizerStub{result: `{"parties":{"buyer1":"Jane Roe"}}`}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := NewClient(server.URL, "test-key", "orea-form-100")
	for i := 0; i < 3; i++ {
		if _, err := client.Extract(context.Background(), []byte("pdf")); err != nil {
			t.Fatalf("Extract %d failed: %v", i, err)
		}
	}

	if n := atomic.LoadInt32(&stub.schemaCalls); n != 1 {
		t.Errorf("Schema should be resolved once per process, got %d lookups", n)
	}
}

func TestExtractPollsUntilCompleted(t *testing.T) {
	stub := &standardizerStub{pollsBeforeDone: 2, result: `{"parties":{"buyer1":"Jane Roe"}}`}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := NewClient(server.URL, "test-key", "orea-form-100")
	if _, err := client.Extract(context.Background(), []byte("pdf")); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if n := atomic.LoadInt32(&stub.polls); n != 3 {
		t.Errorf("Expected 3 status polls, got %d", n)
	}
}

func TestExtractFailedJob(t *testing.T) {
	stub := &standardizerStub{jobStatus: "failed"}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := NewClient(server.URL, "test-key", "orea-form-100")
	_, err := client.Extract(context.Background(), []byte("pdf"))

	var external *extraction.ExternalServiceError
	if !errors.As(err, &external) {
		t.Fatalf("Expected ExternalServiceError for a failed job, got %v", err)
	}
}

func TestExtractUnknownSchema(t *testing.T) {
	stub := &standardizerStub{}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	client := NewClient(server.URL, "test-key", "no-such-schema")
	if _, err := client.Extract(context.Background(), []byte("pdf")); err == nil {
		t.Fatal("Unknown schema name should fail extraction")
	}
}

func TestExtractHonorsContextCancellation(t *testing.T) {
	stub := &standardizerStub{pollsBeforeDone: 100}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(server.URL, "test-key", "orea-form-100")

	done := make(chan error, 1)
	go func() {
		_, err := client.Extract(ctx, []byte("pdf"))
		done <- err
	}()
	cancel()

	if err := <-done; err == nil {
		t.Fatal("Cancelled context should abort extraction")
	}
}
