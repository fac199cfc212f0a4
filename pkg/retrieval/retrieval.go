// Package retrieval looks up knowledge-base context for the agent's
// search_knowledge_base tool.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Enricher returns knowledge fragments relevant to a query.
type Enricher interface {
	Enrich(ctx context.Context, query string) ([]string, error)
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(ctx context.Context, query string) ([]string, error)

func (f EnricherFunc) Enrich(ctx context.Context, query string) ([]string, error) {
	return f(ctx, query)
}

// HTTPEnricher queries a RAG service over HTTP.
type HTTPEnricher struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewHTTPEnricher(baseURL, apiKey string) *HTTPEnricher {
	return newHTTPEnricher(baseURL, apiKey, nil)
}

func newHTTPEnricher(baseURL, apiKey string, client *http.Client) *HTTPEnricher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPEnricher{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type enrichRequest struct {
	Query string `json:"query"`
}

type enrichResponse struct {
	Results []string `json:"results"`
}

func (e *HTTPEnricher) Enrich(ctx context.Context, query string) ([]string, error) {
	body, err := json.Marshal(enrichRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("encode enrich request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/enrich", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create enrich request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrich request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("enrich request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode enrich response: %w", err)
	}
	return decoded.Results, nil
}
