// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// =============================================================================
// Embeddings Wire Types
// =============================================================================

const defaultOpenAIEmbeddingsURL = "https://api.openai.com/v1/embeddings"

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Object string            `json:"object"`
	Data   []embeddingsDatum `json:"data"`
	Error  *openaiError      `json:"error,omitempty"`
}

type embeddingsDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// EmbeddingsClient talks to an OpenAI-compatible embeddings endpoint
// using raw net/http.
//
// Thread Safety: EmbeddingsClient is safe for concurrent use.
type EmbeddingsClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewEmbeddingsClientWithConfig creates an EmbeddingsClient with explicit
// configuration.
//
// Inputs:
//   - apiKey: The API key. Local servers often accept any non-empty value.
//   - model: The embedding model name.
//   - baseURL: The embeddings URL. Empty selects the OpenAI default.
//
// Outputs:
//   - *EmbeddingsClient: The configured client.
func NewEmbeddingsClientWithConfig(apiKey, model, baseURL string) *EmbeddingsClient {
	if baseURL == "" {
		baseURL = defaultOpenAIEmbeddingsURL
	}
	return &EmbeddingsClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// NewEmbeddingsClient creates a new EmbeddingsClient from environment
// variables.
//
// Description:
//
//	Reads OPENAI_API_KEY, EMBEDDING_MODEL, and EMBEDDING_BASE_URL from the
//	environment. Defaults to "text-embedding-3-small" if EMBEDDING_MODEL is
//	not set.
//
// Outputs:
//   - *EmbeddingsClient: The configured client.
//   - error: Non-nil if OPENAI_API_KEY is missing.
func NewEmbeddingsClient() (*EmbeddingsClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Warn("OpenAI API Key is empty. Embeddings client will not function.")
		return nil, fmt.Errorf("openai: API key is missing (OPENAI_API_KEY)")
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "text-embedding-3-small"
		slog.Warn("EMBEDDING_MODEL not set, defaulting to text-embedding-3-small")
	}
	baseURL := os.Getenv("EMBEDDING_BASE_URL")
	if baseURL == "" {
		baseURL = defaultOpenAIEmbeddingsURL
	}
	slog.Info("Initializing embeddings client", "model", model)
	return &EmbeddingsClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}, nil
}

// Model returns the embedding model name requests are sent with.
func (e *EmbeddingsClient) Model() string {
	return e.model
}

// Embed returns one embedding vector per input string, in input order.
//
// Description:
//
//	Sends a single embeddings request for the whole input slice. The
//	response data carries an index per vector; vectors are placed by that
//	index so out-of-order responses still map back to their inputs.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - inputs: Texts to embed. Must be non-empty.
//
// Outputs:
//   - [][]float32: len(inputs) vectors, aligned with inputs.
//   - error: *RateLimitError on HTTP 429, *APIStatusError on any other
//     non-200 status, or a wrapped transport/decoding error.
//
// Thread Safety: This method is safe for concurrent use.
func (e *EmbeddingsClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("openai: embeddings request needs at least one input")
	}

	slog.Debug("Embedding via OpenAI", slog.String("model", e.model), slog.Int("inputs", len(inputs)))

	reqBody, err := json.Marshal(embeddingsRequest{Model: e.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("openai: marshaling embeddings request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("openai: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), string(bodyBytes)),
			Message:    SafeLogString(string(bodyBytes)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIStatusError{StatusCode: resp.StatusCode, Body: SafeLogString(string(bodyBytes))}
	}

	var apiResp embeddingsResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("openai: parsing embeddings response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("openai: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}
	if len(apiResp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai: embeddings returned %d vectors for %d inputs", len(apiResp.Data), len(inputs))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai: embeddings returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("openai: embeddings response missing vector for input %d", i)
		}
	}
	return vectors, nil
}
