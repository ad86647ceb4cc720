package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// OllamaClient calls the Ollama embeddings endpoint
type OllamaClient struct {
	baseURL string
	model   string
	http    *http.Client
	log     logger.Logger
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaClient creates a client from config
func NewOllamaClient(config *Config, log logger.Logger) *OllamaClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		model:   config.Model,
		http:    &http.Client{Timeout: timeout},
		log:     logger.OrGlobal(log, "ollama"),
	}
}

// Model returns the embedding model name
func (c *OllamaClient) Model() string {
	return c.model
}

// Embed implements Embedder
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	endpoint := c.baseURL + "/api/embeddings"

	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}

	c.log.WithFields(logger.Fields{
		"status":     resp.StatusCode,
		"bytes":      len(raw),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("Embedding response")

	if resp.StatusCode/100 != 2 {
		return nil, errors.NetworkError(errors.CodeServiceUnavailable, endpoint,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	var out embedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.ExtractionError(errors.CodeInvalidResponse, endpoint, err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.ExtractionError(errors.CodeInvalidResponse, endpoint, fmt.Errorf("empty embedding"))
	}
	return out.Embedding, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
