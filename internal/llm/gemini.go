package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// Request is one model call. Image is optional.
type Request struct {
	Prompt   string
	Image    []byte
	MIMEType string
	JSON     bool
}

// Model generates text for a request
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeminiClient calls Gemini through the official SDK, throttled by a token
// bucket.
type GeminiClient struct {
	client  *genai.Client
	config  *Config
	limiter *rate.Limiter
	log     logger.Logger
}

// NewGeminiClient creates the SDK client. Call Close when done.
func NewGeminiClient(ctx context.Context, config *Config, log logger.Logger) (*GeminiClient, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "llm", config.Model, err)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, "gemini", err)
	}

	return &GeminiClient{
		client:  client,
		config:  config,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
		log:     logger.OrGlobal(log, "gemini"),
	}, nil
}

// Close releases the SDK client
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Generate implements Model
func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", errors.NetworkError(errors.CodeTimeout, "gemini rate limiter", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.config.Model)
	model.SetTemperature(g.config.Temperature)
	if g.config.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(g.config.MaxOutputTokens)
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.Blob{MIMEType: req.MIMEType, Data: req.Image})
	}

	start := time.Now()
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.NetworkError(errors.CodeTimeout, "gemini", err)
		}
		return "", errors.NetworkError(errors.CodeServiceUnavailable, "gemini", err)
	}

	text := responseText(resp)
	g.log.WithFields(logger.Fields{
		"model":      g.config.Model,
		"image_size": len(req.Image),
		"chars":      len(text),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("Gemini response")

	if text == "" {
		return "", errors.ExtractionError(errors.CodeInvalidResponse, "gemini", fmt.Errorf("empty response"))
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return strings.TrimSpace(sb.String())
}
