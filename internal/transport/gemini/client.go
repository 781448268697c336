package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kitbuilder587/genclient/internal/credential"
	"github.com/kitbuilder587/genclient/internal/transport"
)

// Client adapts the Gemini SDK to the transport boundary. SDK errors come
// back as (status, message) responses so the classifier decides policy; the
// transport itself never retries.
//
// One genai.Client is held per credential, created lazily: credential
// rotation mid-flight just switches which cached client serves the next
// request.
type Client struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

var _ transport.Transport = (*Client)(nil)

func New(logger *zap.Logger) *Client {
	return &Client{
		logger:  logger,
		clients: make(map[string]*genai.Client),
	}
}

func (c *Client) Send(ctx context.Context, req transport.Request) (*transport.Response, error) {
	gc, err := c.clientFor(ctx, req.Credential)
	if err != nil {
		return nil, fmt.Errorf("gemini client for %s: %w", req.Credential.Masked(), err)
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.Options.Temperature > 0 {
		temp := float32(req.Options.Temperature)
		cfg.Temperature = &temp
	}
	if req.Options.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Options.System}},
		}
	}

	resp, err := gc.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			// 429 у Gemini приходит с RESOURCE_EXHAUSTED и retryDelay
			// прямо в тексте - классификатор парсит оттуда
			return &transport.Response{Status: apiErr.Code, Message: err.Error()}, nil
		}
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	var text string
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
	}
	if text == "" {
		return &transport.Response{
			Status:  http.StatusBadGateway,
			Message: "empty response from model " + req.Model,
		}, nil
	}

	return &transport.Response{Status: http.StatusOK, Payload: text}, nil
}

func (c *Client) clientFor(ctx context.Context, cred credential.Credential) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gc, ok := c.clients[cred.Label()]; ok {
		return gc, nil
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cred.Secret(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("gemini client initialized", zap.String("credential", cred.Masked()))
	c.clients[cred.Label()] = gc
	return gc, nil
}
