package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/genclient/internal/transport"
)

// Client speaks the OpenAI-style /chat/completions dialect that openrouter
// and most self-hosted gateways expose. It fills the same transport slot as
// the gemini adapter for teams pointing the client at a proxy.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ transport.Transport = (*Client)(nil)

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func (c *Client) Send(ctx context.Context, req transport.Request) (*transport.Response, error) {
	payload := chatRequest{
		Model:       req.Model,
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	}
	if req.Options.System != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.Options.System})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Credential.Secret())

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("gateway request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", req.Model),
		)
		return &transport.Response{
			Status:  resp.StatusCode,
			Message: errorMessage(resp, respBody),
		}, nil
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return &transport.Response{Status: resp.StatusCode, Message: chatResp.Error.Message}, nil
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return &transport.Response{
			Status:  http.StatusBadGateway,
			Message: "empty response from model " + req.Model,
		}, nil
	}

	return &transport.Response{Status: http.StatusOK, Payload: chatResp.Choices[0].Message.Content}, nil
}

// errorMessage folds the Retry-After header into the message text so the
// classifier sees one string regardless of transport.
func errorMessage(resp *http.Response, body []byte) string {
	msg := strings.TrimSpace(string(body))

	var parsed struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(ra), 64); err == nil && secs > 0 {
			msg = fmt.Sprintf("%s (retry after %gs)", msg, secs)
		}
	}
	return msg
}
