package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/genclient/internal/credential"
	"github.com/kitbuilder587/genclient/internal/transport"
)

func newTestRequest() transport.Request {
	return transport.Request{
		Model:      "models/gemini-2.5-flash",
		Credential: credential.New("test", "test-secret-key-0001"),
		Prompt:     "prompt",
		Options:    transport.Options{System: "system"},
	}
}

func TestClient_Send(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name        string
		statusCode  int
		response    any
		headers     map[string]string
		wantStatus  int
		wantPayload string
		wantInMsg   string
	}{
		{
			name:       "successful completion",
			statusCode: http.StatusOK,
			response: map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": "Test response"}},
				},
			},
			wantStatus:  http.StatusOK,
			wantPayload: "Test response",
		},
		{
			name:       "rate limit with retry-after header",
			statusCode: http.StatusTooManyRequests,
			response: map[string]any{
				"error": map[string]any{"message": "Rate limit exceeded"},
			},
			headers:    map[string]string{"Retry-After": "30"},
			wantStatus: http.StatusTooManyRequests,
			wantInMsg:  "Rate limit exceeded (retry after 30s)",
		},
		{
			name:       "unauthorized",
			statusCode: http.StatusUnauthorized,
			response: map[string]any{
				"error": map[string]any{"message": "Invalid API key"},
			},
			wantStatus: http.StatusUnauthorized,
			wantInMsg:  "Invalid API key",
		},
		{
			name:       "empty choices",
			statusCode: http.StatusOK,
			response:   map[string]any{"choices": []any{}},
			wantStatus: http.StatusBadGateway,
			wantInMsg:  "empty response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer test-secret-key-0001" {
					t.Error("missing or wrong authorization header")
				}

				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.statusCode)
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, logger)

			resp, err := client.Send(context.Background(), newTestRequest())
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}

			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", resp.Status, tt.wantStatus)
			}
			if tt.wantPayload != "" && resp.Payload != tt.wantPayload {
				t.Errorf("Payload = %q, want %q", resp.Payload, tt.wantPayload)
			}
			if tt.wantInMsg != "" && !strings.Contains(resp.Message, tt.wantInMsg) {
				t.Errorf("Message = %q, want it to contain %q", resp.Message, tt.wantInMsg)
			}
		})
	}
}

func TestClient_SendNetworkError(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zap.NewNop())

	if _, err := client.Send(context.Background(), newTestRequest()); err == nil {
		t.Error("Send() error = nil, want a transport error for a dead endpoint")
	}
}
