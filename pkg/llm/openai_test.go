package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Load .env from repo root
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(path); err == nil {
			godotenv.Load(path)
			break
		}
	}
}

func TestNewOpenAIClient(t *testing.T) {
	t.Run("missing API key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")

		client, err := NewOpenAIClient(OpenAIConfig{})
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("environment fallback", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "env-key")

		client, err := NewOpenAIClient(OpenAIConfig{})
		require.NoError(t, err)
		assert.Equal(t, openAIDefaultModel, client.model)
		assert.Equal(t, "openai", client.Name())
	})

	t.Run("custom model", func(t *testing.T) {
		client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", Model: "gpt-4o"})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", client.model)
	})
}

// TestOpenAIClientComplete verifies the request mapping and the function
// call decode against a stub API server.
func TestOpenAIClientComplete(t *testing.T) {
	var (
		gotPath  string
		captured openai.ChatCompletionRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {
							"name": "extract_caller_name",
							"arguments": "{\"name\":\"Alex\",\"confident\":true}"
						}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &Request{
		System: "You are a receptionist.",
		Messages: []Message{
			{Role: RoleUser, Content: "Hi, my name is Alex"},
		},
		Functions: []Function{
			{
				Name:        "extract_caller_name",
				Description: "Extract the caller's name",
				Parameters: &Schema{
					Type: TypeObject,
					Properties: map[string]*Schema{
						"name":      {Type: TypeString},
						"confident": {Type: TypeBoolean},
					},
					Required: []string{"name", "confident"},
				},
			},
			{
				Name:        "extract_appointment_time",
				Description: "Extract the requested time",
				Parameters:  &Schema{Type: TypeObject},
			},
		},
		ForceFunction: "extract_caller_name",
		MaxTokens:     150,
		Temperature:   0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, openAIDefaultModel, captured.Model)
	assert.Equal(t, 150, captured.MaxTokens)
	assert.InDelta(t, 0.7, float64(captured.Temperature), 1e-6)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "You are a receptionist.", captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)

	require.Len(t, captured.Tools, 2)
	assert.Equal(t, "extract_caller_name", captured.Tools[0].Function.Name)
	assert.Equal(t, "extract_appointment_time", captured.Tools[1].Function.Name)

	choice, ok := captured.ToolChoice.(map[string]any)
	require.True(t, ok, "tool_choice should decode as an object")
	assert.Equal(t, "function", choice["type"])
	fn, ok := choice["function"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "extract_caller_name", fn["name"])

	require.NotNil(t, resp.FunctionCall)
	assert.Equal(t, "extract_caller_name", resp.FunctionCall.Name)
	assert.JSONEq(t, `{"name":"Alex","confident":true}`, resp.FunctionCall.Arguments)
	assert.Empty(t, resp.Text)
}

func TestOpenAIClientCompleteFreeText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-2",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "We are open until five today. \n"},
				"finish_reason": "stop"
			}]
		}`)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "When do you close?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "We are open until five today.", resp.Text)
	assert.Nil(t, resp.FunctionCall)
}

func TestOpenAIClientCompleteErrors(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id": "chatcmpl-3", "object": "chat.completion", "choices": []}`)
		}))
		defer server.Close()

		client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "Hello"}},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no choices")
	})

	t.Run("API failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": {"message": "rate limited", "type": "requests"}}`, http.StatusTooManyRequests)
		}))
		defer server.Close()

		client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.Complete(context.Background(), &Request{
			Messages: []Message{{Role: RoleUser, Content: "Hello"}},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "chat completion failed")
	})
}

// TestOpenAIClientIntegration exercises the real API (skipped if no key).
func TestOpenAIClientIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: apiKey})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Complete(ctx, &Request{
		System:   "Reply with exactly one word: 'OK'",
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
	t.Logf("Response: %s", resp.Text)
}
