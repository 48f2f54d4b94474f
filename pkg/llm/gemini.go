package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiConfig holds configuration for the Gemini chat client.
type GeminiConfig struct {
	// APIKey authenticates with the Gemini API. Falls back to the
	// GOOGLE_API_KEY environment variable when empty.
	APIKey string

	// Model is the generation model. Defaults to gemini-2.0-flash.
	Model string
}

// GeminiClient implements Client using the Gemini generate-content API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed completion client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGoogleAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
	}, nil
}

// Name returns the backend name.
func (c *GeminiClient) Name() string {
	return "gemini"
}

// Complete performs one generate-content call. Sampling parameters stay
// at service defaults.
func (c *GeminiClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if len(req.Functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Functions))
		for _, fn := range req.Functions {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters.asGenAI(),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if req.ForceFunction != "" {
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{req.ForceFunction},
			},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, geminiContents(req.Messages), config)
	if err != nil {
		return nil, fmt.Errorf("content generation failed: %w", err)
	}
	return decodeGeminiResponse(resp)
}

// geminiContents converts the neutral history to Gemini content turns.
// Gemini names the assistant role "model".
func geminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

func decodeGeminiResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("content generation returned no candidates")
	}

	out := &Response{}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil && out.FunctionCall == nil {
				args := []byte("{}")
				if len(part.FunctionCall.Args) > 0 {
					var err error
					args, err = json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, fmt.Errorf("failed to encode function call arguments: %w", err)
					}
				}
				out.FunctionCall = &FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				}
			}
		}
	}
	out.Text = strings.TrimSpace(text.String())
	return out, nil
}

var _ Client = (*GeminiClient)(nil)
