package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mejohncorg/internal/models"
)

// ModelBackend is the single seam between the conversation loop and the
// model provider. One call, one response; retries are the caller's decision.
type ModelBackend interface {
	CallModel(ctx context.Context, messages []models.ChatMessage, tools []models.ToolSchema) (*models.ModelResponse, error)
}

// ProviderService calls an OpenAI-compatible chat-completions endpoint.
type ProviderService struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewProviderService(baseURL, apiKey, model string) *ProviderService {
	return &ProviderService{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// CallModel makes a single chat-completions request. A provider failure is
// returned as an error and aborts the command; there is no retry here.
func (s *ProviderService) CallModel(ctx context.Context, messages []models.ChatMessage, toolSchemas []models.ToolSchema) (*models.ModelResponse, error) {
	reqBody := map[string]interface{}{
		"model":    s.model,
		"messages": messages,
		"stream":   false,
	}
	if len(toolSchemas) > 0 {
		providerTools := make([]map[string]any, 0, len(toolSchemas))
		for _, t := range toolSchemas {
			providerTools = append(providerTools, t.ToOpenAITool())
		}
		reqBody["tools"] = providerTools
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := s.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResult struct {
		Choices []struct {
			Message struct {
				Content   string            `json:"content"`
				ToolCalls []models.ToolCall `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, fmt.Errorf("failed to decode model response: %w", err)
	}
	if len(apiResult.Choices) == 0 {
		return nil, fmt.Errorf("no choices in model response")
	}

	choice := apiResult.Choices[0]
	result := &models.ModelResponse{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
	}
	if apiResult.Usage != nil {
		result.InputTokens = apiResult.Usage.PromptTokens
		result.OutputTokens = apiResult.Usage.CompletionTokens
	}
	return result, nil
}
