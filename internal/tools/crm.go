package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"mejohncorg/internal/models"
)

// CRMLookupTool searches contacts in the connected CRM. The CRM API token is
// resolved per agent through the credential source at call time; tokens are
// never embedded in tool configuration.
type CRMLookupTool struct {
	baseURL     string
	credentials CredentialSource
	client      *http.Client
}

func NewCRMLookupTool(baseURL string, credentials CredentialSource) *CRMLookupTool {
	return &CRMLookupTool{
		baseURL:     baseURL,
		credentials: credentials,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *CRMLookupTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "crm_lookup",
		Description: "Look up a contact in the CRM by name or email address.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Contact name or email to search for.",
				},
			},
			"required": []string{"query"},
		},
		CapabilityName: "crm",
		ActionName:     "crm.read",
		IsActive:       true,
	}
}

func (t *CRMLookupTool) Execute(ctx context.Context, agentID string, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}

	token, err := t.credentials.Get(ctx, "crm", agentID)
	if err != nil {
		return "", fmt.Errorf("crm credential unavailable: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/contacts/search?q=%s", t.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("crm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read crm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("crm returned status %d", resp.StatusCode)
	}

	return string(body), nil
}
