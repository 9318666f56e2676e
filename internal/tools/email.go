package tools

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

// EmailSendTool sends an email through the configured delivery API.
// Destructive: only agents with allow_destructive (and never tool-type
// agents) get past the dispatch gate.
type EmailSendTool struct {
	apiURL      string
	fromAddress string
	credentials CredentialSource
	client      *http.Client
}

func NewEmailSendTool(apiURL, fromAddress string, credentials CredentialSource) *EmailSendTool {
	return &EmailSendTool{
		apiURL:      apiURL,
		fromAddress: fromAddress,
		credentials: credentials,
		client:      &http.Client{Timeout: 20 * time.Second},
	}
}

func (t *EmailSendTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "send_email",
		Description: "Send an email to a recipient. Use only when the command explicitly asks for an email to be sent.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to":      map[string]any{"type": "string", "description": "Recipient email address."},
				"subject": map[string]any{"type": "string", "description": "Email subject line."},
				"body":    map[string]any{"type": "string", "description": "Plain-text email body."},
			},
			"required": []string{"to", "subject", "body"},
		},
		CapabilityName: "email",
		ActionName:     "email.send",
		IsActive:       true,
	}
}

func (t *EmailSendTool) Execute(ctx context.Context, agentID string, args map[string]any) (string, error) {
	to, err := stringArg(args, "to")
	if err != nil {
		return "", err
	}
	subject, err := stringArg(args, "subject")
	if err != nil {
		return "", err
	}
	body, err := stringArg(args, "body")
	if err != nil {
		return "", err
	}

	token, err := t.credentials.Get(ctx, "email", agentID)
	if err != nil {
		return "", fmt.Errorf("email credential unavailable: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"from":    t.fromAddress,
		"to":      to,
		"subject": subject,
		"text":    body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("email send failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("email provider returned status %d", resp.StatusCode)
	}

	return fmt.Sprintf("email sent to %s", to), nil
}
