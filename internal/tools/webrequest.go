package tools

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mejohncorg/internal/models"
)

const webRequestMaxBody = 256 * 1024

// WebRequestTool performs GET requests against public HTTP(S) endpoints.
// Requests to private address space are refused before dialing.
type WebRequestTool struct {
	client *http.Client
}

func NewWebRequestTool() *WebRequestTool {
	return &WebRequestTool{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				// Redirects get the same private-address screening as the
				// original URL.
				if err := refusePrivateHost(req.URL); err != nil {
					return err
				}
				return nil
			},
		},
	}
}

func (t *WebRequestTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "web_request",
		Description: "Fetch the contents of a public HTTP or HTTPS URL via GET.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "Absolute http(s) URL to fetch.",
				},
			},
			"required": []string{"url"},
		},
		CapabilityName: "web",
		ActionName:     "web.fetch",
		IsActive:       true,
	}
}

func (t *WebRequestTool) Execute(ctx context.Context, agentID string, args map[string]any) (string, error) {
	rawURL, err := stringArg(args, "url")
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("url must be absolute http(s): %s", rawURL)
	}
	if err := refusePrivateHost(parsed); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "mejohncorg-agent/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, webRequestMaxBody))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	return fmt.Sprintf("HTTP %d\n%s", resp.StatusCode, string(body)), nil
}

// refusePrivateHost rejects URLs whose host is loopback, link-local, or
// RFC 1918 space. Hostname lookups are resolved so DNS cannot smuggle a
// private target past a name check.
func refusePrivateHost(u *url.URL) error {
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("refusing request to private address: %s", host)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("refusing request to private address: %s", host)
		}
	}
	return nil
}
