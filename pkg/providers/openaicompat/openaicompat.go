// Package openaicompat is a chat-completions client for every backend that
// speaks the OpenAI wire format: Azure OpenAI deployments, Azure AI Foundry
// serverless endpoints, OpenAI-compatible gateways on GCP, and local servers
// such as Ollama or vLLM. The differences are confined to URL shape and the
// authentication header.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/auditflow/auditflow/pkg/providers"
)

const defaultAPIVersion = "2024-10-21"

// Config holds the connection settings for one chat-completions backend.
type Config struct {
	// Name is the provider identifier used in logs and typed errors.
	Name string

	// Endpoint is the base URL. For Azure deployments this is the resource
	// endpoint (https://{resource}.openai.azure.com); otherwise the server
	// root, with /v1/chat/completions appended unless the URL already ends
	// in /chat/completions.
	Endpoint string

	// Model is the model name, or the deployment ID for Azure.
	Model string

	// APIKey authenticates the calls. Azure-style endpoints send it in the
	// api-key header, everything else as a Bearer token. Empty is allowed
	// for local servers.
	APIKey string

	// AzureDeployment switches to deployment-based routing with the
	// api-version query parameter.
	AzureDeployment bool

	// APIVersion applies to Azure-style endpoints only.
	APIVersion string

	// Timeout bounds one HTTP round trip. Default 60s.
	Timeout time.Duration
}

// Client implements providers.LLMClient over the OpenAI chat-completions API.
type Client struct {
	cfg        Config
	apiURL     string
	httpClient *http.Client
}

// NewClient validates the config and builds the request URL once.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.Name == "" {
		cfg.Name = "openai-compat"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	base := strings.TrimRight(cfg.Endpoint, "/")
	var apiURL string
	if cfg.AzureDeployment {
		apiURL = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			base, url.PathEscape(cfg.Model), url.QueryEscape(cfg.APIVersion))
	} else if strings.HasSuffix(base, "/chat/completions") {
		apiURL = base
	} else {
		apiURL = base + "/v1/chat/completions"
	}

	return &Client{
		cfg:        cfg,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name implements providers.LLMClient.
func (c *Client) Name() string { return c.cfg.Name }

// Model implements providers.LLMClient.
func (c *Client) Model() string { return c.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Invoke implements providers.LLMClient.
func (c *Client) Invoke(ctx context.Context, req *providers.LLMRequest) (*providers.LLMResponse, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(&chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, c.cfg.Name, "marshaling request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, c.cfg.Name, "building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		if c.cfg.AzureDeployment {
			httpReq.Header.Set("api-key", c.cfg.APIKey)
		} else {
			httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(c.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewError(providers.KindUnavailable, c.cfg.Name, "reading response", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyStatus(c.cfg.Name, httpResp.StatusCode, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, providers.NewError(providers.KindUnavailable, c.cfg.Name, "unmarshaling response", err)
	}
	if resp.Error != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, c.cfg.Name,
			fmt.Sprintf("API error: %s (type: %s)", resp.Error.Message, resp.Error.Type), nil)
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewError(providers.KindUnavailable, c.cfg.Name, "response contained no choices", nil)
	}

	return &providers.LLMResponse{
		Text: resp.Choices[0].Message.Content,
		Usage: providers.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func classifyTransportError(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return providers.NewError(providers.KindTimeout, name, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return providers.NewError(providers.KindTimeout, name, "request cancelled", err)
	}
	return providers.NewError(providers.KindUnavailable, name, "HTTP request failed", err)
}

func classifyStatus(name string, status int, body []byte) error {
	msg := fmt.Sprintf("API error (status %d): %s", status, truncate(string(body), 512))
	switch {
	case status == http.StatusTooManyRequests:
		return providers.NewError(providers.KindRateLimited, name, msg, nil)
	case status == http.StatusRequestTimeout:
		return providers.NewError(providers.KindTimeout, name, msg, nil)
	case status >= 500:
		return providers.NewError(providers.KindUnavailable, name, msg, nil)
	default:
		return providers.NewError(providers.KindInvalidRequest, name, msg, nil)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
