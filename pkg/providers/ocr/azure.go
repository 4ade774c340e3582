package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auditflow/auditflow/pkg/providers"
)

// AzureClient uses the Computer Vision Read API. Analysis is asynchronous:
// submit returns an Operation-Location which is polled until the result is
// ready.
type AzureClient struct {
	endpoint     string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewAzureClient creates a Read API client for the given resource endpoint.
func NewAzureClient(endpoint, apiKey string) (*AzureClient, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	return &AzureClient{
		endpoint:     strings.TrimRight(endpoint, "/"),
		apiKey:       apiKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		pollInterval: time.Second,
	}, nil
}

// Name implements providers.OCRClient.
func (c *AzureClient) Name() string { return "azure-read" }

type azureReadResult struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		ReadResults []struct {
			Page   int     `json:"page"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
			Lines  []struct {
				BoundingBox []float64 `json:"boundingBox"`
				Text        string    `json:"text"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
}

// Extract implements providers.OCRClient.
func (c *AzureClient) Extract(ctx context.Context, content []byte, mimeType, language string) (*providers.Extraction, error) {
	opLocation, err := c.submit(ctx, content, language)
	if err != nil {
		return nil, err
	}
	result, err := c.poll(ctx, opLocation)
	if err != nil {
		return nil, err
	}
	return convertAzureResult(result), nil
}

func (c *AzureClient) submit(ctx context.Context, content []byte, language string) (string, error) {
	analyzeURL := c.endpoint + "/vision/v3.2/read/analyze"
	if language != "" {
		analyzeURL += "?language=" + url.QueryEscape(language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, analyzeURL, bytes.NewReader(content))
	if err != nil {
		return "", providers.NewError(providers.KindInvalidRequest, "azure-read", "building request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyOCRTransport("azure-read", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classifyOCRStatus("azure-read", resp.StatusCode, string(body))
	}

	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		return "", providers.NewError(providers.KindUnavailable, "azure-read", "missing Operation-Location header", nil)
	}
	return opLocation, nil
}

func (c *AzureClient) poll(ctx context.Context, opLocation string) (*azureReadResult, error) {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opLocation, nil)
		if err != nil {
			return nil, providers.NewError(providers.KindInvalidRequest, "azure-read", "building poll request", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, classifyOCRTransport("azure-read", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, providers.NewError(providers.KindUnavailable, "azure-read", "reading poll response", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, classifyOCRStatus("azure-read", resp.StatusCode, string(body))
		}

		var result azureReadResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, providers.NewError(providers.KindUnavailable, "azure-read", "unmarshaling poll response", err)
		}

		switch result.Status {
		case "succeeded":
			return &result, nil
		case "failed":
			return nil, providers.NewError(providers.KindInvalidRequest, "azure-read", "analysis failed", nil)
		}

		select {
		case <-time.After(c.pollInterval):
		case <-ctx.Done():
			return nil, providers.NewError(providers.KindTimeout, "azure-read", "polling timed out", ctx.Err())
		}
	}
}

// convertAzureResult normalizes line boxes by the reported page dimensions.
// The bounding box is 8 values, corner by corner, clockwise from top-left.
func convertAzureResult(result *azureReadResult) *providers.Extraction {
	var text strings.Builder
	out := &providers.Extraction{}

	for _, page := range result.AnalyzeResult.ReadResults {
		for _, line := range page.Lines {
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(line.Text)

			if len(line.BoundingBox) != 8 || page.Width <= 0 || page.Height <= 0 {
				continue
			}
			minX, maxX := line.BoundingBox[0], line.BoundingBox[0]
			minY, maxY := line.BoundingBox[1], line.BoundingBox[1]
			for i := 2; i < 8; i += 2 {
				minX = minFloat(minX, line.BoundingBox[i])
				maxX = maxFloat(maxX, line.BoundingBox[i])
				minY = minFloat(minY, line.BoundingBox[i+1])
				maxY = maxFloat(maxY, line.BoundingBox[i+1])
			}
			out.Blocks = append(out.Blocks, providers.Block{
				Text:   line.Text,
				Page:   page.Page,
				X:      minX / page.Width,
				Y:      minY / page.Height,
				Width:  (maxX - minX) / page.Width,
				Height: (maxY - minY) / page.Height,
			})
		}
	}
	out.Text = text.String()
	return out
}

func classifyOCRTransport(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return providers.NewError(providers.KindTimeout, name, "request timed out", err)
	}
	return providers.NewError(providers.KindUnavailable, name, "HTTP request failed", err)
}

func classifyOCRStatus(name string, status int, body string) error {
	msg := fmt.Sprintf("API error (status %d): %s", status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return providers.NewError(providers.KindRateLimited, name, msg, nil)
	case status >= 500:
		return providers.NewError(providers.KindUnavailable, name, msg, nil)
	default:
		return providers.NewError(providers.KindInvalidRequest, name, msg, nil)
	}
}
