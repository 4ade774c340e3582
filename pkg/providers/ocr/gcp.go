package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auditflow/auditflow/pkg/providers"
)

const gcpVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// GCPClient uses the Cloud Vision images:annotate endpoint with
// DOCUMENT_TEXT_DETECTION. Block boxes come in pixel vertices and are
// normalized against the reported page dimensions.
type GCPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewGCPClient creates a Vision client. An empty endpoint uses the public
// API; tests point it at a local server.
func NewGCPClient(endpoint, apiKey string) (*GCPClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	if endpoint == "" {
		endpoint = gcpVisionEndpoint
	}
	return &GCPClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Name implements providers.OCRClient.
func (c *GCPClient) Name() string { return "gcp-vision" }

type gcpVertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type gcpAnnotateResponse struct {
	Responses []struct {
		FullTextAnnotation struct {
			Text  string `json:"text"`
			Pages []struct {
				Width  float64 `json:"width"`
				Height float64 `json:"height"`
				Blocks []struct {
					BoundingBox struct {
						Vertices []gcpVertex `json:"vertices"`
					} `json:"boundingBox"`
					Confidence float64 `json:"confidence"`
					Paragraphs []struct {
						Words []struct {
							Symbols []struct {
								Text string `json:"text"`
							} `json:"symbols"`
						} `json:"words"`
					} `json:"paragraphs"`
				} `json:"blocks"`
			} `json:"pages"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Extract implements providers.OCRClient.
func (c *GCPClient) Extract(ctx context.Context, content []byte, mimeType, language string) (*providers.Extraction, error) {
	reqBody := map[string]any{
		"requests": []map[string]any{{
			"image":    map[string]string{"content": base64.StdEncoding.EncodeToString(content)},
			"features": []map[string]any{{"type": "DOCUMENT_TEXT_DETECTION"}},
		}},
	}
	if language != "" {
		reqBody["requests"].([]map[string]any)[0]["imageContext"] = map[string]any{
			"languageHints": []string{language},
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, "gcp-vision", "marshaling request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"?key="+url.QueryEscape(c.apiKey), bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, "gcp-vision", "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyOCRTransport("gcp-vision", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.NewError(providers.KindUnavailable, "gcp-vision", "reading response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyOCRStatus("gcp-vision", resp.StatusCode, string(respBody[:min(len(respBody), 512)]))
	}

	var annotate gcpAnnotateResponse
	if err := json.Unmarshal(respBody, &annotate); err != nil {
		return nil, providers.NewError(providers.KindUnavailable, "gcp-vision", "unmarshaling response", err)
	}
	if len(annotate.Responses) == 0 {
		return &providers.Extraction{}, nil
	}
	r := annotate.Responses[0]
	if r.Error != nil {
		return nil, providers.NewError(providers.KindInvalidRequest, "gcp-vision", r.Error.Message, nil)
	}

	out := &providers.Extraction{Text: strings.TrimRight(r.FullTextAnnotation.Text, "\n")}
	for pageIdx, page := range r.FullTextAnnotation.Pages {
		for _, block := range page.Blocks {
			var blockText strings.Builder
			for _, para := range block.Paragraphs {
				for _, word := range para.Words {
					if blockText.Len() > 0 {
						blockText.WriteByte(' ')
					}
					for _, sym := range word.Symbols {
						blockText.WriteString(sym.Text)
					}
				}
			}
			if blockText.Len() == 0 || page.Width <= 0 || page.Height <= 0 {
				continue
			}
			verts := block.BoundingBox.Vertices
			if len(verts) == 0 {
				continue
			}
			minX, maxX := verts[0].X, verts[0].X
			minY, maxY := verts[0].Y, verts[0].Y
			for _, v := range verts[1:] {
				minX = minFloat(minX, v.X)
				maxX = maxFloat(maxX, v.X)
				minY = minFloat(minY, v.Y)
				maxY = maxFloat(maxY, v.Y)
			}
			out.Blocks = append(out.Blocks, providers.Block{
				Text:       blockText.String(),
				Page:       pageIdx + 1,
				X:          minX / page.Width,
				Y:          minY / page.Height,
				Width:      (maxX - minX) / page.Width,
				Height:     (maxY - minY) / page.Height,
				Confidence: block.Confidence,
			})
		}
	}
	return out, nil
}
