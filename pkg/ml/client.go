package ml

import (
	"context"
	"time"

	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/pkg/httpclient"

	"github.com/sony/gobreaker/v2"
)

// Analysis is the ML service's view of a page.
type Analysis struct {
	Summary   string
	Category  string
	Tags      []string
	Entities  map[string]interface{}
	Embedding []float32
}

type analyzeRequest struct {
	Text string `json:"text"`
	Url  string `json:"url"`
}

type analyzeResponse struct {
	Summary   string      `json:"summary"`
	Category  string      `json:"category"`
	Entities  interface{} `json:"entities"`
	Keywords  []string    `json:"keywords"`
	Embedding []float64   `json:"embedding"`
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Client calls the ML analysis service.
type Client struct {
	http *httpclient.Client
}

func NewClient(baseURL string, timeout time.Duration, log logger.ILogger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	return &Client{
		http: httpclient.New("ml-service", baseURL, timeout, httpclient.DefaultBreakerConfig(),
			func(name string, from, to gobreaker.State) {
				log.Warn("MLClient", "Circuit breaker state changed", map[string]interface{}{
					"service": name,
					"from":    from.String(),
					"to":      to.String(),
				})
			}),
	}
}

func (c *Client) Analyze(ctx context.Context, text, url string) (*Analysis, error) {
	var resp analyzeResponse
	if err := c.http.PostJSON(ctx, "/api/analyze", analyzeRequest{Text: text, Url: url}, &resp); err != nil {
		return nil, err
	}

	return &Analysis{
		Summary:   resp.Summary,
		Category:  resp.Category,
		Tags:      resp.Keywords,
		Entities:  normalizeEntities(resp.Entities),
		Embedding: toFloat32(resp.Embedding),
	}, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp embedResponse
	if err := c.http.PostJSON(ctx, "/api/embed", embedRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return toFloat32(resp.Embedding), nil
}

func (c *Client) State() gobreaker.State {
	return c.http.State()
}

// normalizeEntities keeps object responses as-is and wraps list responses
// under "items" so the column always holds an object.
func normalizeEntities(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return v
	default:
		return map[string]interface{}{"items": v}
	}
}

func toFloat32(values []float64) []float32 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
