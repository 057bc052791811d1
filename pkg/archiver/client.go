package archiver

import (
	"context"
	"time"

	"tabkeeper-be/internal/pkg/logger"
	"tabkeeper-be/pkg/httpclient"

	"github.com/sony/gobreaker/v2"
)

// Result lists where the archival service stored the page snapshot.
type Result struct {
	HtmlPath       string `json:"htmlPath"`
	ScreenshotPath string `json:"screenshotPath"`
	PdfPath        string `json:"pdfPath"`
}

type archiveRequest struct {
	Url string `json:"url"`
}

// Client calls the headless-browser archival service.
type Client struct {
	http *httpclient.Client
}

func NewClient(baseURL string, timeout time.Duration, log logger.ILogger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:5100"
	}

	return &Client{
		http: httpclient.New("archiver", baseURL, timeout, httpclient.DefaultBreakerConfig(),
			func(name string, from, to gobreaker.State) {
				log.Warn("ArchiverClient", "Circuit breaker state changed", map[string]interface{}{
					"service": name,
					"from":    from.String(),
					"to":      to.String(),
				})
			}),
	}
}

func (c *Client) Archive(ctx context.Context, url string) (*Result, error) {
	var result Result
	if err := c.http.PostJSON(ctx, "/api/archive", archiveRequest{Url: url}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) State() gobreaker.State {
	return c.http.State()
}
