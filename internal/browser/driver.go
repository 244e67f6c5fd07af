package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is a loaded page.
type Page struct {
	URL   string
	Title string
}

// Driver loads pages and captures screenshots.
type Driver interface {
	Open(ctx context.Context, target string) (Page, error)
	Screenshot(ctx context.Context, target string) (string, error)
}

// EndpointFunc returns the base URL of a browserless-compatible service.
type EndpointFunc func(ctx context.Context) (string, error)

// StaticEndpoint returns an EndpointFunc for a fixed URL.
func StaticEndpoint(endpoint string) EndpointFunc {
	return func(context.Context) (string, error) { return endpoint, nil }
}

// HTTPDriver talks to the /content and /screenshot endpoints of a
// browserless-compatible service.
type HTTPDriver struct {
	endpoint EndpointFunc
	token    string
	client   *http.Client
}

// NewHTTPDriver creates a driver. token may be empty.
func NewHTTPDriver(endpoint EndpointFunc, token string) *HTTPDriver {
	return &HTTPDriver{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type contentRequest struct {
	URL         string         `json:"url"`
	GotoOptions map[string]any `json:"gotoOptions,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// Open implements Driver.
func (d *HTTPDriver) Open(ctx context.Context, target string) (Page, error) {
	body, err := d.post(ctx, "/content", contentRequest{
		URL:         target,
		GotoOptions: map[string]any{"waitUntil": "domcontentloaded"},
	})
	if err != nil {
		return Page{}, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return Page{}, fmt.Errorf("parse page %s: %w", target, err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	return Page{URL: target, Title: title}, nil
}

// Screenshot implements Driver. It returns a base64-encoded JPEG.
func (d *HTTPDriver) Screenshot(ctx context.Context, target string) (string, error) {
	body, err := d.post(ctx, "/screenshot", contentRequest{
		URL:     target,
		Options: map[string]any{"type": "jpeg", "quality": 60},
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	img, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(img), nil
}

func (d *HTTPDriver) post(ctx context.Context, path string, payload contentRequest) (io.ReadCloser, error) {
	base, err := d.endpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve browser endpoint: %w", err)
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("parse browser endpoint: %w", err)
	}
	if d.token != "" {
		q := u.Query()
		q.Set("token", d.token)
		u.RawQuery = q.Encode()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("browser %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}
