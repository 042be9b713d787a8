package catalog

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"text/template"

	"go.uber.org/zap"

	darshttp "github.com/ligustah/dars/internal/http"
)

// DefaultTemplate renders a catalog search request.
const DefaultTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<request>
  <query>{{ xml .Query }}</query>
{{- range $k, $v := .Params }}
  <param name="{{ xml $k }}">{{ xml $v }}</param>
{{- end }}
</request>
`

// ErrNoBaseURL is returned by NewClient when no catalog URL is configured.
var ErrNoBaseURL = errors.New("catalog: base URL is required")

// Request describes one catalog search.
type Request struct {
	Query  string
	Params map[string]string
}

// Options configures the catalog client.
type Options struct {
	// BaseURL is the catalog endpoint requests are posted to.
	BaseURL string

	// Template is the request body template. Empty uses DefaultTemplate.
	Template string

	// ContentType of the request body.
	// Default: application/xml
	ContentType string

	Logger *zap.Logger
}

// Client queries the catalog service.
type Client struct {
	http        *darshttp.Client
	baseURL     string
	tmpl        *template.Template
	contentType string
	logger      *zap.Logger
}

// NewClient creates a catalog client that sends requests through hc.
func NewClient(hc *darshttp.Client, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if opts.Template == "" {
		opts.Template = DefaultTemplate
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/xml"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	tmpl, err := template.New("request").Funcs(template.FuncMap{"xml": escapeXML}).Parse(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("parse request template: %w", err)
	}

	return &Client{
		http:        hc,
		baseURL:     opts.BaseURL,
		tmpl:        tmpl,
		contentType: opts.ContentType,
		logger:      opts.Logger.Named("catalog"),
	}, nil
}

// Render returns the request body for req.
func (c *Client) Render(req Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, req); err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	return buf.Bytes(), nil
}

// Query posts req to the catalog and returns the raw response. A non-200
// response is logged with its body and returned as *UnexpectedStatusError.
func (c *Client) Query(ctx context.Context, req Request) ([]byte, error) {
	body, err := c.Render(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Post(ctx, c.baseURL, c.contentType, body)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}

	if err := darshttp.CheckStatus(resp, http.StatusOK); err != nil {
		c.logger.Error("catalog request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(text)),
		)
		return nil, err
	}

	return text, nil
}

// Links queries the catalog and returns the archive links of the response.
func (c *Client) Links(ctx context.Context, req Request, filter Filter) (iter.Seq[string], error) {
	text, err := c.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	return Extract(text, filter, WithBaseURL(c.baseURL), WithLogger(c.logger)), nil
}

func escapeXML(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}
