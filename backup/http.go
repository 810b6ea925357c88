package backup

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
)

const defaultHTTPTimeout = 30 * time.Second

type HTTPConfig struct {
	// snapshot is PUT to and GET from BaseURL/<name>
	BaseURL string
	// if set, sent as X-Api-Key header
	ApiKey string
	// nil means http.DefaultClient
	Client *http.Client
	// per request, 0 means 30 seconds
	Timeout time.Duration
}

// HTTP stores snapshots on a server that accepts PUT and GET
type HTTP struct {
	config *HTTPConfig
}

var _ Target = &HTTP{}

func NewHTTP(config *HTTPConfig) (*HTTP, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("%w: BaseURL", ErrMissingConfig)
	}
	uri, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		return nil, fmt.Errorf("BaseURL '%s' must be http or https", config.BaseURL)
	}
	return &HTTP{config: config}, nil
}

func (h *HTTP) Name() string {
	return h.config.BaseURL
}

func (h *HTTP) urlFor(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimSuffix(h.config.BaseURL, "/") + "/" + strings.Join(parts, "/")
}

func (h *HTTP) builder(name string) *requests.Builder {
	r := requests.URL(h.urlFor(name))
	if h.config.ApiKey != "" {
		r = r.Header("X-Api-Key", h.config.ApiKey)
	}
	if h.config.Client != nil {
		r = r.Client(h.config.Client)
	}
	return r
}

func (h *HTTP) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := h.config.Timeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (h *HTTP) Put(ctx context.Context, name string, data []byte) error {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	return h.builder(name).
		Method(http.MethodPut).
		BodyBytes(data).
		ContentType("application/octet-stream").
		Fetch(ctx)
}

func (h *HTTP) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	var buf bytes.Buffer
	err := h.builder(name).
		ToBytesBuffer(&buf).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
