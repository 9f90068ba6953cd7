package workload

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/httpclient"
)

const (
	maxLoggedBodyBytes = 1024
	maxBodyReadSize    = 1024 * 1024
)

// HTTP issues one request per invocation.
type HTTP struct {
	client       *http.Client
	builder      *httpclient.RequestBuilder
	expectStatus int
	expect       expectations
}

// NewHTTP builds an HTTP workload. A nil client gets one from
// httpclient.NewClient with the configured timeout.
func NewHTTP(cfg config.WorkloadConfig, client *http.Client) (*HTTP, error) {
	builder, err := httpclient.NewRequestBuilder(cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = httpclient.NewClient(cfg.Timeout)
	}

	return &HTTP{
		client:       client,
		builder:      builder,
		expectStatus: cfg.ExpectStatus,
		expect:       newExpectations(cfg.ExpectJSON),
	}, nil
}

// Builder exposes the request builder, e.g. to attach a header injector.
func (h *HTTP) Builder() *httpclient.RequestBuilder { return h.builder }

func (h *HTTP) Do(ctx context.Context) error {
	req, err := h.builder.Build(ctx)
	if err != nil {
		return err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Body read errors are non-fatal; expectations then see an empty body.
	body, bodyErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	if bodyErr != nil {
		body = nil
	}

	if !h.statusAccepted(resp.StatusCode) {
		snippet := body
		if len(snippet) > maxLoggedBodyBytes {
			snippet = snippet[:maxLoggedBodyBytes]
		}
		return &StatusError{
			StatusCode: resp.StatusCode,
			Want:       h.expectStatus,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	return h.expect.check(body)
}

func (h *HTTP) statusAccepted(code int) bool {
	if h.expectStatus != 0 {
		return code == h.expectStatus
	}
	return code < http.StatusBadRequest
}
