package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/crankbench/internal/config"
)

// HeaderInjector adds headers to an outgoing request, e.g. trace context.
type HeaderInjector func(ctx context.Context, h http.Header)

// RequestBuilder produces identical requests for one HTTP workload.
type RequestBuilder struct {
	method  string
	target  string
	headers http.Header
	body    Payload
	inject  HeaderInjector
}

func NewRequestBuilder(w config.WorkloadConfig) (*RequestBuilder, error) {
	target := strings.TrimSpace(w.URL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.ToUpper(strings.TrimSpace(w.Method))
	if method == "" {
		method = http.MethodGet
	}

	body, err := LoadPayload(w)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for key, value := range w.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: headers,
		body:    body,
	}, nil
}

// WithHeaderInjector returns b with inject applied to every built request.
func (b *RequestBuilder) WithHeaderInjector(inject HeaderInjector) *RequestBuilder {
	b.inject = inject
	return b
}

// Method returns the HTTP method of built requests.
func (b *RequestBuilder) Method() string { return b.method }

// Target returns the request URL.
func (b *RequestBuilder) Target() string { return b.target }

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if !b.body.Empty() {
		reader = b.body.Reader()
	}
	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		return nil, err
	}

	req.Header = b.headers.Clone()
	if b.inject != nil {
		b.inject(ctx, req.Header)
	}

	if !b.body.Empty() {
		req.ContentLength = b.body.Len()
		req.GetBody = func() (io.ReadCloser, error) {
			return b.body.Reader(), nil
		}
	}

	return req, nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
