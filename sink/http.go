package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPParams ...
type HTTPParams struct {
	// Endpoint is the base URL; objects are PUT to {Endpoint}/{key}.
	Endpoint string
	// Token is sent as a bearer token when set.
	Token    string
	RetryMax int
}

// HTTPSink uploads objects with plain HTTP PUT requests, e.g. to presigned or
// proxy endpoints in front of a bucket.
type HTTPSink struct {
	client   *retryablehttp.Client
	endpoint string
	token    string
}

// NewHTTP creates an HTTP sink backed by a retrying client.
func NewHTTP(params HTTPParams, logger log.Logger) (*HTTPSink, error) {
	client := retryhttp.NewClient(logger)
	client.RetryMax = params.RetryMax
	return newHTTPSink(client, params.Endpoint, params.Token)
}

func newHTTPSink(client *retryablehttp.Client, endpoint, token string) (*HTTPSink, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an http(s) url, got %q", endpoint)
	}

	return &HTTPSink{
		client:   client,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		token:    token,
	}, nil
}

// Put ...
func (s *HTTPSink) Put(ctx context.Context, key string, data []byte, contentType string, acl ACL) error {
	target, err := url.JoinPath(s.endpoint, key)
	if err != nil {
		return fmt.Errorf("build url for %s: %w", key, err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-amz-acl", acl.String())
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.ContentLength = int64(len(data))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", target, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return accessDenied(fmt.Errorf("put %s: unexpected status %s", target, resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("put %s: unexpected status %s: %s", target, resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}
