// Package client talks to the range server over HTTP and maps its responses
// back onto the transfer error types.
package client

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/italolelis/resumable_downloader/internal/byterange"
	"github.com/italolelis/resumable_downloader/internal/logctx"
	"github.com/italolelis/resumable_downloader/internal/transfer"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// Ensure Client implements FileService
var _ transfer.FileService = (*Client)(nil)

// NewClient creates a client for the server at baseURL. Timeouts are taken
// from the context of each call.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

// NewClientWithHTTP creates a client that sends requests through httpClient.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) fileURL(name string, suffix string) string {
	return c.BaseURL + "/files/" + url.PathEscape(name) + suffix
}

// List returns every file published on the server.
func (c *Client) List(ctx context.Context) ([]*transfer.File, error) {
	var files []*transfer.File

	if err := c.getJSON(ctx, "list", "", c.BaseURL+"/files", &files); err != nil {
		return nil, err
	}

	return files, nil
}

// Info returns the metadata of the named file.
func (c *Client) Info(ctx context.Context, name string) (*transfer.File, error) {
	var f transfer.File

	if err := c.getJSON(ctx, "info", name, c.fileURL(name, "/info"), &f); err != nil {
		return nil, err
	}

	return &f, nil
}

// Generate asks the server to create a file.
func (c *Client) Generate(ctx context.Context, req transfer.GenerateRequest) (*transfer.GenerateResult, error) {
	logger := logctx.LoggerFromContext(ctx).With("method", "generate")

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/files/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	logger.Debug("sending generate request", "name", req.Name)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError("generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("generate", req.Name, resp)
	}

	var result transfer.GenerateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &transfer.TransportError{Operation: "generate", Message: "malformed response body", Err: err}
	}

	return &result, nil
}

// FetchRange returns exactly the bytes [start, end] of the named file. The
// response must echo the requested range in Content-Range and carry exactly
// end-start+1 bytes, otherwise a ProtocolError is returned.
func (c *Client) FetchRange(ctx context.Context, name string, start, end int64) ([]byte, error) {
	logger := logctx.LoggerFromContext(ctx).With("method", "fetch_range", "file_name", name)

	if start < 0 || end < start {
		return nil, &transfer.InvalidArgumentError{Field: "range", Reason: fmt.Sprintf("invalid range %d-%d", start, end)}
	}

	want := byterange.Range{Start: start, End: end}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(name, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Range", want.Header())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError("fetch_range", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		size, parseErr := byterange.ParseUnsatisfied(resp.Header.Get("Content-Range"))
		if parseErr != nil {
			return nil, &transfer.ProtocolError{Name: name, Reason: "416 without a usable Content-Range", Expected: want.Length()}
		}

		return nil, &transfer.RangeNotSatisfiableError{Name: name, Header: want.Header(), Size: size, Reason: "rejected by server"}
	case http.StatusOK:
		return nil, &transfer.ProtocolError{Name: name, Reason: "server ignored the range request", Expected: want.Length(), Actual: resp.ContentLength}
	default:
		return nil, statusError("fetch_range", name, resp)
	}

	got, _, err := byterange.ParseContentRange(resp.Header.Get("Content-Range"))
	if err != nil || got != want {
		return nil, &transfer.ProtocolError{
			Name:     name,
			Reason:   fmt.Sprintf("unexpected Content-Range %q", resp.Header.Get("Content-Range")),
			Expected: want.Length(),
			Actual:   got.Length(),
		}
	}

	// Read one byte past the range so an oversized body is detected.
	data, err := io.ReadAll(io.LimitReader(resp.Body, want.Length()+1))
	if err != nil {
		logger.Debug("failed to read range body", "received", len(data), "err", err)

		return nil, transportError("fetch_range", err)
	}

	if int64(len(data)) != want.Length() {
		return nil, &transfer.ProtocolError{Name: name, Reason: "chunk length mismatch", Expected: want.Length(), Actual: int64(len(data))}
	}

	return data, nil
}

func (c *Client) getJSON(ctx context.Context, operation, name, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(operation, name, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &transfer.TransportError{Operation: operation, StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
	}

	return nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusError maps a non-success response onto the transfer error types.
func statusError(operation, name string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &transfer.NotFoundError{Name: name}
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return &transfer.InvalidArgumentError{Field: "request", Reason: body.Error}
	default:
		return &transfer.TransportError{Operation: operation, StatusCode: resp.StatusCode, Message: body.Error}
	}
}

func transportError(operation string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &transfer.TransportError{Operation: operation, Message: urlErr.Err.Error(), Err: err}
	}

	return &transfer.TransportError{Operation: operation, Message: err.Error(), Err: err}
}
