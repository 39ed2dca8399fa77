// Package client talks to the remote chat backend: the streamed generation
// endpoint and the history endpoints over past sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jmallory/streamchat/internal/auth"
)

// RequestError is a non-success status received before streaming began. The
// body is plain diagnostic text, captured in full.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// Backend issues authenticated requests against the chat backend.
type Backend struct {
	baseURL string
	creds   auth.Source
	// No client timeout: the stream response stays open for the whole
	// generation. Cancellation runs through the request context.
	httpClient *http.Client
}

// New creates a backend client for the given base URL.
func New(baseURL string, creds auth.Source) *Backend {
	return &Backend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{},
	}
}

type streamRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

// OpenStream posts a generation request and returns the streamed response
// body. sessionID is omitted from the payload when no session is bound yet.
// Non-success responses are drained for diagnostics and returned as a
// *RequestError; the caller never sees a body for them.
func (b *Backend) OpenStream(ctx context.Context, prompt, sessionID string) (io.ReadCloser, error) {
	payload, err := json.Marshal(streamRequest{Prompt: prompt, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("encode stream request: %w", err)
	}

	req, err := b.newRequest(ctx, http.MethodPost, "/api/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return resp.Body, nil
}

func (b *Backend) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	token, err := b.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}
