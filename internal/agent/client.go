// Package agent calls the external conversational-agent webhook.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const apiKeyHeader = "x-api-key"

// Client issues synchronous calls to the agent webhook. It is stateless:
// conversation continuity lives entirely in the session token the agent
// service keys its memory on.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an agent client for the given webhook endpoint.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type callRequest struct {
	OutputType string `json:"output_type"`
	InputType  string `json:"input_type"`
	InputValue string `json:"input_value"`
	SessionID  string `json:"session_id"`
}

// callResponse mirrors the reply envelope: the text lives at
// outputs[0].outputs[0].outputs.message.message. Message is a pointer so a
// missing leaf is distinguishable from an empty string.
type callResponse struct {
	Outputs []struct {
		Outputs []struct {
			Outputs struct {
				Message struct {
					Message *string `json:"message"`
				} `json:"message"`
			} `json:"outputs"`
		} `json:"outputs"`
	} `json:"outputs"`
}

// Call sends one message to the agent and returns its reply text.
// No retries: the caller decides how to surface failures.
func (c *Client) Call(ctx context.Context, message, sessionID string) (string, error) {
	payload := callRequest{
		OutputType: "chat",
		InputType:  "chat",
		InputValue: message,
		SessionID:  sessionID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "call", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("agent returned non-success status",
			"status", resp.StatusCode,
			"session_id", sessionID)
		return "", &TransportError{Op: "call", StatusCode: resp.StatusCode}
	}

	reply, err := parseReply(raw)
	if err != nil {
		slog.Error("agent response did not match expected shape",
			"session_id", sessionID,
			"error", err,
			"body", string(raw))
		return "", err
	}

	return reply, nil
}

func parseReply(raw []byte) (string, error) {
	var parsed callResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ResponseShapeError{Reason: fmt.Sprintf("invalid JSON: %v", err), Body: raw}
	}

	if len(parsed.Outputs) == 0 {
		return "", &ResponseShapeError{Reason: "outputs is empty", Body: raw}
	}
	if len(parsed.Outputs[0].Outputs) == 0 {
		return "", &ResponseShapeError{Reason: "nested outputs is empty", Body: raw}
	}

	msg := parsed.Outputs[0].Outputs[0].Outputs.Message.Message
	if msg == nil {
		return "", &ResponseShapeError{Reason: "message field missing", Body: raw}
	}

	return *msg, nil
}
