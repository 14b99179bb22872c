package backend

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// HTTPConfig configures the HTTP generation adapter.
type HTTPConfig struct {
	// ResponsesURL is the generation endpoint.
	ResponsesURL string
	// Model identifies the generation model requested per call.
	Model string
	// APIKey is sent as a bearer token and never echoed in errors.
	APIKey     string
	HTTPClient *http.Client
}

type httpAdapter struct {
	cfg HTTPConfig
}

// NewHTTPAdapter builds a Generator speaking an OpenAI-style responses API.
func NewHTTPAdapter(cfg HTTPConfig) Generator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &httpAdapter{cfg: cfg}
}

func (a *httpAdapter) Invoke(ctx context.Context, req Request) (string, error) {
	responsesURL := strings.TrimSpace(a.cfg.ResponsesURL)
	model := strings.TrimSpace(a.cfg.Model)
	prompt := strings.TrimSpace(req.Context)
	if responsesURL == "" {
		return "", NewCallError(CodeBadRequest, "responses url is required")
	}
	if model == "" {
		return "", NewCallError(CodeBadRequest, "model is required")
	}
	if prompt == "" {
		return "", NewCallError(CodeBadRequest, "prompt context is required")
	}

	tools := make([]string, 0, len(req.Tools))
	for _, tool := range req.Tools {
		tools = append(tools, string(tool))
	}

	requestBody, err := json.Marshal(map[string]any{
		"model": model,
		"input": prompt,
		"tools": tools,
	})
	if err != nil {
		return "", NewCallError(CodeBadRequest, fmt.Sprintf("marshal invoke request: %v", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, responsesURL, bytes.NewReader(requestBody))
	if err != nil {
		return "", NewCallError(CodeBadRequest, fmt.Sprintf("build invoke request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Credential material is sent only as an Authorization header and is
	// never echoed in errors or response payloads.
	if key := strings.TrimSpace(a.cfg.APIKey); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	res, err := a.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return "", &CallError{Code: transportCode(err), Message: "invoke request failed", cause: err}
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(res.Body, 4096))
		detail := ""
		if readErr == nil {
			detail = strings.TrimSpace(string(body))
		}
		return "", NewCallError(statusCode(res.StatusCode), fmt.Sprintf("invoke request status %d: %s", res.StatusCode, detail))
	}

	var payload struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", &CallError{Code: CodeInternal, Message: "decode invoke response", cause: err}
	}
	outputText := strings.TrimSpace(payload.OutputText)
	if outputText == "" {
		for _, item := range payload.Output {
			for _, content := range item.Content {
				if strings.TrimSpace(content.Text) != "" {
					outputText = strings.TrimSpace(content.Text)
					break
				}
			}
			if outputText != "" {
				break
			}
		}
	}
	if outputText == "" {
		return "", NewCallError(CodeInternal, "invoke response missing output text")
	}
	return outputText, nil
}

// statusCode maps an HTTP failure status to a structured backend code.
func statusCode(status int) ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CodeTimeout
	case status == http.StatusForbidden || status == http.StatusUnprocessableEntity:
		return CodePolicyRejected
	case status >= 400 && status < 500:
		return CodeBadRequest
	default:
		return CodeInternal
	}
}

// transportCode distinguishes timeouts from other connection failures.
func transportCode(err error) ErrorCode {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeConnection
}
