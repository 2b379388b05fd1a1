package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// ErrNotConfigured is reported when the client has no form submission endpoint.
var ErrNotConfigured = errors.New("form submission endpoint is not configured")

const submitPath = "createFormLead"

// Result mirrors the outcome object the inquiry form expects. Submit never fails with a Go error: any
// failure is reported through Success and Message.
type Result struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client posts leads to the form submission API, which forwards them to the CRM.
type Client struct {
	endpoint   string
	httpClient *http.Client

	logger *slog.Logger
}

// NewClient creates a Client for the API rooted at endpoint.
func NewClient(endpoint string, httpClient *http.Client, logger *slog.Logger) Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger.With(slog.String("module", "leads")),
	}
}

// Submit sends the lead to the API.
func (c Client) Submit(ctx context.Context, lead Lead) Result {
	data, err := c.submit(ctx, lead)
	if err != nil {
		c.logger.Error("Error submitting form", slog.String("error", err.Error()))
		return Result{Success: false, Message: err.Error()}
	}

	c.logger.Info("Form submitted", slog.String("email", lead.Email))
	return Result{
		Success: true,
		Message: "Form submitted successfully",
		Data:    data,
	}
}

func (c Client) submit(ctx context.Context, lead Lead) (json.RawMessage, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}

	u, err := url.JoinPath(c.endpoint, submitPath)
	if err != nil {
		return nil, fmt.Errorf("invalid form submission endpoint: %w", err)
	}

	body, err := json.Marshal(lead)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Form submission HTTP error",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(respBody)))
		return nil, fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
	}

	if !json.Valid(respBody) {
		return nil, errors.New("form submission API returned invalid JSON")
	}
	return respBody, nil
}
