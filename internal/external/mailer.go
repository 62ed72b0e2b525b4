package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"talentsphere/internal/types"
)

// mailerAPIBase is the default mail API base URL. Overridable in tests via
// MailerClientConfig.BaseURL.
const mailerAPIBase = "https://api.sendgrid.com"

// MailerClientConfig holds the configuration for creating a MailerClient.
type MailerClientConfig struct {
	APIKey  string
	BaseURL string
	Logger  *slog.Logger
}

// MailerClient implements EmailProvider against the SendGrid v3 Mail Send
// API through BaseClient, inheriting circuit breaking, retries, and error
// mapping. Emails arrive pre-rendered; no provider-side templates are used.
type MailerClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewMailerClient creates a MailerClient. The httpClient timeout bounds each
// individual attempt; retries are handled by BaseClient.
func NewMailerClient(httpClient *http.Client, cfg MailerClientConfig) *MailerClient {
	return NewMailerClientWithBase(
		NewBaseClient(httpClient, "mailer", DefaultRetryPolicy(), "TalentSphere/1.0"),
		cfg,
	)
}

// NewMailerClientWithBase creates a MailerClient with a pre-configured
// BaseClient, useful in tests to disable retries or inject a fake sleep.
func NewMailerClientWithBase(base *BaseClient, cfg MailerClientConfig) *MailerClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = mailerAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MailerClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Send transmits one rendered email and returns the X-Message-Id response
// header on success (the API answers 202 Accepted).
//
// Error mapping:
//   - 403 Forbidden -> ErrCodeEmailBlocked (recipient on suppression list)
//   - 429 -> handled by BaseClient (retry, then ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (retry, then ErrCodeUpstreamUnavailable)
//   - other 4xx -> ErrCodeUpstreamEmailProvider
func (m *MailerClient) Send(ctx context.Context, input SendInput) (string, error) {
	body, err := json.Marshal(m.buildMailPayload(input))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal mail payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create mail send request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.base.Do(req)
	if err != nil {
		// BaseClient already maps breaker and retry exhaustion to AppErrors.
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("mail send request failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", m.handleErrorResponse(resp)
}

type mailPayload struct {
	Personalizations []mailPersonalization `json:"personalizations"`
	From             mailAddress           `json:"from"`
	Subject          string                `json:"subject"`
	Content          []mailContent         `json:"content"`
	CustomArgs       map[string]string     `json:"custom_args,omitempty"`
}

type mailPersonalization struct {
	To []mailAddress `json:"to"`
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (m *MailerClient) buildMailPayload(input SendInput) mailPayload {
	// text/plain must precede text/html in the content array.
	var content []mailContent
	if input.BodyText != "" {
		content = append(content, mailContent{Type: "text/plain", Value: input.BodyText})
	}
	if input.BodyHTML != "" {
		content = append(content, mailContent{Type: "text/html", Value: input.BodyHTML})
	}

	payload := mailPayload{
		Personalizations: []mailPersonalization{
			{To: []mailAddress{{Email: input.To}}},
		},
		From:    mailAddress{Email: input.FromAddress, Name: input.FromName},
		Subject: input.Subject,
		Content: content,
	}
	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}
	return payload
}

type mailerErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (m *MailerClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("mail API returned status %d with unreadable body", resp.StatusCode), readErr)
	}

	errMsg := string(body)
	var apiErr mailerErrorResponse
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && len(apiErr.Errors) > 0 {
		errMsg = apiErr.Errors[0].Message
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(types.ErrCodeEmailBlocked,
			fmt.Sprintf("mail API blocked delivery: %s", errMsg), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			"mail API rate limit exceeded", nil)
	case resp.StatusCode >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("mail API server error: %s", errMsg), nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("mail API error (%d): %s", resp.StatusCode, errMsg), nil)
	}
}

// Compile-time assertion that MailerClient satisfies EmailProvider.
var _ EmailProvider = (*MailerClient)(nil)
