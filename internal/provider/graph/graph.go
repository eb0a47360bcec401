package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/mailpipe/internal/provider"
)

// GraphProviderConfig holds the configuration for creating a GraphProvider.
type GraphProviderConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
}

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// graphScope is the client credentials scope for application permissions.
const graphScope = "https://graph.microsoft.com/.default"

// GraphProvider sends serialized messages via the Microsoft Graph sendMail
// endpoint, which accepts a base64 encoded MIME body. Tokens are acquired
// with the OAuth2 client credentials flow and cached by the oauth2 transport.
type GraphProvider struct {
	sender     string
	graphURL   string
	httpClient *http.Client
	baseDelay  time.Duration
}

// New creates a new GraphProvider with the given configuration.
func New(cfg GraphProviderConfig) *GraphProvider {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	graphURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)
	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a GraphProvider with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg GraphProviderConfig, graphURL, tokenURL string, base *http.Client) *GraphProvider {
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = base.Timeout

	return &GraphProvider{
		sender:     cfg.Sender,
		graphURL:   graphURL,
		httpClient: client,
		baseDelay:  baseRetryDelay,
	}
}

// Send delivers the raw message via the Microsoft Graph API.
// It retries transient failures with exponential backoff and honours the
// Retry-After header on HTTP 429.
func (g *GraphProvider) Send(ctx context.Context, raw []byte) (*provider.Capture, error) {
	body := []byte(base64.StdEncoding.EncodeToString(raw))

	var retryAfter time.Duration
	exp := retry.WithMaxRetries(maxRetries, retry.NewExponential(g.baseDelay))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		next, stop := exp.Next()
		if stop {
			return 0, true
		}
		if retryAfter > 0 {
			next, retryAfter = retryAfter, 0
		}
		return next, false
	})

	var (
		status  string
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			slog.Debug("retrying Graph API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
		}
		attempt++

		s, err := g.doSendRequest(ctx, body)
		if err == nil {
			status = s
			return nil
		}

		var graphErr *sendError
		if !errors.As(err, &graphErr) || graphErr.permanent {
			return err
		}

		if graphErr.statusCode == http.StatusTooManyRequests {
			retryAfter = parseRetryAfter(graphErr.retryAfter)
			slog.Info("rate limited by Graph API",
				"retry_after", retryAfter,
			)
		} else {
			slog.Info("transient Graph API error, retrying",
				"status", graphErr.statusCode,
			)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return nil, fmt.Errorf("Graph API request failed after %d attempts: %w", attempt, err)
	}

	slog.Debug("message accepted by Graph API",
		"sender", g.sender,
		"status", status,
		"attempts", attempt,
	)
	return &provider.Capture{Stdout: []byte(status + "\n")}, nil
}

// Name returns the provider name.
func (g *GraphProvider) Name() string {
	return "graph"
}

// doSendRequest performs a single HTTP request to the Graph API sendMail
// endpoint and returns the response status on success.
func (g *GraphProvider) doSendRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.graphURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", fmt.Errorf("failed to get access token: %w", err)
		}
		return "", &sendError{
			message:   fmt.Sprintf("HTTP request failed: %v", err),
			transient: true,
		}
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return resp.Status, nil
	}

	respBody, _ := io.ReadAll(resp.Body)

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(respBody, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return "", classifyError(resp.StatusCode, graphErrResp.Error.Message, resp.Header.Get("Retry-After"))
	}

	return "", classifyError(resp.StatusCode, string(respBody), resp.Header.Get("Retry-After"))
}

// sendError represents an error from the Graph API send operation with
// classification for retry logic.
type sendError struct {
	message    string
	statusCode int
	permanent  bool
	transient  bool
	retryAfter string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// classifyError categorizes an HTTP error response for retry decisions.
func classifyError(statusCode int, message, retryAfter string) *sendError {
	err := &sendError{
		message:    message,
		statusCode: statusCode,
		retryAfter: retryAfter,
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		err.transient = true
	case statusCode >= 500:
		err.transient = true
	default:
		err.permanent = true
	}

	return err
}

// parseRetryAfter converts a Retry-After value in seconds to a duration.
// Zero means the header was absent or unusable and the backoff applies.
func parseRetryAfter(retryAfter string) time.Duration {
	seconds, err := strconv.Atoi(retryAfter)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
