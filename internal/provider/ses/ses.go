// Package ses implements a Provider that sends raw messages via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sethvargo/go-retry"

	"github.com/shineum/mailpipe/internal/provider"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SESProvider sends serialized messages via the AWS SES v2 raw content API.
// Sender and recipients are read by SES from the message headers.
type SESProvider struct {
	client    SendEmailAPI
	baseDelay time.Duration
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(client SendEmailAPI) *SESProvider {
	return &SESProvider{
		client:    client,
		baseDelay: baseRetryDelay,
	}
}

// Send delivers the raw message via AWS SES v2, retrying failed calls with
// exponential backoff. The SES message id is returned in Capture.Stdout.
func (s *SESProvider) Send(ctx context.Context, raw []byte) (*provider.Capture, error) {
	input := &sesv2.SendEmailInput{
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: raw,
			},
		},
	}

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(s.baseDelay))

	var (
		out     *sesv2.SendEmailOutput
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
		}
		attempt++

		res, err := s.client.SendEmail(ctx, input)
		if err != nil {
			slog.Warn("SES API error",
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("SES API request failed after %d attempts: %w", attempt, err)
	}

	return &provider.Capture{
		Stdout: []byte(aws.ToString(out.MessageId) + "\n"),
	}, nil
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}
