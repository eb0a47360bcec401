package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shineum/mailpipe/internal/config"
	"github.com/shineum/mailpipe/internal/provider"
	"github.com/shineum/mailpipe/internal/provider/graph"
	"github.com/shineum/mailpipe/internal/provider/sendmail"
	"github.com/shineum/mailpipe/internal/provider/ses"
	"github.com/shineum/mailpipe/internal/provider/stdout"
)

var (
	errSESNotConfigured   = errors.New("ses transport selected but SES_REGION is required")
	errGraphNotConfigured = errors.New("graph transport selected but GRAPH_TENANT_ID, GRAPH_CLIENT_ID, GRAPH_CLIENT_SECRET, and GRAPH_SENDER are required")
)

// selectProvider chooses the delivery backend named by cfg.Transport.
// The stdout transport writes its summary to out.
func selectProvider(ctx context.Context, cfg *config.Config, out io.Writer) (provider.Provider, error) {
	switch cfg.Transport {
	case "sendmail", "":
		slog.Debug("using sendmail transport",
			"path", cfg.Sendmail.Path,
			"strict", cfg.Sendmail.Strict,
		)
		return sendmail.New(sendmail.Config{
			Path:   cfg.Sendmail.Path,
			Strict: cfg.Sendmail.Strict,
		}), nil

	case "ses":
		if !cfg.SESConfigured() {
			return nil, errSESNotConfigured
		}
		slog.Debug("using AWS SES transport", "region", cfg.SES.Region)
		p, err := ses.New(ctx, ses.SESProviderConfig{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case "graph":
		if !cfg.GraphConfigured() {
			return nil, errGraphNotConfigured
		}
		slog.Debug("using Microsoft Graph transport", "sender", cfg.Graph.Sender)
		return graph.New(graph.GraphProviderConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Sender:       cfg.Graph.Sender,
		}), nil

	case "stdout":
		slog.Debug("using stdout transport")
		return stdout.NewWithWriter(out), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
