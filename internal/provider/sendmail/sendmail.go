// Package sendmail implements a Provider that pipes messages into a local
// mail transfer binary.
package sendmail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"

	"github.com/shineum/mailpipe/internal/provider"
)

// DefaultPath is the conventional location of the sendmail binary on Unix-like systems.
const DefaultPath = "/usr/sbin/sendmail"

// defaultArgs makes sendmail read recipients from the message headers (-t)
// and not treat a lone "." line as end of input (-oi).
var defaultArgs = []string{"-t", "-oi"}

// Config holds the configuration for creating a Sender.
type Config struct {
	// Path to the binary. Empty means DefaultPath.
	Path string
	// Args replaces the default "-t -oi" arguments when non-empty.
	Args []string
	// Strict turns a non-zero exit status into a DeliveryError.
	Strict bool
}

// Sender delivers messages by running sendmail once per message.
// It keeps no state between calls and may be used concurrently.
type Sender struct {
	path   string
	args   []string
	strict bool
}

// UnavailableError is returned when the sendmail binary cannot be located or started.
type UnavailableError struct {
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("sendmail unavailable at %s: %v", e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// DeliveryError is returned in strict mode when sendmail exits non-zero.
type DeliveryError struct {
	Capture *provider.Capture
}

func (e *DeliveryError) Error() string {
	msg := bytes.TrimSpace(e.Capture.Stderr)
	if len(msg) == 0 {
		return fmt.Sprintf("sendmail exited with status %d", e.Capture.ExitCode)
	}
	return fmt.Sprintf("sendmail exited with status %d: %s", e.Capture.ExitCode, msg)
}

// New creates a Sender from cfg.
func New(cfg Config) *Sender {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	args := cfg.Args
	if len(args) == 0 {
		args = defaultArgs
	}

	return &Sender{
		path:   path,
		args:   slices.Clone(args),
		strict: cfg.Strict,
	}
}

// Send writes raw to sendmail's standard input, closes it and waits for the
// process to exit. Standard output, standard error and the exit status are
// returned as-is; a non-zero exit is only an error in strict mode. There is
// no timeout: the call blocks until sendmail exits or ctx is cancelled.
func (s *Sender) Send(ctx context.Context, raw []byte) (*provider.Capture, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, s.path, s.args...)
	cmd.Stdin = bytes.NewReader(raw)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("sendmail interrupted: %w", ctxErr)
		}
		return nil, &UnavailableError{Path: s.path, Err: err}
	}

	waitErr := cmd.Wait()

	capture := &provider.Capture{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return capture, fmt.Errorf("sendmail interrupted: %w", ctxErr)
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return capture, fmt.Errorf("failed to wait for sendmail: %w", waitErr)
	}

	slog.Debug("sendmail finished",
		"path", s.path,
		"exit_code", capture.ExitCode,
		"stderr_bytes", len(capture.Stderr),
	)

	if s.strict && capture.Failed() {
		return capture, &DeliveryError{Capture: capture}
	}

	return capture, nil
}

// Name returns the provider name.
func (s *Sender) Name() string {
	return "sendmail"
}
