// Package parser decodes serialized RFC 5322 messages with MIME multipart
// bodies. It backs the inspect command and verifies built messages.
package parser

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/shineum/mailpipe/internal/email"
)

// ErrMissingBoundary is returned for a multipart message without a boundary parameter.
var ErrMissingBoundary = errors.New("multipart message missing boundary")

var headerDecoder = new(mime.WordDecoder)

// Parse parses a raw RFC 5322 email message into an Email struct.
// Encoded-word headers are decoded, nested multiparts are flattened and
// base64 or quoted-printable parts are returned decoded.
func Parse(raw []byte) (*email.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &email.Email{
		RawHeaders: make(map[string][]string, len(msg.Header)),
	}
	for key, values := range msg.Header {
		result.RawHeaders[key] = values
	}

	result.From = decodeHeader(msg.Header.Get("From"))
	result.Subject = decodeHeader(msg.Header.Get("Subject"))
	result.MessageID = msg.Header.Get("Message-Id")
	result.To = parseAddressList(msg.Header.Get("To"))
	result.Cc = parseAddressList(msg.Header.Get("Cc"))

	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, ErrMissingBoundary
		}
		if err := parseMultipart(msg.Body, boundary, result); err != nil {
			return nil, fmt.Errorf("failed to parse multipart message: %w", err)
		}
		return result, nil
	}

	body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	if mediaType == "text/html" {
		result.HtmlBody = string(body)
	} else {
		result.TextBody = string(body)
	}

	return result, nil
}

// parseMultipart walks the parts below one boundary. Text parts without an
// attachment disposition fill the bodies, everything else is an attachment.
func parseMultipart(body io.Reader, boundary string, result *email.Email) error {
	reader := multipart.NewReader(body, boundary)

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		partContentType := part.Header.Get("Content-Type")
		if partContentType == "" {
			partContentType = "text/plain"
		}

		mediaType, params, err := mime.ParseMediaType(partContentType)
		if err != nil {
			slog.Warn("failed to parse part content type, skipping",
				"content_type", partContentType,
				"error", err,
			)
			continue
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if params["boundary"] == "" {
				slog.Warn("nested multipart missing boundary, skipping")
				continue
			}
			if err := parseMultipart(part, params["boundary"], result); err != nil {
				return err
			}
			continue
		}

		content, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			return fmt.Errorf("failed to read %s part: %w", mediaType, err)
		}

		disposition := part.Header.Get("Content-Disposition")
		isAttachment := strings.HasPrefix(strings.ToLower(disposition), "attachment")

		switch {
		case !isAttachment && mediaType == "text/plain" && result.TextBody == "":
			result.TextBody = string(content)
		case !isAttachment && mediaType == "text/html" && result.HtmlBody == "":
			result.HtmlBody = string(content)
		default:
			result.Attachments = append(result.Attachments, email.Attachment{
				Name:        part.Header.Get("X-Attachment-Name"),
				Filename:    extractFilename(part, params),
				ContentType: mediaType,
				Content:     content,
			})
		}
	}
}

// decodeBody reads a body, undoing its transfer encoding. Quoted-printable
// parts inside a multipart are already decoded by multipart.Reader, which
// also drops their Content-Transfer-Encoding header.
func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "quoted-printable" {
		r = quotedprintable.NewReader(r)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if encoding != "base64" {
		return raw, nil
	}

	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(string(raw))
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 content: %w", err)
		}
	}
	return decoded, nil
}

// extractFilename prefers the Content-Disposition filename and falls back to
// the Content-Type name parameter.
func extractFilename(part *multipart.Part, params map[string]string) string {
	if fn := part.FileName(); fn != "" {
		return fn
	}
	return decodeHeader(params["name"])
}

func decodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseAddressList splits a comma-separated address list into individual addresses.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
