// Package message assembles multipart MIME messages from a fixed set of
// header fields and an open-ended set of file attachment fields.
package message

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/shineum/mailpipe/internal/email"
)

// base64LineLength is the maximum encoded line length per RFC 2045.
const base64LineLength = 76

const (
	// maxHeaderLine is the recommended header line length of RFC 5322.
	maxHeaderLine = 78
	// maxEncodedWord is the encoded-word length limit of RFC 2047.
	maxEncodedWord = 75
)

// attachmentContentType is used for every attachment regardless of extension.
const attachmentContentType = "application/octet-stream"

// OpenFunc opens an attachment for reading.
type OpenFunc func(path string) (io.ReadCloser, error)

// Builder serializes email.Input values into raw RFC 5322 messages.
// A Builder holds no per-message state and is safe for concurrent use.
type Builder struct {
	open     OpenFunc
	boundary func() string
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithOpener replaces the function used to open attachment files.
func WithOpener(fn OpenFunc) Option {
	return func(b *Builder) {
		b.open = fn
	}
}

// WithBoundary replaces the multipart boundary generator.
func WithBoundary(fn func() string) Option {
	return func(b *Builder) {
		b.boundary = fn
	}
}

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// New creates a Builder that reads attachments from the local filesystem.
func New(opts ...Option) *Builder {
	b := &Builder{
		open:     openFile,
		boundary: newBoundary,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build serializes in using a default Builder.
func Build(in email.Input) ([]byte, error) {
	return New().Build(in)
}

// Build validates in, reads every resolved attachment and returns the
// serialized multipart/mixed message. Validation happens before any file is
// touched, and any attachment failure aborts the build without output.
func (b *Builder) Build(in email.Input) ([]byte, error) {
	if err := validateRequired(in); err != nil {
		return nil, err
	}

	refs := Resolve(in.Attachments)

	contents := make([][]byte, len(refs))
	for i, ref := range refs {
		data, err := b.read(ref.Path)
		if err != nil {
			return nil, &AttachmentReadError{Name: ref.Name, Path: ref.Path, Err: err}
		}
		contents[i] = data
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.SetBoundary(b.boundary()); err != nil {
		return nil, fmt.Errorf("failed to set multipart boundary: %w", err)
	}

	writeHeader(&buf, "Subject", encodeSubject(in.Subject))
	writeHeader(&buf, "From", in.From)
	writeHeader(&buf, "To", in.To)
	writeHeader(&buf, "MIME-Version", "1.0")
	writeHeader(&buf, "Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{
		"boundary": writer.Boundary(),
	}))
	buf.WriteString("\r\n")

	if err := writeBody(writer, in.Body); err != nil {
		return nil, err
	}

	for i, ref := range refs {
		if err := writeAttachment(writer, ref, contents[i]); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	b.logger.Debug("message built",
		"attachments", len(refs),
		"size", buf.Len(),
	)

	return buf.Bytes(), nil
}

// read opens, fully reads and closes one attachment.
func (b *Builder) read(path string) ([]byte, error) {
	f, err := b.open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func writeBody(w *multipart.Writer, body string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", "text/plain; charset=UTF-8")
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}

	qp := quotedprintable.NewWriter(part)
	// Bare CR or LF would come back as CRLF in text mode.
	qp.Binary = strings.ContainsAny(strings.ReplaceAll(body, "\r\n", ""), "\r\n")
	if _, err := qp.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write body part: %w", err)
	}
	if err := qp.Close(); err != nil {
		return fmt.Errorf("failed to write body part: %w", err)
	}
	return nil
}

func writeAttachment(w *multipart.Writer, ref email.AttachmentRef, content []byte) error {
	filename := filepath.Base(ref.Path)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", mime.FormatMediaType(attachmentContentType, map[string]string{
		"name": filename,
	}))
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", attachmentDisposition(filename))
	header.Set("X-Attachment-Name", ref.Name)

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create attachment part %q: %w", ref.Name, err)
	}
	if _, err := io.WriteString(part, encodeBase64WithLineBreaks(content)); err != nil {
		return fmt.Errorf("failed to write attachment part %q: %w", ref.Name, err)
	}
	return nil
}

// attachmentDisposition renders `attachment; filename="<name>"`. Names that
// are not plain ASCII fall back to RFC 2231 parameter encoding.
func attachmentDisposition(filename string) string {
	if !isPrintableASCII(filename) {
		return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(filename)
	return `attachment; filename="` + escaped + `"`
}

// writeHeader writes one header field. Line breaks inside values are
// replaced by spaces so a value can never start a new header, and long values
// are folded at single spaces to keep lines within maxHeaderLine.
func writeHeader(buf *bytes.Buffer, key, value string) {
	value = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(value)

	line := key + ":"
	prev := ""
	for i, word := range strings.Split(value, " ") {
		if i > 0 && word != "" && prev != "" && len(line)+1+len(word) > maxHeaderLine {
			buf.WriteString(line + "\r\n")
			line = ""
		}
		line += " " + word
		prev = word
	}
	buf.WriteString(line + "\r\n")
}

// encodeSubject returns the subject unchanged when it survives header
// unfolding as is. Anything else is written as RFC 2047 Q encoded-words.
func encodeSubject(s string) string {
	if isPrintableASCII(s) && !strings.Contains(s, "=?") && !strings.Contains(s, "  ") &&
		s == strings.TrimSpace(s) && !hasLongWord(s) {
		return s
	}

	const (
		prefix = "=?UTF-8?q?"
		suffix = "?="
		room   = maxEncodedWord - len(prefix) - len(suffix)
	)

	var words []string
	var cur strings.Builder
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		enc := qEncode(s[i : i+size])
		if cur.Len()+len(enc) > room {
			words = append(words, prefix+cur.String()+suffix)
			cur.Reset()
		}
		cur.WriteString(enc)
		i += size
	}
	words = append(words, prefix+cur.String()+suffix)
	return strings.Join(words, " ")
}

// qEncode encodes s with the Q encoding of RFC 2047, restricted to the
// characters allowed inside a phrase.
func qEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('_')
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '!', c == '*', c == '+', c == '-', c == '/':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

// hasLongWord reports whether s has a space-free run that cannot be folded
// onto a line of its own.
func hasLongWord(s string) bool {
	for _, word := range strings.Split(s, " ") {
		if len(word) > maxHeaderLine-1 {
			return true
		}
	}
	return false
}

func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += base64LineLength {
		end := min(i+base64LineLength, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func openFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func newBoundary() string {
	return "mixed_" + uuid.NewString()
}
