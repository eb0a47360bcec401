package message

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shineum/mailpipe/internal/email"
	"github.com/shineum/mailpipe/internal/parser"
)

// writeFiles creates the named files under a fresh temp dir and returns the dir.
func writeFiles(t *testing.T, files map[string][]byte) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func baseInput() email.Input {
	return email.Input{
		From:    "a@x.com",
		To:      "b@y.com",
		Subject: "Hi",
		Body:    "Hello",
	}
}

// trackingOpener records every open and close.
type trackingOpener struct {
	opened []string
	closed int
}

func (o *trackingOpener) open(path string) (io.ReadCloser, error) {
	o.opened = append(o.opened, path)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &closeCounter{ReadCloser: f, closed: &o.closed}, nil
}

type closeCounter struct {
	io.ReadCloser
	closed *int
}

func (c *closeCounter) Close() error {
	*c.closed++
	return c.ReadCloser.Close()
}

func TestBuild_NoAttachments(t *testing.T) {
	t.Parallel()

	raw, err := Build(baseInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse built message: %v", err)
	}

	headers := map[string]string{
		"Subject":      "Hi",
		"From":         "a@x.com",
		"To":           "b@y.com",
		"Mime-Version": "1.0",
	}
	for key, want := range headers {
		if got := msg.RawHeaders[key]; len(got) != 1 || got[0] != want {
			t.Errorf("%s header: got %v, want [%s]", key, got, want)
		}
	}
	if msg.TextBody != "Hello" {
		t.Errorf("TextBody: got %q, want %q", msg.TextBody, "Hello")
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("Attachments: got %d, want 0", len(msg.Attachments))
	}
}

func TestBuild_ReportAndLogo(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string][]byte{
		"r1.txt":   []byte("first report"),
		"r2.txt":   []byte("second report"),
		"logo.png": {0x89, 'P', 'N', 'G', 0x00, 0xff},
	})

	fields := email.NewFields()
	mustSet(t, fields, "report", email.List(filepath.Join(dir, "r1.txt"), filepath.Join(dir, "r2.txt")))
	mustSet(t, fields, "logo", email.Path(filepath.Join(dir, "logo.png")))

	in := baseInput()
	in.Attachments = fields

	raw, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse built message: %v", err)
	}

	if msg.TextBody != "Hello" {
		t.Errorf("TextBody: got %q, want %q", msg.TextBody, "Hello")
	}

	want := []struct {
		name     string
		filename string
		content  []byte
	}{
		{"report_0", "r1.txt", []byte("first report")},
		{"report_1", "r2.txt", []byte("second report")},
		{"logo", "logo.png", []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}},
	}
	if len(msg.Attachments) != len(want) {
		t.Fatalf("Attachments: got %d, want %d", len(msg.Attachments), len(want))
	}
	for i, w := range want {
		att := msg.Attachments[i]
		if att.Name != w.name {
			t.Errorf("Attachments[%d].Name: got %q, want %q", i, att.Name, w.name)
		}
		if att.Filename != w.filename {
			t.Errorf("Attachments[%d].Filename: got %q, want %q", i, att.Filename, w.filename)
		}
		if att.ContentType != "application/octet-stream" {
			t.Errorf("Attachments[%d].ContentType: got %q", i, att.ContentType)
		}
		if !bytes.Equal(att.Content, w.content) {
			t.Errorf("Attachments[%d].Content: got %q, want %q", i, att.Content, w.content)
		}
	}

	for _, filename := range []string{"r1.txt", "r2.txt", "logo.png"} {
		header := `Content-Disposition: attachment; filename="` + filename + `"`
		if !bytes.Contains(raw, []byte(header)) {
			t.Errorf("raw message missing %q", header)
		}
	}
}

func TestBuild_MissingRequiredField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		field string
		clear func(*email.Input)
	}{
		{"from", func(in *email.Input) { in.From = "" }},
		{"to", func(in *email.Input) { in.To = "" }},
		{"subject", func(in *email.Input) { in.Subject = "" }},
		{"body", func(in *email.Input) { in.Body = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			t.Parallel()

			fields := email.NewFields()
			mustSet(t, fields, "ghost", email.Path(filepath.Join(t.TempDir(), "does-not-exist")))

			in := baseInput()
			in.Attachments = fields
			tt.clear(&in)

			opener := &trackingOpener{}
			raw, err := New(WithOpener(opener.open)).Build(in)

			var missing *MissingRequiredFieldError
			if !errors.As(err, &missing) {
				t.Fatalf("error: got %v, want MissingRequiredFieldError", err)
			}
			if missing.Field != tt.field {
				t.Errorf("Field: got %q, want %q", missing.Field, tt.field)
			}
			if raw != nil {
				t.Error("expected no output on validation failure")
			}
			if len(opener.opened) != 0 {
				t.Errorf("files opened before validation: %v", opener.opened)
			}
		})
	}
}

func TestBuild_ReportsFirstMissingField(t *testing.T) {
	t.Parallel()

	_, err := Build(email.Input{Body: "only a body"})

	var missing *MissingRequiredFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("error: got %v, want MissingRequiredFieldError", err)
	}
	if missing.Field != "from" {
		t.Errorf("Field: got %q, want %q", missing.Field, "from")
	}
	if !strings.Contains(err.Error(), `"from"`) {
		t.Errorf("error message should name the field: %q", err.Error())
	}
}

func TestBuild_NonexistentAttachment(t *testing.T) {
	t.Parallel()

	missingPath := filepath.Join(t.TempDir(), "nope.pdf")
	fields := email.NewFields()
	mustSet(t, fields, "doc", email.Path(missingPath))

	in := baseInput()
	in.Attachments = fields

	raw, err := Build(in)
	if raw != nil {
		t.Error("expected no output when an attachment is unreadable")
	}

	var readErr *AttachmentReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("error: got %v, want AttachmentReadError", err)
	}
	if readErr.Path != missingPath {
		t.Errorf("Path: got %q, want %q", readErr.Path, missingPath)
	}
	if readErr.Name != "doc" {
		t.Errorf("Name: got %q, want %q", readErr.Name, "doc")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected wrapped fs.ErrNotExist, got %v", err)
	}
	var pathErr *fs.PathError
	if !errors.As(err, &pathErr) {
		t.Errorf("expected the operating system error to be preserved, got %T", readErr.Err)
	}
	if !strings.Contains(err.Error(), missingPath) {
		t.Errorf("error message should contain the path: %q", err.Error())
	}
}

func TestBuild_FailsFastAndReleasesHandles(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string][]byte{"ok.txt": []byte("ok")})

	fields := email.NewFields()
	mustSet(t, fields, "files", email.List(
		filepath.Join(dir, "ok.txt"),
		filepath.Join(dir, "missing.txt"),
		filepath.Join(dir, "ok.txt"),
	))

	in := baseInput()
	in.Attachments = fields

	opener := &trackingOpener{}
	raw, err := New(WithOpener(opener.open)).Build(in)

	var readErr *AttachmentReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("error: got %v, want AttachmentReadError", err)
	}
	if readErr.Name != "files_1" {
		t.Errorf("Name: got %q, want %q", readErr.Name, "files_1")
	}
	if raw != nil {
		t.Error("expected no partial output")
	}
	if len(opener.opened) != 2 {
		t.Errorf("opened: got %v, want the first two paths only", opener.opened)
	}
	if opener.closed != 1 {
		t.Errorf("closed: got %d, want 1", opener.closed)
	}
}

func TestBuild_SkipsUnsetFields(t *testing.T) {
	t.Parallel()

	dir := writeFiles(t, map[string][]byte{"a.txt": []byte("a")})

	fields := email.NewFields()
	if err := fields.Register("later", "never"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustSet(t, fields, "later", email.Path(filepath.Join(dir, "a.txt")))

	in := baseInput()
	in.Attachments = fields

	raw, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse built message: %v", err)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].Name != "later" {
		t.Errorf("Attachments: got %+v, want one attachment named later", msg.Attachments)
	}
}

func TestBuild_RoundTripBinaryAndUnicode(t *testing.T) {
	t.Parallel()

	blob := make([]byte, 1000)
	for i := range blob {
		blob[i] = byte(i % 256)
	}
	dir := writeFiles(t, map[string][]byte{
		"blob.bin":   blob,
		"empty.dat":  {},
		"résumé.pdf": []byte("cv"),
	})

	fields := email.NewFields()
	mustSet(t, fields, "blob", email.Path(filepath.Join(dir, "blob.bin")))
	mustSet(t, fields, "empty", email.Path(filepath.Join(dir, "empty.dat")))
	mustSet(t, fields, "cv", email.Path(filepath.Join(dir, "résumé.pdf")))

	in := email.Input{
		From:        "Zoë <zoe@example.com>",
		To:          "b@y.com, c@y.com",
		Subject:     "Grüße aus Köln",
		Body:        "Schöne Grüße\r\nZoë",
		Attachments: fields,
	}

	raw, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, line := range strings.Split(string(raw), "\r\n") {
		if len(line) > 998 {
			t.Fatalf("line exceeds RFC 5322 limit: %d chars", len(line))
		}
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse built message: %v", err)
	}

	if msg.Subject != in.Subject {
		t.Errorf("Subject: got %q, want %q", msg.Subject, in.Subject)
	}
	if got := msg.RawHeaders["To"][0]; got != in.To {
		t.Errorf("To: got %q, want %q", got, in.To)
	}
	if msg.TextBody != in.Body {
		t.Errorf("TextBody: got %q, want %q", msg.TextBody, in.Body)
	}
	if len(msg.Attachments) != 3 {
		t.Fatalf("Attachments: got %d, want 3", len(msg.Attachments))
	}
	if !bytes.Equal(msg.Attachments[0].Content, blob) {
		t.Error("binary attachment content changed in round trip")
	}
	if len(msg.Attachments[1].Content) != 0 {
		t.Errorf("empty attachment: got %d bytes", len(msg.Attachments[1].Content))
	}
	if msg.Attachments[2].Filename != "résumé.pdf" {
		t.Errorf("unicode filename: got %q, want %q", msg.Attachments[2].Filename, "résumé.pdf")
	}
}

func TestBuild_DeterministicWithFixedBoundary(t *testing.T) {
	t.Parallel()

	b := New(WithBoundary(func() string { return "fixed-boundary" }))

	first, err := b.Build(baseInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Build(baseInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("builds with the same input and boundary differ")
	}
	if !bytes.Contains(first, []byte("Content-Type: multipart/mixed; boundary=fixed-boundary\r\n")) {
		t.Errorf("unexpected top-level content type in:\n%s", first)
	}
	if !bytes.HasSuffix(first, []byte("--fixed-boundary--\r\n")) {
		t.Error("message does not end with the closing boundary")
	}
}

func TestBuild_InvalidBoundary(t *testing.T) {
	t.Parallel()

	_, err := New(WithBoundary(func() string { return "" })).Build(baseInput())
	if err == nil {
		t.Fatal("expected error for empty boundary, got nil")
	}
}

func TestBuild_HeaderLineBreaksAreFolded(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.To = "b@y.com\r\nBcc: everyone@y.com"

	raw, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse built message: %v", err)
	}
	if _, ok := msg.RawHeaders["Bcc"]; ok {
		t.Error("line break in header value injected a new header")
	}
}

func TestBuild_SubjectRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		subject string
	}{
		{"long unbroken ascii", strings.Repeat("a", 1200)},
		{"long unicode", strings.Repeat("ü", 600)},
		{"long words", strings.TrimSpace(strings.Repeat("quarterly report ", 80))},
		{"looks encoded", "=?utf-8?q?hi?="},
		{"inner spaces", " two  spaces "},
		{"plain", "Hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := baseInput()
			in.Subject = tt.subject

			raw, err := Build(in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			head, _, _ := strings.Cut(string(raw), "\r\n\r\n")
			for _, line := range strings.Split(head, "\r\n") {
				if len(line) > 998 {
					t.Fatalf("header line exceeds RFC 5322 limit: %d chars", len(line))
				}
			}

			msg, err := parser.Parse(raw)
			if err != nil {
				t.Fatalf("failed to parse built message: %v", err)
			}
			if msg.Subject != tt.subject {
				t.Errorf("Subject: got %q, want %q", msg.Subject, tt.subject)
			}
		})
	}
}

func TestBuild_BodyLineEndingsPreserved(t *testing.T) {
	t.Parallel()

	tests := []string{
		"line1\nline2\n",
		"line1\r\nline2\r\n",
		"mixed\r\nline\nend\r",
		strings.Repeat("long line without breaks ", 20) + "\n",
	}

	for _, body := range tests {
		in := baseInput()
		in.Body = body

		raw, err := Build(in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		msg, err := parser.Parse(raw)
		if err != nil {
			t.Fatalf("failed to parse built message: %v", err)
		}
		if msg.TextBody != body {
			t.Errorf("TextBody: got %q, want %q", msg.TextBody, body)
		}
	}
}

func TestWriteHeader_Folding(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	value := strings.TrimSpace(strings.Repeat("alice@example.com, ", 10))
	writeHeader(&buf, "To", value)

	got := buf.String()
	if !strings.HasSuffix(got, "\r\n") {
		t.Fatalf("header not terminated by CRLF: %q", got)
	}
	lines := strings.Split(strings.TrimSuffix(got, "\r\n"), "\r\n")
	if len(lines) < 2 {
		t.Fatalf("expected folded header, got %q", got)
	}
	for i, line := range lines {
		if len(line) > maxHeaderLine {
			t.Errorf("line %d: got %d chars, want at most %d", i, len(line), maxHeaderLine)
		}
		if i > 0 && !strings.HasPrefix(line, " ") {
			t.Errorf("continuation line %d does not start with a space: %q", i, line)
		}
	}
	if unfolded := strings.ReplaceAll(strings.TrimSuffix(got, "\r\n"), "\r\n", ""); unfolded != "To: "+value {
		t.Errorf("unfolded: got %q, want %q", unfolded, "To: "+value)
	}
}

func TestEncodeSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		subject string
		want    string
	}{
		{"Hi there", "Hi there"},
		{"=?utf-8?q?hi?=", "=?UTF-8?q?=3D=3Futf-8=3Fq=3Fhi=3F=3D?="},
		{"Grüße", "=?UTF-8?q?Gr=C3=BC=C3=9Fe?="},
	}

	for _, tt := range tests {
		if got := encodeSubject(tt.subject); got != tt.want {
			t.Errorf("encodeSubject(%q): got %q, want %q", tt.subject, got, tt.want)
		}
	}

	for _, word := range strings.Fields(encodeSubject(strings.Repeat("ü", 100))) {
		if len(word) > maxEncodedWord {
			t.Errorf("encoded word too long: %d chars", len(word))
		}
	}
}

func TestAttachmentDisposition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		filename string
		want     string
	}{
		{"r1.txt", `attachment; filename="r1.txt"`},
		{"my file.pdf", `attachment; filename="my file.pdf"`},
		{`say "hi".txt`, `attachment; filename="say \"hi\".txt"`},
		{"naïve.txt", `attachment; filename*=utf-8''na%C3%AFve.txt`},
	}

	for _, tt := range tests {
		if got := attachmentDisposition(tt.filename); got != tt.want {
			t.Errorf("attachmentDisposition(%q): got %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestEncodeBase64WithLineBreaks(t *testing.T) {
	t.Parallel()

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	encoded := encodeBase64WithLineBreaks(data)
	lines := strings.Split(encoded, "\r\n")
	for i, line := range lines {
		if i < len(lines)-1 && len(line) != 76 {
			t.Errorf("line %d length: got %d, want 76", i, len(line))
		}
		if len(line) > 76 {
			t.Errorf("line %d exceeds 76 chars: got %d", i, len(line))
		}
	}

	if got := encodeBase64WithLineBreaks(nil); got != "" {
		t.Errorf("empty input: got %q, want empty", got)
	}
}

func mustSet(t *testing.T, f *email.Fields, name string, v email.Value) {
	t.Helper()
	if err := f.Set(name, v); err != nil {
		t.Fatalf("Set(%q): %v", name, err)
	}
}
