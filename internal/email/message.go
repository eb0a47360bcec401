// Package email defines the core email data model used throughout mailpipe.
package email

// Input holds everything needed to assemble one outgoing message.
// The four header fields are mandatory; Attachments may be nil.
type Input struct {
	From        string  `yaml:"from" validate:"required"`
	To          string  `yaml:"to" validate:"required"`
	Subject     string  `yaml:"subject" validate:"required"`
	Body        string  `yaml:"body" validate:"required"`
	Attachments *Fields `yaml:"attachments" validate:"-"`
}

// AttachmentRef is one resolved attachment source: the logical name it was
// registered under and the file it points to.
type AttachmentRef struct {
	Name string
	Path string
}

// Email represents a parsed email message with all its components.
type Email struct {
	From        string
	To          []string
	Cc          []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	RawHeaders  map[string][]string
	MessageID   string
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	// Name is the logical field name from X-Attachment-Name, empty when the
	// message was not produced by mailpipe.
	Name        string
	Filename    string
	ContentType string
	Content     []byte
}
