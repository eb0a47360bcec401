package message

import "fmt"

// MissingRequiredFieldError reports the first mandatory header field that
// was empty at build time.
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// AttachmentReadError reports an attachment file that could not be opened or
// read. Err is the operating system error, unchanged.
type AttachmentReadError struct {
	Name string
	Path string
	Err  error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("failed to read attachment %q (%s): %v", e.Name, e.Path, e.Err)
}

func (e *AttachmentReadError) Unwrap() error {
	return e.Err
}
