package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shineum/mailpipe/internal/email"
)

// inputFlags are the message flags shared by build and mail.
type inputFlags struct {
	from     string
	to       string
	subject  string
	body     string
	bodyFile string
	attach   []string
	fields   []string
	job      string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.from, "from", "", "sender address")
	flags.StringVar(&f.to, "to", "", "recipient address")
	flags.StringVar(&f.subject, "subject", "", "message subject")
	flags.StringVar(&f.body, "body", "", "plain-text message body")
	flags.StringVar(&f.bodyFile, "body-file", "", "read the message body from a file")
	flags.StringArrayVar(&f.attach, "attach", nil, "attachment as name=path; repeat a name to attach several files under it")
	flags.StringArrayVar(&f.fields, "field", nil, "declare an attachment field that stays empty")
	flags.StringVar(&f.job, "job", "", "YAML job manifest with from, to, subject, body and attachments")

	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
}

// input assembles the message input. A job manifest is the base layer;
// header flags override it and attachment flags are appended to its fields.
func (f *inputFlags) input() (email.Input, error) {
	var in email.Input

	if f.job != "" {
		job, err := loadJob(f.job)
		if err != nil {
			return email.Input{}, err
		}
		in = job
	}

	if f.from != "" {
		in.From = f.from
	}
	if f.to != "" {
		in.To = f.to
	}
	if f.subject != "" {
		in.Subject = f.subject
	}
	if f.body != "" {
		in.Body = f.body
	}
	if f.bodyFile != "" {
		data, err := os.ReadFile(f.bodyFile)
		if err != nil {
			return email.Input{}, fmt.Errorf("failed to read body file: %w", err)
		}
		in.Body = string(data)
	}

	if len(f.attach) == 0 && len(f.fields) == 0 {
		return in, nil
	}

	if in.Attachments == nil {
		in.Attachments = email.NewFields()
	}
	if err := applyAttachFlags(in.Attachments, f.attach); err != nil {
		return email.Input{}, err
	}
	if err := in.Attachments.Register(f.fields...); err != nil {
		return email.Input{}, fmt.Errorf("invalid --field: %w", err)
	}

	return in, nil
}

// loadJob reads a YAML job manifest. Attachment entries keep document order.
func loadJob(path string) (email.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return email.Input{}, fmt.Errorf("failed to read job file: %w", err)
	}

	var in email.Input
	if err := yaml.Unmarshal(data, &in); err != nil {
		return email.Input{}, fmt.Errorf("failed to parse job file: %w", err)
	}
	return in, nil
}

type attachFlag struct {
	name string
	path string
}

// applyAttachFlags sets one field per distinct name in order of first
// appearance. A name given once is a single path; a repeated name becomes a
// list in flag order.
func applyAttachFlags(fields *email.Fields, values []string) error {
	parsed := make([]attachFlag, 0, len(values))
	for _, v := range values {
		name, path, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || path == "" {
			return fmt.Errorf("invalid --attach %q: want name=path", v)
		}
		parsed = append(parsed, attachFlag{name: name, path: path})
	}

	groups := lo.GroupBy(parsed, func(a attachFlag) string { return a.name })
	names := lo.Uniq(lo.Map(parsed, func(a attachFlag, _ int) string { return a.name }))

	for _, name := range names {
		paths := lo.Map(groups[name], func(a attachFlag, _ int) string { return a.path })

		value := email.Path(paths[0])
		if len(paths) > 1 {
			value = email.List(paths...)
		}
		if err := fields.Set(name, value); err != nil {
			return fmt.Errorf("invalid --attach %q: %w", name, err)
		}
	}
	return nil
}
