package message

import (
	"fmt"

	"github.com/shineum/mailpipe/internal/email"
)

// Resolve flattens attachment fields into an ordered list of attachment
// sources. A path field yields one entry under its own name, a list field
// yields one entry per element named <field>_<index>, and unset fields are
// skipped. Order follows field registration, then list order.
func Resolve(fields *email.Fields) []email.AttachmentRef {
	refs := make([]email.AttachmentRef, 0, fields.Len())

	for _, name := range fields.Names() {
		v, _ := fields.Get(name)

		switch v.Kind() {
		case email.KindPath:
			refs = append(refs, email.AttachmentRef{Name: name, Path: v.Paths()[0]})
		case email.KindList:
			for i, p := range v.Paths() {
				refs = append(refs, email.AttachmentRef{
					Name: fmt.Sprintf("%s_%d", name, i),
					Path: p,
				})
			}
		}
	}

	return refs
}
