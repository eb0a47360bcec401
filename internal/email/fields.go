package email

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrReservedField is returned when a caller tries to register one of the
	// mandatory header names as an attachment field.
	ErrReservedField = errors.New("field name is reserved")
	// ErrEmptyFieldName is returned for a blank field name.
	ErrEmptyFieldName = errors.New("field name is empty")
)

var reservedNames = []string{"from", "to", "subject", "body"}

// Kind tags the variant held by a Value.
type Kind uint8

const (
	// KindUnset marks a registered field that was never assigned.
	KindUnset Kind = iota
	// KindPath is a single file path.
	KindPath
	// KindList is an ordered list of file paths.
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindUnset:
		return "unset"
	case KindPath:
		return "path"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Value is the content of an attachment field. The zero Value is unset.
type Value struct {
	kind  Kind
	paths []string
}

// Unset returns the unset sentinel value.
func Unset() Value {
	return Value{}
}

// Path returns a value holding a single file path.
func Path(p string) Value {
	return Value{kind: KindPath, paths: []string{p}}
}

// List returns a value holding an ordered list of file paths.
func List(paths ...string) Value {
	return Value{kind: KindList, paths: slices.Clone(paths)}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind {
	return v.kind
}

// IsSet reports whether v holds a path or a list.
func (v Value) IsSet() bool {
	return v.kind != KindUnset
}

// Paths returns a copy of the paths held by v. It is empty for unset values.
func (v Value) Paths() []string {
	return slices.Clone(v.paths)
}

// UnmarshalYAML decodes a scalar into a path and a sequence into a list.
// Null never reaches this method; yaml.v3 leaves the zero (unset) value.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Path(node.Value)
		return nil
	case yaml.SequenceNode:
		var paths []string
		if err := node.Decode(&paths); err != nil {
			return fmt.Errorf("line %d: attachment list must contain file paths: %w", node.Line, err)
		}
		*v = List(paths...)
		return nil
	default:
		return fmt.Errorf("line %d: attachment must be a path or a list of paths", node.Line)
	}
}

// Fields is an ordered set of caller-defined attachment fields. Names keep
// the position of their first registration; reassigning a name updates the
// value in place.
type Fields struct {
	order  []string
	values map[string]Value
}

// NewFields returns an empty field set.
func NewFields() *Fields {
	return &Fields{values: make(map[string]Value)}
}

// Register adds names as unset fields. Names that already exist keep their
// current value.
func (f *Fields) Register(names ...string) error {
	for _, name := range names {
		if err := checkName(name); err != nil {
			return err
		}
		if _, ok := f.values[name]; ok {
			continue
		}
		f.add(name, Unset())
	}
	return nil
}

// Set assigns v to name, registering the field if needed.
func (f *Fields) Set(name string, v Value) error {
	if err := checkName(name); err != nil {
		return err
	}
	if _, ok := f.values[name]; ok {
		f.values[name] = v
		return nil
	}
	f.add(name, v)
	return nil
}

// Get returns the value of name and whether the field exists.
func (f *Fields) Get(name string) (Value, bool) {
	if f == nil {
		return Value{}, false
	}
	v, ok := f.values[name]
	return v, ok
}

// Names returns the field names in registration order.
func (f *Fields) Names() []string {
	if f == nil {
		return nil
	}
	return slices.Clone(f.order)
}

// Len returns the number of registered fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.order)
}

// UnmarshalYAML decodes a mapping of field name to path, list or null,
// preserving the key order of the document.
func (f *Fields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: attachments must be a mapping", node.Line)
	}

	*f = Fields{values: make(map[string]Value, len(node.Content)/2)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var v Value
		if err := val.Decode(&v); err != nil {
			return fmt.Errorf("attachment %q: %w", key.Value, err)
		}
		if err := f.Set(key.Value, v); err != nil {
			return fmt.Errorf("line %d: %w", key.Line, err)
		}
	}
	return nil
}

func (f *Fields) add(name string, v Value) {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	f.order = append(f.order, name)
	f.values[name] = v
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyFieldName
	}
	if slices.Contains(reservedNames, strings.ToLower(name)) {
		return fmt.Errorf("%w: %q", ErrReservedField, name)
	}
	return nil
}
