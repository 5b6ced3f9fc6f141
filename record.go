package labkit

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrInvalidFieldName is returned when a schema field name is not a valid
	// record-member identifier.
	ErrInvalidFieldName = errors.New("labkit: invalid field name")
	// ErrDuplicateFieldName is returned when a schema contains the same field
	// name more than once.
	ErrDuplicateFieldName = errors.New("labkit: duplicate field name")
	// ErrEmptySchema is returned when a schema would have no fields at all,
	// such as a blank header line. Records of arity zero could only drop data.
	ErrEmptySchema = errors.New("labkit: schema has no fields")
)

// SchemaError describes why a field-name list was rejected at reader
// construction.
type SchemaError struct {
	Name  string
	Index int
	Err   error
}

// Error formats the schema error message with the offending name and position.
func (e *SchemaError) Error() string {
	if e == nil {
		return ""
	}
	if errors.Is(e.Err, ErrEmptySchema) {
		return e.Err.Error()
	}
	return fmt.Sprintf("labkit: bad schema field %q at index %d: %v", e.Name, e.Index, e.Err)
}

// Unwrap returns the underlying Err so SchemaError participates in errors.Unwrap.
func (e *SchemaError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Schema is the frozen, ordered field-name list shared by every record a
// RecordReader produces. The name list cannot change after construction;
// Fieldnames hands out copies.
type Schema struct {
	names []string
	index map[string]int
}

// NewSchema builds a schema from names, which must hold at least one name.
// A name must start with a letter and continue with letters, digits, or
// underscores, and may appear only once. With rename set, each invalid or
// duplicate name is replaced by the positional placeholder "_N" instead of
// failing; without it the first violation is reported as a *SchemaError.
func NewSchema(names []string, rename bool) (*Schema, error) {
	if len(names) == 0 {
		return nil, &SchemaError{Err: ErrEmptySchema}
	}
	s := &Schema{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		switch {
		case !validFieldName(name):
			if !rename {
				return nil, &SchemaError{Name: name, Index: i, Err: ErrInvalidFieldName}
			}
			name = fmt.Sprintf("_%d", i)
		case s.Has(name):
			if !rename {
				return nil, &SchemaError{Name: name, Index: i, Err: ErrDuplicateFieldName}
			}
			name = fmt.Sprintf("_%d", i)
		}
		s.names[i] = name
		s.index[name] = i
	}
	return s, nil
}

// Len returns the schema arity.
func (s *Schema) Len() int {
	return len(s.names)
}

// Fieldnames returns a copy of the ordered field-name list.
func (s *Schema) Fieldnames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Index returns the position of name in the schema and whether it exists.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Has reports whether name is a schema field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// validFieldName reports whether name can serve as a record-member
// identifier: a letter followed by letters, digits, or underscores.
// Leading underscores are reserved for rename placeholders.
func validFieldName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (r == '_' || unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// Field is one slot of a Record. Exactly one state holds: plain text, the
// overflow tail of an over-long row, or the missing marker of a padded row.
type Field struct {
	text    string
	tail    []string
	missing bool
}

// Text returns the raw field value. For a padded slot it returns the
// reader's configured restval; for a tail slot it returns "".
func (f Field) Text() string {
	return f.text
}

// Tail returns the overflow values absorbed into the final schema slot of an
// over-long row, or nil for any other slot.
func (f Field) Tail() []string {
	return f.tail
}

// HasTail reports whether the field holds overflow values.
func (f Field) HasTail() bool {
	return f.tail != nil
}

// Missing reports whether the slot was padded because the row had fewer
// fields than the schema.
func (f Field) Missing() bool {
	return f.missing
}

// String renders the field for debugging output.
func (f Field) String() string {
	switch {
	case f.tail != nil:
		return "[" + strings.Join(f.tail, " ") + "]"
	case f.missing:
		return "<missing>"
	default:
		return f.text
	}
}

// Record is one parsed row: an immutable, fixed-arity sequence of fields
// sharing its reader's schema.
type Record struct {
	schema *Schema
	fields []Field
}

// Len returns the record arity, which always equals the schema arity.
func (r Record) Len() int {
	return len(r.fields)
}

// Field returns the slot at position i.
func (r Record) Field(i int) Field {
	return r.fields[i]
}

// Get returns the slot for the named schema field and whether the name
// exists in the schema.
func (r Record) Get(name string) (Field, bool) {
	if r.schema == nil {
		return Field{}, false
	}
	i, ok := r.schema.Index(name)
	if !ok {
		return Field{}, false
	}
	return r.fields[i], true
}

// Fieldnames returns a copy of the schema's ordered field-name list.
func (r Record) Fieldnames() []string {
	if r.schema == nil {
		return nil
	}
	return r.schema.Fieldnames()
}

// String renders the record as name=value pairs for debugging output.
func (r Record) String() string {
	var b strings.Builder
	b.WriteString("Record(")
	for i, f := range r.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		if r.schema != nil {
			b.WriteString(r.schema.names[i])
			b.WriteByte('=')
		}
		b.WriteString(f.String())
	}
	b.WriteByte(')')
	return b.String()
}
