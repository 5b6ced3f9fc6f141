package labkit

import (
	"fmt"
	"io"
)

// RecordReaderOptions configures NewRecordReader. The zero value derives the
// schema from the first input line using the excel dialect.
type RecordReaderOptions struct {
	// Fieldnames is the explicit schema. When nil, the field names are read
	// from the first line of the source using the resolved dialect.
	Fieldnames []string
	// Restval is the text carried by padded slots when a row has fewer
	// fields than the schema. Padded slots also report Missing.
	Restval string
	// Dialect names a registered dialect. Empty selects "excel".
	Dialect string
	// DialectConfig supplies the dialect directly, bypassing the registry.
	// It takes precedence over Dialect.
	DialectConfig *Dialect
	// Rename replaces invalid or duplicate field names with positional "_N"
	// placeholders instead of failing construction.
	Rename bool

	// Comma and Quote override the dialect's separators when non-zero, and
	// TrimLeadingSpace enables space skipping regardless of the dialect.
	Comma            byte
	Quote            byte
	TrimLeadingSpace bool
}

// RecordReader reads CSV rows as immutable, named-field records instead of
// loosely-typed string slices.
//
// Differences from iterating a plain Reader:
//
//   - The schema (ordered field-name list) is fixed at construction, either
//     explicitly or from the first input line, and cannot change afterwards.
//   - A row with fewer fields than the schema is padded with missing-state
//     slots carrying the configured Restval.
//   - A row with more fields than the schema has all extra values stuffed
//     into the final slot as an ordered tail rather than being an error:
//
//     rr, _ := NewRecordReader(strings.NewReader("one,two,three,four"),
//     	RecordReaderOptions{Fieldnames: []string{"first", "other"}})
//     rec, _ := rr.Read()
//     // rec: Record(first=one, other=[two three four])
//
//   - Blank lines are skipped and never produce a record.
//
// A RecordReader is forward-only and not restartable. It owns its position
// in the source but not the source itself, and it is not safe for
// concurrent use.
type RecordReader struct {
	reader  *Reader
	schema  *Schema
	restval string
}

// NewRecordReader builds a RecordReader over src. It fails with a
// *SchemaError when the field names (explicit or header-derived) are empty,
// or are invalid identifiers or duplicated and opts.Rename is off, with a
// lookup error for an unknown dialect name, and with any read error
// encountered while consuming a header line.
func NewRecordReader(src io.Reader, opts RecordReaderOptions) (*RecordReader, error) {
	var d Dialect
	if opts.DialectConfig != nil {
		d = *opts.DialectConfig
	} else {
		var err error
		d, err = resolveDialect(opts.Dialect)
		if err != nil {
			return nil, err
		}
	}
	if opts.Comma != 0 {
		d.Comma = opts.Comma
	}
	if opts.Quote != 0 {
		d.Quote = opts.Quote
	}
	if opts.TrimLeadingSpace {
		d.TrimLeadingSpace = true
	}

	cr := NewDialectReader(src, d)
	cr.FieldsPerRecord = -1 // width reconciliation happens per record

	names := opts.Fieldnames
	if names == nil {
		row, err := cr.Read()
		if err == io.EOF {
			return nil, fmt.Errorf("labkit: cannot derive fieldnames: %w", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, err
		}
		names = row
	}

	schema, err := NewSchema(names, opts.Rename)
	if err != nil {
		return nil, err
	}

	return &RecordReader{
		reader:  cr,
		schema:  schema,
		restval: opts.Restval,
	}, nil
}

// Schema returns the reader's frozen schema.
func (rr *RecordReader) Schema() *Schema {
	return rr.schema
}

// Fieldnames returns a copy of the ordered field-name list.
func (rr *RecordReader) Fieldnames() []string {
	return rr.schema.Fieldnames()
}

// LineNum returns the number of raw input lines consumed so far, including
// a header line consumed at construction.
func (rr *RecordReader) LineNum() int {
	return rr.reader.LineNum()
}

// Read returns the next record, skipping blank lines, and io.EOF once the
// source is exhausted. Exhaustion is normal termination, not a failure.
func (rr *RecordReader) Read() (Record, error) {
	for {
		row, err := rr.reader.Read()
		if err != nil {
			return Record{}, err
		}
		if len(row) == 0 {
			continue
		}
		return rr.makeRecord(row), nil
	}
}

// ReadAll exhausts the reader, collecting records until io.EOF and
// returning the first error encountered.
func (rr *RecordReader) ReadAll() ([]Record, error) {
	var records []Record
	for {
		rec, err := rr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// makeRecord reconciles a raw row against the schema arity: short rows are
// padded with missing slots, long rows absorb the extra values into the
// final slot as an ordered tail.
func (rr *RecordReader) makeRecord(row []string) Record {
	lr, lf := len(row), rr.schema.Len()
	fields := make([]Field, lf)

	switch {
	case lr < lf:
		for i, v := range row {
			fields[i] = Field{text: v}
		}
		for i := lr; i < lf; i++ {
			fields[i] = Field{text: rr.restval, missing: true}
		}
	case lr > lf:
		for i := 0; i < lf-1; i++ {
			fields[i] = Field{text: row[i]}
		}
		tail := make([]string, lr-lf+1)
		copy(tail, row[lf-1:])
		fields[lf-1] = Field{tail: tail}
	default:
		for i, v := range row {
			fields[i] = Field{text: v}
		}
	}

	return Record{schema: rr.schema, fields: fields}
}
