package labkit

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	numbersCSV    = "col1,col2,col3\n11,12,13\n"
	whitespaceCSV = "first_name, last_name, age\nJane, Doe, 42\n"
)

// dropHeader returns the CSV content with its first line already consumed,
// the way a caller would hand over a stream positioned past the header.
func dropHeader(content string) string {
	_, rest, _ := strings.Cut(content, "\n")
	return rest
}

func TestRecordReaderSimpleRead(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader(dropHeader(numbersCSV)), RecordReaderOptions{
		Fieldnames: []string{"a", "b", "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rr.Fieldnames())

	rec, err := rr.Read()
	require.NoError(t, err)

	for name, want := range map[string]string{"a": "11", "b": "12", "c": "13"} {
		f, ok := rec.Get(name)
		require.True(t, ok, "field %q", name)
		assert.Equal(t, want, f.Text())
		assert.False(t, f.Missing())
	}
	assert.Equal(t, 1, rr.LineNum())

	_, err = rr.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecordReaderFieldnamesFromHeader(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader(numbersCSV), RecordReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"col1", "col2", "col3"}, rr.Fieldnames())
	assert.Equal(t, 1, rr.LineNum(), "consuming the header advances the position counter")

	rec, err := rr.Read()
	require.NoError(t, err)
	for name, want := range map[string]string{"col1": "11", "col2": "12", "col3": "13"} {
		f, ok := rec.Get(name)
		require.True(t, ok)
		assert.Equal(t, want, f.Text())
	}
	assert.Equal(t, 2, rr.LineNum())
}

func TestRecordReaderTooManyFields(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader(dropHeader(numbersCSV)), RecordReaderOptions{
		Fieldnames: []string{"col1", "the_rest"},
	})
	require.NoError(t, err)

	rec, err := rr.Read()
	require.NoError(t, err)

	col1, ok := rec.Get("col1")
	require.True(t, ok)
	assert.Equal(t, "11", col1.Text())
	assert.False(t, col1.HasTail())

	rest, ok := rec.Get("the_rest")
	require.True(t, ok)
	assert.True(t, rest.HasTail())
	assert.Equal(t, []string{"12", "13"}, rest.Tail())
}

func TestRecordReaderOverflowIntoSingleField(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader("one,two,three,four"), RecordReaderOptions{
		Fieldnames: []string{"everything"},
	})
	require.NoError(t, err)

	rec, err := rr.Read()
	require.NoError(t, err)

	f, ok := rec.Get("everything")
	require.True(t, ok)
	assert.Equal(t, []string{"one", "two", "three", "four"}, f.Tail())
}

func TestRecordReaderTooFewFields(t *testing.T) {
	t.Run("defaultRestval", func(t *testing.T) {
		rr, err := NewRecordReader(strings.NewReader(dropHeader(numbersCSV)), RecordReaderOptions{
			Fieldnames: []string{"col1", "col2", "col3", "extra_field"},
		})
		require.NoError(t, err)

		rec, err := rr.Read()
		require.NoError(t, err)

		for name, want := range map[string]string{"col1": "11", "col2": "12", "col3": "13"} {
			f, ok := rec.Get(name)
			require.True(t, ok)
			assert.Equal(t, want, f.Text())
			assert.False(t, f.Missing())
		}

		extra, ok := rec.Get("extra_field")
		require.True(t, ok)
		assert.True(t, extra.Missing())
		assert.Equal(t, "", extra.Text())
	})

	t.Run("customRestval", func(t *testing.T) {
		rr, err := NewRecordReader(strings.NewReader("11\n"), RecordReaderOptions{
			Fieldnames: []string{"a", "b", "c"},
			Restval:    "N/A",
		})
		require.NoError(t, err)

		rec, err := rr.Read()
		require.NoError(t, err)

		for _, name := range []string{"b", "c"} {
			f, ok := rec.Get(name)
			require.True(t, ok)
			assert.True(t, f.Missing())
			assert.Equal(t, "N/A", f.Text())
		}
	})
}

func TestRecordReaderExactWidth(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader("x, y ,\"z,z\"\n"), RecordReaderOptions{
		Fieldnames: []string{"a", "b", "c"},
	})
	require.NoError(t, err)

	rec, err := rr.Read()
	require.NoError(t, err)

	// Values stay raw text; no trimming or coercion without a dialect asking for it.
	assert.Equal(t, "x", rec.Field(0).Text())
	assert.Equal(t, " y ", rec.Field(1).Text())
	assert.Equal(t, "z,z", rec.Field(2).Text())
}

func TestRecordReaderSkipsBlankLines(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader("a,b\n\n\nc,d\n"), RecordReaderOptions{
		Fieldnames: []string{"x", "y"},
	})
	require.NoError(t, err)

	first, err := rr.Read()
	require.NoError(t, err)
	assert.Equal(t, "a", first.Field(0).Text())
	assert.Equal(t, 1, rr.LineNum())

	second, err := rr.Read()
	require.NoError(t, err)
	assert.Equal(t, "c", second.Field(0).Text())
	assert.Equal(t, 4, rr.LineNum(), "blank lines advance the line count without producing records")

	_, err = rr.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRecordReaderStripDialect(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader(whitespaceCSV), RecordReaderOptions{
		Dialect: DialectUnixStrip,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first_name", "last_name", "age"}, rr.Fieldnames())

	rec, err := rr.Read()
	require.NoError(t, err)

	for name, want := range map[string]string{
		"first_name": "Jane",
		"last_name":  "Doe",
		"age":        "42",
	} {
		f, ok := rec.Get(name)
		require.True(t, ok)
		assert.Equal(t, want, f.Text())
	}
}

func TestRecordReaderRename(t *testing.T) {
	t.Run("invalidHeaderFails", func(t *testing.T) {
		// Using the data row as a header fails: "42" is not a valid field name.
		_, err := NewRecordReader(strings.NewReader(dropHeader(whitespaceCSV)), RecordReaderOptions{
			TrimLeadingSpace: true,
		})
		require.Error(t, err)

		var serr *SchemaError
		require.ErrorAs(t, err, &serr)
		assert.ErrorIs(t, err, ErrInvalidFieldName)
		assert.Equal(t, "42", serr.Name)
	})

	t.Run("renameSubstitutesPlaceholder", func(t *testing.T) {
		rr, err := NewRecordReader(strings.NewReader(dropHeader(whitespaceCSV)), RecordReaderOptions{
			Rename:           true,
			TrimLeadingSpace: true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Jane", "Doe", "_2"}, rr.Fieldnames())
	})

	t.Run("explicitDuplicates", func(t *testing.T) {
		_, err := NewRecordReader(strings.NewReader("1,2\n"), RecordReaderOptions{
			Fieldnames: []string{"a", "a"},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDuplicateFieldName)

		rr, err := NewRecordReader(strings.NewReader("1,2\n"), RecordReaderOptions{
			Fieldnames: []string{"a", "a"},
			Rename:     true,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "_1"}, rr.Fieldnames())
	})
}

func TestRecordReaderDialectSelection(t *testing.T) {
	t.Run("unknownName", func(t *testing.T) {
		_, err := NewRecordReader(strings.NewReader("a,b\n"), RecordReaderOptions{
			Dialect: "no-such-dialect",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown dialect")
	})

	t.Run("configObjectWins", func(t *testing.T) {
		rr, err := NewRecordReader(strings.NewReader("a;b\nc;d\n"), RecordReaderOptions{
			Dialect:       DialectExcelTab,
			DialectConfig: &Dialect{Comma: ';', Quote: '"'},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, rr.Fieldnames())
	})

	t.Run("commaOverride", func(t *testing.T) {
		rr, err := NewRecordReader(strings.NewReader("a|b\nc|d\n"), RecordReaderOptions{
			Comma: '|',
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, rr.Fieldnames())

		rec, err := rr.Read()
		require.NoError(t, err)
		assert.Equal(t, "c", rec.Field(0).Text())
		assert.Equal(t, "d", rec.Field(1).Text())
	})
}

func TestRecordReaderFrozenSchema(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader(numbersCSV), RecordReaderOptions{})
	require.NoError(t, err)

	require.Equal(t, 3, rr.Schema().Len())

	view := rr.Fieldnames()
	view[0] = "mutated"
	assert.Equal(t, []string{"col1", "col2", "col3"}, rr.Fieldnames())
	assert.Equal(t, []string{"col1", "col2", "col3"}, rr.Schema().Fieldnames())

	rec, err := rr.Read()
	require.NoError(t, err)
	recView := rec.Fieldnames()
	recView[1] = "mutated"
	assert.Equal(t, []string{"col1", "col2", "col3"}, rr.Fieldnames())
}

func TestRecordReaderReadAll(t *testing.T) {
	rr, err := NewRecordReader(strings.NewReader("h1,h2\n1,2\n\n3,4,5\n6\n"), RecordReaderOptions{})
	require.NoError(t, err)

	records, err := rr.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "1", records[0].Field(0).Text())
	assert.Equal(t, "2", records[0].Field(1).Text())

	assert.Equal(t, "3", records[1].Field(0).Text())
	assert.Equal(t, []string{"4", "5"}, records[1].Field(1).Tail())

	assert.Equal(t, "6", records[2].Field(0).Text())
	assert.True(t, records[2].Field(1).Missing())
}

func TestRecordReaderRejectsEmptySchema(t *testing.T) {
	t.Run("explicitZeroFieldnames", func(t *testing.T) {
		_, err := NewRecordReader(strings.NewReader("1,2\n"), RecordReaderOptions{
			Fieldnames: []string{},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptySchema)
	})

	t.Run("blankHeaderLine", func(t *testing.T) {
		_, err := NewRecordReader(strings.NewReader("\n1,2\n"), RecordReaderOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptySchema)
	})
}

func TestRecordReaderEmptySource(t *testing.T) {
	t.Run("deriveFromEmpty", func(t *testing.T) {
		_, err := NewRecordReader(strings.NewReader(""), RecordReaderOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("explicitSchemaEmptyBody", func(t *testing.T) {
		rr, err := NewRecordReader(strings.NewReader(""), RecordReaderOptions{
			Fieldnames: []string{"a"},
		})
		require.NoError(t, err)

		_, err = rr.Read()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("headerParseErrorPropagates", func(t *testing.T) {
		_, err := NewRecordReader(strings.NewReader("\"broken"), RecordReaderOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnterminatedQuote)
	})
}
