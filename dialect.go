package labkit

import (
	"fmt"
	"sync"
)

// Dialect is a named bundle of lexical rules for splitting a text line into
// fields and for writing fields back out. Dialects are passed by value and
// treated as immutable.
type Dialect struct {
	// Comma is the field delimiter.
	Comma byte
	// Quote is the quote character.
	Quote byte
	// TrimLeadingSpace discards space bytes immediately following a delimiter.
	TrimLeadingSpace bool
	// QuoteAll forces quoting of every field on write.
	QuoteAll bool
	// UseCRLF terminates written records with \r\n instead of \n.
	UseCRLF bool
}

// Built-in dialect names. Each standard dialect has a "-strip" variant that
// additionally skips leading whitespace after delimiters.
const (
	DialectExcel         = "excel"
	DialectExcelTab      = "excel-tab"
	DialectUnix          = "unix"
	DialectExcelStrip    = "excel-strip"
	DialectExcelTabStrip = "excel-tab-strip"
	DialectUnixStrip     = "unix-strip"
)

var (
	dialectMu       sync.RWMutex
	dialectRegistry = map[string]Dialect{}
)

func init() {
	excel := Dialect{Comma: ',', Quote: '"', UseCRLF: true}
	excelTab := Dialect{Comma: '\t', Quote: '"', UseCRLF: true}
	unix := Dialect{Comma: ',', Quote: '"', QuoteAll: true}

	RegisterDialect(DialectExcel, excel)
	RegisterDialect(DialectExcelTab, excelTab)
	RegisterDialect(DialectUnix, unix)

	excel.TrimLeadingSpace = true
	excelTab.TrimLeadingSpace = true
	unix.TrimLeadingSpace = true

	RegisterDialect(DialectExcelStrip, excel)
	RegisterDialect(DialectExcelTabStrip, excelTab)
	RegisterDialect(DialectUnixStrip, unix)
}

// RegisterDialect stores d in the process-wide registry under name.
// Registering a name that already exists overwrites the previous entry.
// The registry is shared by every reader and writer in the process.
func RegisterDialect(name string, d Dialect) {
	dialectMu.Lock()
	defer dialectMu.Unlock()
	dialectRegistry[name] = d
}

// LookupDialect returns the dialect registered under name and reports
// whether it exists.
func LookupDialect(name string) (Dialect, bool) {
	dialectMu.RLock()
	defer dialectMu.RUnlock()
	d, ok := dialectRegistry[name]
	return d, ok
}

// DialectNames returns the names of all registered dialects in no
// particular order.
func DialectNames() []string {
	dialectMu.RLock()
	defer dialectMu.RUnlock()
	names := make([]string, 0, len(dialectRegistry))
	for name := range dialectRegistry {
		names = append(names, name)
	}
	return names
}

// resolveDialect returns the dialect to use for a name, defaulting to the
// excel dialect when name is empty.
func resolveDialect(name string) (Dialect, error) {
	if name == "" {
		name = DialectExcel
	}
	d, ok := LookupDialect(name)
	if !ok {
		return Dialect{}, fmt.Errorf("labkit: unknown dialect %q", name)
	}
	return d, nil
}
