// # labkit: Analysis-Script Utilities for Go
//
// labkit is a small Go library of conveniences for data-analysis scripts: a streaming CSV reader that yields fixed-shape named records instead of loosely-typed string slices, a process-wide registry of CSV dialects including leading-whitespace-trimming variants, and helpers for running code inside an isolated, auto-cleaned temporary working directory.
//
// # Features
//
// - Streaming CSV reader and writer with custom field and quote separators, dialect-based configuration, and precise error reporting via `ParseError`.
// - `RecordReader` producing immutable, named-field records with header-derived schemas, restval padding for short rows, and tail absorption for long rows.
// - Process-wide dialect registry seeded with `excel`, `excel-tab`, `unix` and their leading-whitespace-trimming `-strip` variants.
// - `TempWorkspace` and `TempDir` for scoped execution inside a fresh temporary directory, plus a deterministic persistent debug mode for inspecting results.
// - Benchmarks, fuzz targets, and table-driven unit tests for regression protection.
//
// # Getting Started
//
// The module path is `labkit`. Import it directly when working inside this repository or adjust the module path to match your fork or remote.
package labkit
