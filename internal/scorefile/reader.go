// Package scorefile reads and writes PGS Catalog scoring files.
package scorefile

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Standard scoring file column names.
const (
	ColChrName         = "chr_name"
	ColChrPosition     = "chr_position"
	ColRsID            = "rsID"
	ColEffectAllele    = "effect_allele"
	ColOtherAllele     = "other_allele"
	ColReferenceAllele = "reference_allele"
	ColEffectWeight    = "effect_weight"
)

// remapHeader maps commented header keys to field names.
var remapHeader = map[string]string{
	"PGS ID":                "pgs_id",
	"PGS Name":              "pgs_name",
	"Reported Trait":        "trait_reported",
	"Original Genome Build": "genome_build",
	"Number of Variants":    "variants_number",
	"PGP ID":                "pgp_id",
	"Citation":              "citation",
	"LICENSE":               "pgs_license",
	"HmPOS Build":           "HmPOS_build",
	"HmPOS Date":            "HmPOS_date",
	"HmVCF Reference":       "HmVCF_ref",
	"HmVCF Date":            "HmVCF_date",
}

// Header holds the commented "# Key = Value" header of a scoring file,
// keyed by remapped field name.
type Header map[string]string

// PgsID returns the PGS identifier.
func (h Header) PgsID() string {
	return h["pgs_id"]
}

// GenomeBuild returns the author-reported build, or "" when it was not
// reported ("NR").
func (h Header) GenomeBuild() string {
	b := h["genome_build"]
	if b == "NR" {
		return ""
	}
	return b
}

// Record is one data row. Values are kept as text so that non-numeric
// contig names and positions survive unchanged.
type Record struct {
	Line   int
	fields map[string]string
}

// NewRecord builds a record from column names and row values. Missing
// trailing values read as empty.
func NewRecord(line int, columns, values []string) Record {
	fields := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(values) {
			fields[col] = values[i]
		} else {
			fields[col] = ""
		}
	}
	return Record{Line: line, fields: fields}
}

// Get returns the value of col, or "" when the column does not exist.
func (r Record) Get(col string) string {
	return r.fields[col]
}

// Value returns the value of col and whether it holds data.
func (r Record) Value(col string) (string, bool) {
	v, ok := r.fields[col]
	if !ok || IsMissing(v) {
		return "", false
	}
	return v, true
}

// IsMissing reports whether a cell holds no data.
func IsMissing(v string) bool {
	switch v {
	case "", "NA", "NaN", "nan", "None", "NULL", "null":
		return true
	}
	return false
}

// File is a fully read scoring file.
type File struct {
	Header  Header
	Columns []string
	Records []Record
}

// HasColumn reports whether the file has the named column.
func (f *File) HasColumn(col string) bool {
	for _, c := range f.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Read reads a scoring file from disk. Supports plain and gzipped files.
func Read(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scoring file: %w", err)
	}
	defer file.Close()

	br := bufio.NewReader(file)
	var r io.Reader = br

	// Check for gzip magic number (0x1f, 0x8b)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return ReadFrom(r)
}

// ReadFrom reads a scoring file from r.
func ReadFrom(r io.Reader) (*File, error) {
	reader := bufio.NewReader(r)
	f := &File{Header: make(Header)}
	lineNumber := 0

	// Commented header, then the column header line.
	for {
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, &ParseError{Line: lineNumber, Message: "no column header line found"}
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(line, "#") {
			parseHeaderLine(f.Header, line)
			continue
		}
		if line == "" {
			continue
		}

		f.Columns = parseColumns(line)
		break
	}

	if !f.HasColumn(ColEffectAllele) {
		return nil, &ParseError{
			Line:    lineNumber,
			Message: fmt.Sprintf("required column '%s' not found in header", ColEffectAllele),
		}
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read variant line: %w", err)
		}
		if line == "" && err == io.EOF {
			break
		}
		lineNumber++

		line = strings.TrimRight(line, "\r\n")
		if line != "" && !strings.HasPrefix(line, "#") {
			values := strings.Split(line, "\t")
			if len(values) > len(f.Columns) {
				return nil, &ParseError{
					Line:    lineNumber,
					Message: fmt.Sprintf("expected at most %d columns, found %d", len(f.Columns), len(values)),
				}
			}
			f.Records = append(f.Records, NewRecord(lineNumber, f.Columns, values))
		}

		if err == io.EOF {
			break
		}
	}

	return f, nil
}

// parseHeaderLine stores a "# Key = Value" line. Section lines without "="
// are ignored.
func parseHeaderLine(h Header, line string) {
	key, val, ok := strings.Cut(strings.TrimLeft(line, "#"), "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)
	if mapped, ok := remapHeader[key]; ok {
		key = mapped
	}
	h[key] = val
}

// parseColumns splits the column header and renames reference_allele to
// other_allele.
func parseColumns(line string) []string {
	cols := strings.Split(line, "\t")
	for i, c := range cols {
		if c == ColReferenceAllele {
			cols[i] = ColOtherAllele
		}
	}
	return cols
}

// ParseError represents an error during scoring file parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("scoring file parse error at line %d: %s", e.Line, e.Message)
}
