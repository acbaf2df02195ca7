package scorefile

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Writer writes tab-delimited scoring file rows.
type Writer struct {
	w    *bufio.Writer
	gz   *gzip.Writer
	file *os.File
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Create creates a writer for path; "-" writes to stdout and paths ending in
// ".gz" are gzip compressed.
func Create(path string) (*Writer, error) {
	if path == "-" || path == "" {
		return NewWriter(os.Stdout), nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		return &Writer{w: bufio.NewWriter(gz), gz: gz, file: f}, nil
	}
	return &Writer{w: bufio.NewWriter(f), file: f}, nil
}

// WriteHeader writes commented header lines followed by the column header.
func (w *Writer) WriteHeader(comments []string, columns []string) error {
	for _, line := range comments {
		if _, err := w.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return w.WriteRow(columns)
}

// WriteRow writes one tab-delimited row.
func (w *Writer) WriteRow(values []string) error {
	_, err := w.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Close flushes and closes any file opened by Create.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			return err
		}
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// HarmonizedHeader recreates the scoring file header and appends the
// harmonization details for a positional harmonization into hmBuild.
func HarmonizedHeader(h Header, hmBuild string, date time.Time) []string {
	build := h["genome_build"]
	if build == "" {
		build = "NR"
	}

	lines := []string{
		"### PGS CATALOG SCORING FILE - see www.pgscatalog.org/downloads/#dl_ftp for additional information",
		"## POLYGENIC SCORE (PGS) INFORMATION",
		"# PGS ID = " + h["pgs_id"],
	}
	if v, ok := h["pgs_name"]; ok {
		lines = append(lines, "# PGS Name = "+v)
	}
	lines = append(lines,
		"# Reported Trait = "+h["trait_reported"],
		"# Original Genome Build = "+build,
		"# Number of Variants = "+h["variants_number"],
		"## SOURCE INFORMATION",
		"# PGP ID = "+h["pgp_id"],
		"# Citation = "+h["citation"],
	)
	if v, ok := h["pgs_license"]; ok {
		lines = append(lines, "# LICENSE = "+v)
	}

	lines = append(lines,
		"## HARMONIZATION DETAILS",
		"# HmPOS Build = "+hmBuild,
		"# HmPOS Date = "+date.Format("2006-01-02"),
	)
	if v, ok := h["HmVCF_ref"]; ok {
		lines = append(lines,
			"# HmVCF Reference = "+v,
			"# HmVCF Date = "+h["HmVCF_date"],
		)
	}
	return lines
}
