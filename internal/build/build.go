// Package build resolves genome build identifiers across the Ensembl release
// names (GRCh38, NCBI36, ...) and the UCSC short codes (hg38, hg18, ...).
package build

import (
	"fmt"
	"strings"
)

// Build is a genome build in its canonical UCSC short-code form (e.g. "hg19").
type Build string

// Canonical short codes.
const (
	Hg16 Build = "hg16"
	Hg17 Build = "hg17"
	Hg18 Build = "hg18"
	Hg19 Build = "hg19"
	Hg38 Build = "hg38"
)

// NotReported is the scoring file sentinel for a build the authors did not report.
const NotReported = "NR"

// releaseToCode maps Ensembl release names to UCSC short codes.
var releaseToCode = map[string]Build{
	"NCBI34": Hg16,
	"NCBI35": Hg17,
	"NCBI36": Hg18,
	"GRCh37": Hg19,
	"GRCh38": Hg38,
}

var codeToRelease = func() map[Build]string {
	m := make(map[Build]string, len(releaseToCode))
	for rel, code := range releaseToCode {
		m[code] = rel
	}
	return m
}()

// Side names which half of a build pair an identifier came from.
type Side string

const (
	Source      Side = "source"
	Destination Side = "destination"
)

// UnknownBuildError reports a build identifier absent from both vocabularies.
type UnknownBuildError struct {
	Side  Side
	Value string
}

func (e *UnknownBuildError) Error() string {
	return fmt.Sprintf("unknown %s genome build: %q", e.Side, e.Value)
}

// Pair is a normalized (source, target) build pair.
type Pair struct {
	Source Build
	Target Build
}

// Identity reports whether source and target are the same build.
func (p Pair) Identity() bool {
	return p.Source == p.Target
}

func (p Pair) String() string {
	return fmt.Sprintf("%s -> %s", p.Source, p.Target)
}

// Normalize returns the canonical short code for a release name or short code.
// Exact matches win; otherwise the lookup is retried case-insensitively.
func Normalize(name string) (Build, bool) {
	name = strings.TrimSpace(name)
	if _, ok := codeToRelease[Build(name)]; ok {
		return Build(name), true
	}
	if code, ok := releaseToCode[name]; ok {
		return code, true
	}

	lower := strings.ToLower(name)
	if _, ok := codeToRelease[Build(lower)]; ok {
		return Build(lower), true
	}
	for rel, code := range releaseToCode {
		if strings.ToLower(rel) == lower {
			return code, true
		}
	}
	return "", false
}

// Resolve normalizes a source and a target build independently.
func Resolve(source, target string) (Pair, error) {
	src, ok := Normalize(source)
	if !ok {
		return Pair{}, &UnknownBuildError{Side: Source, Value: source}
	}
	dst, ok := Normalize(target)
	if !ok {
		return Pair{}, &UnknownBuildError{Side: Destination, Value: target}
	}
	return Pair{Source: src, Target: dst}, nil
}

// Equal reports whether two identifiers name the same build.
// Unknown identifiers are never equal to anything.
func Equal(a, b string) bool {
	ba, ok := Normalize(a)
	if !ok {
		return false
	}
	bb, ok := Normalize(b)
	if !ok {
		return false
	}
	return ba == bb
}

// Release returns the Ensembl release name for a build (e.g. "GRCh37").
func Release(b Build) string {
	return codeToRelease[b]
}

// IsReported reports whether a scoring file build value carries a build.
func IsReported(value string) bool {
	value = strings.TrimSpace(value)
	return value != "" && value != NotReported
}
