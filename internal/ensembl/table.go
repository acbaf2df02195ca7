package ensembl

import (
	"fmt"
	"strings"
)

// Variation is one entry of the POST /variation response.
type Variation struct {
	Name     string    `json:"name"`
	Mappings []Mapping `json:"mappings"`
	Synonyms []string  `json:"synonyms,omitempty"`
}

// Mapping is a genomic location of a variation on the server's assembly.
type Mapping struct {
	SeqRegionName string `json:"seq_region_name"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
	Strand        int    `json:"strand"`
	AlleleString  string `json:"allele_string"`
	AssemblyName  string `json:"assembly_name"`
	Location      string `json:"location,omitempty"`
}

// Alleles splits the allele string ("A/G/T") into its alleles.
func (m Mapping) Alleles() []string {
	if m.AlleleString == "" {
		return nil
	}
	return strings.Split(m.AlleleString, "/")
}

// Record is the canonical reference record selected for an identifier.
type Record struct {
	VariantID string // location-based identifier, "chr:pos:ref:alt"
	RsID      string // current Ensembl name, may differ from the queried id
	Chrom     string
	Pos       int64
	Alleles   []string
}

// Table holds lookup results keyed by the queried identifier.
// It is read-only once returned by Lookup.
type Table map[string]*Variation

// Canonical selects one mapping for id, preferring the chromosome that
// appears earliest in chromosomes. Mappings on chromosomes absent from the
// ordering (patches, haplotypes) are never selected.
func (t Table) Canonical(id string, chromosomes []string) (Record, bool) {
	v, ok := t[id]
	if !ok || v == nil {
		return Record{}, false
	}

	rank := make(map[string]int, len(chromosomes))
	for i, c := range chromosomes {
		rank[c] = i
	}

	best := -1
	bestRank := len(chromosomes)
	for i, m := range v.Mappings {
		r, ok := rank[m.SeqRegionName]
		if !ok {
			continue
		}
		if r < bestRank {
			best, bestRank = i, r
		}
	}
	if best < 0 {
		return Record{}, false
	}

	m := v.Mappings[best]
	name := v.Name
	if name == "" {
		name = id
	}
	return Record{
		VariantID: fmt.Sprintf("%s:%d:%s", m.SeqRegionName, m.Start, strings.ReplaceAll(m.AlleleString, "/", ":")),
		RsID:      name,
		Chrom:     m.SeqRegionName,
		Pos:       m.Start,
		Alleles:   m.Alleles(),
	}, true
}

// DefaultChromosomes is the canonical chromosome ordering for human builds.
func DefaultChromosomes() []string {
	chroms := make([]string, 0, 25)
	for i := 1; i <= 22; i++ {
		chroms = append(chroms, fmt.Sprint(i))
	}
	return append(chroms, "X", "Y", "MT")
}
