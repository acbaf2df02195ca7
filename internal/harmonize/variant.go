package harmonize

import "github.com/inodb/pgs-harmonizer/internal/scorefile"

// Mapping strategy tags written to hm_info "hm_source".
const (
	SourceEnsembl        = "ENSEMBL"
	SourceLiftover       = "liftover"
	SourceAuthorReported = "Author-reported"
	SourceUnknown        = "Unknown"
)

// Variant is a scoring file row extended with its harmonization state.
// The record itself is never modified.
type Variant struct {
	Record scorefile.Record

	Source string
	Status Status

	// Harmonized values, "" when unknown.
	HmChr  string
	HmPos  string
	HmRsID string
	HmVID  string

	// Live alleles; replaced by their reverse complements on a strand flip.
	EffectAllele string
	OtherAllele  string
	HasOther     bool

	ReportedEffectAllele string
	ReportedOtherAllele  string
	FlipFixed            bool
	FlipAttempted        bool
}

// NewVariant creates an unmapped variant for r.
func NewVariant(r scorefile.Record) *Variant {
	v := &Variant{
		Record:       r,
		Source:       SourceUnknown,
		Status:       StatusUnmapped,
		EffectAllele: r.Get(scorefile.ColEffectAllele),
	}
	v.OtherAllele, v.HasOther = r.Value(scorefile.ColOtherAllele)
	return v
}

// Alleles returns the live effect allele followed by the other allele when
// present.
func (v *Variant) Alleles() []string {
	if v.HasOther {
		return []string{v.EffectAllele, v.OtherAllele}
	}
	return []string{v.EffectAllele}
}

// Passed reports whether the variant renders as harmonized: a non-negative
// code, or a strand flip that was corrected.
func (v *Variant) Passed() bool {
	if v.Status.Code() >= 0 {
		return true
	}
	return v.Status == StatusFlipRequired && v.FlipFixed
}
