package harmonize

import "github.com/inodb/pgs-harmonizer/internal/allele"

// FixStrandFlip reverse complements the alleles of a StatusFlipRequired
// variant and records the reported values. It returns true when the variant
// was corrected. If any allele has no reverse complement the live alleles
// are left as reported and the variant stays uncorrected.
func FixStrandFlip(v *Variant) bool {
	if v.Status != StatusFlipRequired || v.FlipFixed {
		return false
	}
	v.FlipAttempted = true

	effect, ok := allele.ReverseComplement(v.EffectAllele)
	if !ok || v.EffectAllele == "" {
		return false
	}
	var other string
	if v.HasOther {
		if other, ok = allele.ReverseComplement(v.OtherAllele); !ok {
			return false
		}
	}

	v.ReportedEffectAllele = v.EffectAllele
	v.EffectAllele = effect
	if v.HasOther {
		v.ReportedOtherAllele = v.OtherAllele
		v.OtherAllele = other
	}
	v.FlipFixed = true
	return true
}

// FixStrandFlips corrects every StatusFlipRequired variant and returns the
// number corrected.
func FixStrandFlips(variants []*Variant) int {
	n := 0
	for _, v := range variants {
		if FixStrandFlip(v) {
			n++
		}
	}
	return n
}
