package harmonize

import "github.com/inodb/pgs-harmonizer/internal/allele"

// Facts are the allele comparisons that drive classification.
type Facts struct {
	MatchesReference bool
	IsPalindromic    bool
	IsFlipped        bool
}

// Classify derives a status from the comparison facts. An exact but strand
// ambiguous match is downgraded to StatusPalindromeUnresolved when one of the
// alleles is the reverse complement of another.
func Classify(matchesReference, isPalindromic, isFlipped bool, alleles []string) Status {
	switch {
	case matchesReference && !isPalindromic && !isFlipped:
		return StatusExact
	case matchesReference && isPalindromic && !isFlipped:
		if allele.HasComplementaryMember(alleles) {
			return StatusPalindromeUnresolved
		}
		return StatusPalindromic
	case matchesReference && !isPalindromic && isFlipped:
		return StatusFlipRequired
	case !matchesReference && !isPalindromic && !isFlipped:
		return StatusUnvalidated
	}
	return StatusUnmapped
}

// Classify derives the status for the variant alleles the facts were
// computed from.
func (f Facts) Classify(alleles []string) Status {
	return Classify(f.MatchesReference, f.IsPalindromic, f.IsFlipped, alleles)
}

// CompareAlleles compares variant alleles with the alleles of a reference
// record. The alleles match when every one is present in the reference
// either as reported or after reverse complementing. A variant that matches
// both ways is palindromic; one that matches only after reverse
// complementing is flipped.
func CompareAlleles(alleles, ref []string) Facts {
	if len(alleles) == 0 || len(ref) == 0 {
		return Facts{}
	}

	inRef := make(map[string]bool, len(ref))
	for _, r := range ref {
		inRef[r] = true
	}

	direct, reversed := true, true
	for _, a := range alleles {
		if !inRef[a] {
			direct = false
		}
		rc, ok := allele.ReverseComplement(a)
		if !ok || a == "" || !inRef[rc] {
			reversed = false
		}
	}

	return Facts{
		MatchesReference: direct || reversed,
		IsPalindromic:    direct && reversed,
		IsFlipped:        !direct && reversed,
	}
}
