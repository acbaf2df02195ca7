// Package harmonize classifies, corrects and renders harmonized variants.
package harmonize

// Status is the harmonization outcome of a variant. Distinct statuses may
// share an external code; see Code.
type Status int

const (
	// StatusUnmapped means no strategy produced a usable mapping, or the
	// classification was undefined.
	StatusUnmapped Status = iota
	// StatusUnvalidated means the variant was mapped but its alleles do not
	// match the reference record in either orientation.
	StatusUnvalidated
	// StatusFlipRequired means the alleles match the reference only after
	// reverse complementing.
	StatusFlipRequired
	// StatusAuthorReported means the source build equals the target build
	// and the reported coordinates were kept.
	StatusAuthorReported
	// StatusLiftover is a unique liftover target.
	StatusLiftover
	// StatusLiftoverAmbiguous means the position lifted to several targets
	// and the best one was kept.
	StatusLiftoverAmbiguous
	// StatusPalindromeUnresolved means the alleles match but the allele set
	// contains a member and its reverse complement, so the strand cannot be
	// resolved.
	StatusPalindromeUnresolved
	// StatusPalindromic means an exact match whose strand is ambiguous by
	// allele symmetry.
	StatusPalindromic
	// StatusExact is an unambiguous exact match.
	StatusExact
)

// Values of the hm_info "ambiguity" key.
const (
	AmbiguityLiftover   = "multiple_liftover_targets"
	AmbiguityPalindrome = "palindromic_alleles"
)

var statusInfo = map[Status]struct {
	code int
	name string
}{
	StatusUnmapped:             {-1, "unmapped"},
	StatusUnvalidated:          {-5, "unvalidated"},
	StatusFlipRequired:         {-4, "flip required"},
	StatusAuthorReported:       {0, "author-reported"},
	StatusLiftover:             {2, "unambiguous liftover"},
	StatusLiftoverAmbiguous:    {3, "ambiguous liftover"},
	StatusPalindromeUnresolved: {3, "unresolvable palindrome"},
	StatusPalindromic:          {4, "palindromic match"},
	StatusExact:                {5, "exact match"},
}

// Code returns the numeric hm_code written to scoring files.
func (s Status) Code() int {
	if info, ok := statusInfo[s]; ok {
		return info.code
	}
	return -1
}

func (s Status) String() string {
	if info, ok := statusInfo[s]; ok {
		return info.name
	}
	return "unknown"
}

// Ambiguity returns the reason a code 3 status is ambiguous, or "".
func (s Status) Ambiguity() string {
	switch s {
	case StatusLiftoverAmbiguous:
		return AmbiguityLiftover
	case StatusPalindromeUnresolved:
		return AmbiguityPalindrome
	}
	return ""
}
