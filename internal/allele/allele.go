// Package allele provides strand operations on reported alleles.
package allele

// ReverseComplement returns the reverse complement of an allele.
// Only the canonical uppercase bases A, C, G and T have a complement; any
// other character (indel notation, IUPAC ambiguity codes, lowercase) leaves
// the result undefined and ok is false.
func ReverseComplement(a string) (rc string, ok bool) {
	n := len(a)
	// Stack-allocate for typical allele lengths.
	var buf [64]byte
	var result []byte
	if n <= len(buf) {
		result = buf[:n]
	} else {
		result = make([]byte, n)
	}
	for i := 0; i < n; i++ {
		c, ok := complement(a[n-1-i])
		if !ok {
			return "", false
		}
		result[i] = c
	}
	return string(result), true
}

func complement(base byte) (byte, bool) {
	switch base {
	case 'A':
		return 'T', true
	case 'T':
		return 'A', true
	case 'G':
		return 'C', true
	case 'C':
		return 'G', true
	default:
		return 0, false
	}
}

// IsCanonical reports whether every base of a is one of A, C, G, T.
func IsCanonical(a string) bool {
	for i := 0; i < len(a); i++ {
		if _, ok := complement(a[i]); !ok {
			return false
		}
	}
	return true
}

// IsPalindromicPair reports whether the pair (a, b) is its own reverse
// complement, e.g. A/T or C/G. Strand cannot be inferred from such a pair.
func IsPalindromicPair(a, b string) bool {
	rc, ok := ReverseComplement(a)
	return ok && a != "" && rc == b
}

// HasComplementaryMember reports whether any allele in the set equals the
// reverse complement of a different member of the set.
func HasComplementaryMember(alleles []string) bool {
	if len(alleles) < 2 {
		return false
	}
	for i, a := range alleles {
		for j, b := range alleles {
			if i == j {
				continue
			}
			if rc, ok := ReverseComplement(b); ok && rc == a {
				return true
			}
		}
	}
	return false
}
