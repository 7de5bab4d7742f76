package strings

import "strings"

func ContainsIn(s string, set []string) bool {
	for _, e := range set {
		if s == e {
			return true
		}
	}
	return false
}

// HasSuffixFold reports whether s ends with any of suffixes, ignoring case.
func HasSuffixFold(s string, suffixes ...string) bool {
	lower := strings.ToLower(s)
	for _, suffix := range suffixes {
		if strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}
