package nntp

import "strings"

// MatchWildmat evaluates an NNTP wildmat (RFC 3977 section 4) against a
// newsgroup name: comma-separated wildcard patterns, evaluated left to
// right, where the last matching pattern wins and a leading "!" makes the
// match a rejection.
func MatchWildmat(name, wildmat string) bool {
	matched := false
	for _, pattern := range strings.Split(wildmat, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		negate := strings.HasPrefix(pattern, "!")
		if negate {
			pattern = pattern[1:]
		}
		if matchWildcard(name, pattern) {
			matched = !negate
		}
	}
	return matched
}

// matchWildcard performs wildcard matching with * for any run of characters
// and ? for a single character.
func matchWildcard(text, pattern string) bool {
	return matchWildcardRecursive(text, pattern, 0, 0)
}

func matchWildcardRecursive(text, pattern string, textIdx, patternIdx int) bool {
	if patternIdx == len(pattern) && textIdx == len(text) {
		return true
	}

	if patternIdx == len(pattern) {
		return false
	}

	if pattern[patternIdx] == '*' {
		for i := textIdx; i <= len(text); i++ {
			if matchWildcardRecursive(text, pattern, i, patternIdx+1) {
				return true
			}
		}
		return false
	}

	if textIdx == len(text) {
		// remaining pattern must be all '*'
		for i := patternIdx; i < len(pattern); i++ {
			if pattern[i] != '*' {
				return false
			}
		}
		return true
	}

	if pattern[patternIdx] == '?' || pattern[patternIdx] == text[textIdx] {
		return matchWildcardRecursive(text, pattern, textIdx+1, patternIdx+1)
	}

	return false
}
