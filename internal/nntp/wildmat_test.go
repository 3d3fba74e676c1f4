package nntp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchWildmat(t *testing.T) {
	tests := []struct {
		name    string
		wildmat string
		want    bool
	}{
		{"monntpy.users", "*", true},
		{"monntpy.users", "monntpy.*", true},
		{"monntpy.users", "monntpy.dev", false},
		{"monntpy.users", "monntpy.use??", true},
		{"monntpy.users", "monntpy.user?", true},
		{"monntpy.users", "monntpy.users?", false},
		// last match wins
		{"monntpy.users", "monntpy.*,!monntpy.users", false},
		{"monntpy.users", "!monntpy.users,monntpy.*", true},
		{"monntpy.dev", "monntpy.*,!monntpy.users", true},
		// no pattern matched at all
		{"alt.test", "monntpy.*", false},
		{"alt.test", "", false},
		// whitespace around elements is tolerated
		{"alt.test", "alt.*, !alt.test", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchWildmat(tt.name, tt.wildmat),
			"MatchWildmat(%q, %q)", tt.name, tt.wildmat)
	}
}

func TestMatchWildcard(t *testing.T) {
	assert.True(t, matchWildcard("abc", "abc"))
	assert.True(t, matchWildcard("abc", "a*"))
	assert.True(t, matchWildcard("abc", "*c"))
	assert.True(t, matchWildcard("abc", "a?c"))
	assert.True(t, matchWildcard("", "*"))
	assert.False(t, matchWildcard("abc", "a?"))
	assert.False(t, matchWildcard("abc", ""))
	assert.True(t, matchWildcard("abc", "ab*"))
	assert.True(t, matchWildcard("a.b.c", "a.*.c"))
}
