// Package slug normalises the short codes used for account heads and voucher types.
package slug

import (
	"regexp"
	"strings"
)

const maxLen = 40

var reSlug = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsSlug returns true if s matches ^[a-z0-9_]{2,40}$
func IsSlug(s string) bool {
	return reSlug.MatchString(s)
}

// Slugify lowercases s, maps runs of other characters to a single '_', trims
// underscores at both ends and caps the result at 40 characters.
func Slugify(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isWord {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			if b.Len()+1 >= maxLen {
				break
			}
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
		if b.Len() >= maxLen {
			break
		}
	}
	return b.String()
}

// Normalize slugifies s and reports whether the result is a valid slug.
func Normalize(s string) (string, bool) {
	out := Slugify(s)
	return out, IsSlug(out)
}
