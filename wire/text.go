package wire

import (
	"github.com/scalecode-solutions/runeseg"
)

// GraphemeCount returns the number of user-perceived characters in str.
// Counting grapheme clusters instead of bytes keeps length limits fair for
// emoji and combining marks.
func GraphemeCount(str string) int {
	n := 0
	for state, remaining := -1, str; len(remaining) > 0; {
		_, remaining, _, state = runeseg.StepString(remaining, state)
		n++
	}
	return n
}

// TruncateGraphemes returns str truncated to at most max grapheme clusters.
func TruncateGraphemes(str string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	offset := 0
	for state, remaining := -1, str; len(remaining) > 0; {
		var cluster string
		cluster, remaining, _, state = runeseg.StepString(remaining, state)
		if n == max {
			return str[:offset]
		}
		offset += len(cluster)
		n++
	}
	return str
}
