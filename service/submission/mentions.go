package submission

import (
	"strings"

	"github.com/dlclark/regexp2"
)

var mentionExpr = regexp2.MustCompile(`@([A-Za-z0-9_.]+)`, 0)

// mentions extracts the distinct @usernames from comment content, in
// order of first appearance.
func mentions(content string) []string {
	seen := map[string]bool{}
	var names []string

	m, err := mentionExpr.FindStringMatch(content)
	for err == nil && m != nil {
		name := strings.ToLower(m.GroupByNumber(1).String())
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		m, err = mentionExpr.FindNextMatch(m)
	}

	return names
}
