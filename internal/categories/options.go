package categories

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	optionSeparators = regexp.MustCompile(`\r?\n|;|,|\|`)
	pipeLookalikes   = strings.NewReplacer("｜", "|", "│", "|", "‖", "|", `\|`, "|", `\,`, ",")
)

// NormalizeOptions turns a JSON array or a list separated by newlines, semicolons,
// commas or pipes into a deduplicated comma list, keeping first-seen order.
func NormalizeOptions(cell string) string {
	s := stripQuotes(cell)
	if s == "" {
		return ""
	}

	var parts []string
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var arr []any
		if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &arr); err == nil {
			for _, x := range arr {
				if x == nil {
					continue
				}
				parts = append(parts, fmt.Sprint(x))
			}
			return joinUnique(parts)
		}
	}

	s = pipeLookalikes.Replace(s)
	return joinUnique(optionSeparators.Split(s, -1))
}

func joinUnique(parts []string) string {
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return strings.Join(out, ",")
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
