package utils

import (
	"regexp"
	"strings"
)

func FirstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}

func SplitByMultipleDelimiters(s string, delimiters ...string) []string {
	if len(delimiters) == 0 {
		return []string{s}
	}
	delimiterPattern := "[" + regexp.QuoteMeta(strings.Join(delimiters, "")) + "]"
	re := regexp.MustCompile(delimiterPattern)
	return re.Split(s, -1)
}

// CaptureWildcard matches name against a pattern holding at most one '*' and
// returns the text the wildcard stood for. A '*' never matches an empty
// string. Patterns without a wildcard only match themselves and capture "".
func CaptureWildcard(pattern, name string) (string, bool) {
	idx := strings.IndexByte(pattern, '*')
	if idx < 0 {
		return "", pattern == name
	}
	prefix, suffix := pattern[:idx], pattern[idx+1:]
	if len(name) <= len(prefix)+len(suffix) {
		return "", false
	}
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return "", false
	}
	return name[len(prefix) : len(name)-len(suffix)], true
}
