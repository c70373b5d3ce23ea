package model

import "strings"

// NormalizeMonth canonicalizes a service month string to MM/YYYY, so that
// "8/2025" and "08/2025" compare equal. Strings that are not M/YYYY or
// MM/YYYY are returned with surrounding whitespace trimmed and otherwise
// unchanged, except that a malformed empty input normalizes to "".
func NormalizeMonth(month string) string {
	month = strings.TrimSpace(month)
	if month == "" {
		return ""
	}
	parts := strings.Split(month, "/")
	if len(parts) != 2 {
		return month
	}
	m, y := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if m == "" || y == "" {
		return month
	}
	if len(m) == 1 {
		m = "0" + m
	}
	return m + "/" + y
}

// validMonth reports whether s parses as M/YYYY or MM/YYYY with a month
// in 1..12 and a four-digit year.
func validMonth(s string) bool {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return false
	}
	m, y := parts[0], parts[1]
	if len(m) < 1 || len(m) > 2 || len(y) != 4 {
		return false
	}
	mv := 0
	for _, c := range m {
		if c < '0' || c > '9' {
			return false
		}
		mv = mv*10 + int(c-'0')
	}
	for _, c := range y {
		if c < '0' || c > '9' {
			return false
		}
	}
	return mv >= 1 && mv <= 12
}
