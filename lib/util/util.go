// Package util contains helper functions used around the code.
package util

import "strings"

// In returns true if s is found in ss, false otherwise.
func In(ss []string, s string) bool {
	for _, v := range ss {
		if s == v {
			return true
		}
	}

	return false
}

// FirstNonEmpty returns the first of ss that is not blank, trimmed, or "" if all are.
func FirstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}

	return ""
}
