package middleware

import "strings"

// MaskSessionID keeps session ids out of the logs.
func MaskSessionID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "***"
}
