package models

import (
	"regexp"
	"strings"
)

const glAccountWidth = 10

var (
	glDecimalSuffix = regexp.MustCompile(`^(\d+)\.0+$`)
	glDigits        = regexp.MustCompile(`^\d{1,10}$`)
)

// NormalizeGLAccount turns a raw cell into the 10-digit zero-padded account
// key. Spreadsheet floats like "45.0" are accepted. Anything else that is not
// 1 to 10 digits is rejected.
func NormalizeGLAccount(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	if m := glDecimalSuffix.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if !glDigits.MatchString(s) {
		return "", false
	}
	return strings.Repeat("0", glAccountWidth-len(s)) + s, true
}
