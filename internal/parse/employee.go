// Package parse normalizes and validates employee codes supplied at login.
package parse

import (
	"fmt"
	"strings"
)

const (
	minCodeLen = 2
	maxCodeLen = 32
)

// NormalizeEmployeeID canonicalizes a raw employee code: surrounding
// whitespace is trimmed and letters are uppercased, so "emp001 " and
// "EMP001" identify the same user. The allowed alphabet is letters,
// digits and hyphens.
func NormalizeEmployeeID(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))

	if len(code) < minCodeLen {
		return "", fmt.Errorf("employee code %q is too short (minimum %d characters)", raw, minCodeLen)
	}
	if len(code) > maxCodeLen {
		return "", fmt.Errorf("employee code %q is too long (maximum %d characters)", raw, maxCodeLen)
	}

	for _, r := range code {
		if !isCodeRune(r) {
			return "", fmt.Errorf("employee code %q contains invalid character %q", raw, r)
		}
	}

	return code, nil
}

func isCodeRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-':
		return true
	}
	return false
}
