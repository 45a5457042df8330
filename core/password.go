package core

import (
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 8
	passwordSymbols   = "#?!@$%^&*-"
)

// IsStrongPassword reports whether password has at least one ASCII uppercase
// letter, lowercase letter, digit and symbol from passwordSymbols, and is at
// least minPasswordLength characters long. Line breaks are never accepted.
func IsStrongPassword(password string) bool {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return false
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case r == '\n' || r == '\r':
			return false
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}
