package accounts

import (
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MinNameLen       = 3
	MaxNameLen       = 15
	MinPassphraseLen = 6
)

var (
	fold  = cases.Fold()
	title = cases.Title(language.English)
)

// Normalize returns the storage key for an account name. Lookups are
// case-insensitive.
func Normalize(name string) string {
	return fold.String(strings.TrimSpace(name))
}

// ValidName reports whether name is 3-15 ASCII letters and digits.
func ValidName(name string) bool {
	if len(name) < MinNameLen || len(name) > MaxNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isLetter(c) && !isDigit(c) {
			return false
		}
	}
	return true
}

// ValidCharName reports whether name is 3-15 letters.
func ValidCharName(name string) bool {
	if len(name) < MinNameLen || len(name) > MaxNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isLetter(name[i]) {
			return false
		}
	}
	return true
}

// CharName capitalizes a character name the way it is displayed.
func CharName(name string) string {
	return title.String(strings.TrimSpace(name))
}

// ValidPassphrase requires MinPassphraseLen characters including at least
// one letter and one digit. Other characters are allowed.
func ValidPassphrase(pass string) bool {
	if len(pass) < MinPassphraseLen {
		return false
	}
	var letter, digit bool
	for i := 0; i < len(pass); i++ {
		switch c := pass[i]; {
		case isLetter(c):
			letter = true
		case isDigit(c):
			digit = true
		}
	}
	return letter && digit
}

// ValidEmail accepts a bare user@domain address with a dotted domain.
func ValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
